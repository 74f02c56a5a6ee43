package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Letters table - one template per alphabet symbol
		`CREATE TABLE IF NOT EXISTS letters (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL UNIQUE,
			hands INTEGER NOT NULL DEFAULT 2 CHECK(hands IN (1, 2)),
			tolerance REAL NOT NULL DEFAULT 0.25,
			samples INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Trained, normalized landmark positions for each letter
		`CREATE TABLE IF NOT EXISTS letter_landmarks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			letter_id TEXT NOT NULL REFERENCES letters(id) ON DELETE CASCADE,
			landmark_index INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL
		)`,

		// Raw recorded samples for training
		`CREATE TABLE IF NOT EXISTS letter_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			letter_id TEXT NOT NULL REFERENCES letters(id) ON DELETE CASCADE,
			sample_index INTEGER NOT NULL,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Custom dictionary words merged into the built-in word list
		`CREATE TABLE IF NOT EXISTS words (
			word TEXT PRIMARY KEY,
			frequency INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_letter_landmarks_letter_id ON letter_landmarks(letter_id)`,
		`CREATE INDEX IF NOT EXISTS idx_letter_samples_letter_id ON letter_samples(letter_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
