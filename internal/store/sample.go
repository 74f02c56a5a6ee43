package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Sample is one recorded training sample for a letter.
type Sample struct {
	ID          int64           `json:"id"`
	LetterID    string          `json:"letter_id"`
	SampleIndex int             `json:"sample_index"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SampleRepository provides operations on recorded samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Create replaces the samples of a letter in a single transaction and
// updates the letter's sample count.
func (r *SampleRepository) Create(letterID string, samples []json.RawMessage) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM letter_samples WHERE letter_id = ?`, letterID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO letter_samples (letter_id, sample_index, data) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, data := range samples {
		if _, err := stmt.Exec(letterID, i, string(data)); err != nil {
			return err
		}
	}

	result, err := tx.Exec(`UPDATE letters SET samples = ?, updated_at = ? WHERE id = ?`,
		len(samples), time.Now(), letterID)
	if err != nil {
		return err
	}
	if err := expectRow(result); err != nil {
		return err
	}

	return tx.Commit()
}

// GetByLetterID retrieves all samples of a letter in recording order.
func (r *SampleRepository) GetByLetterID(letterID string) ([]Sample, error) {
	rows, err := r.db.Query(
		`SELECT id, letter_id, sample_index, data, created_at
		 FROM letter_samples
		 WHERE letter_id = ?
		 ORDER BY sample_index`,
		letterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var data string
		if err := rows.Scan(&s.ID, &s.LetterID, &s.SampleIndex, &data, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Data = json.RawMessage(data)
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// DeleteByLetterID removes all samples of a letter.
func (r *SampleRepository) DeleteByLetterID(letterID string) error {
	_, err := r.db.Exec(`DELETE FROM letter_samples WHERE letter_id = ?`, letterID)
	return err
}
