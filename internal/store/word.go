package store

import (
	"database/sql"
	"strings"
	"time"
)

// Word is a custom dictionary word.
type Word struct {
	Word      string    `json:"word"`
	Frequency int       `json:"frequency"`
	CreatedAt time.Time `json:"created_at"`
}

// WordRepository provides operations on custom dictionary words.
type WordRepository struct {
	db *sql.DB
}

// Words returns the word repository for this store.
func (s *Store) Words() *WordRepository {
	return &WordRepository{db: s.db}
}

// Add inserts a word, or updates its frequency if it already exists. Words
// are stored upper-cased.
func (r *WordRepository) Add(word string, frequency int) error {
	_, err := r.db.Exec(
		`INSERT INTO words (word, frequency, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(word) DO UPDATE SET frequency = excluded.frequency`,
		strings.ToUpper(strings.TrimSpace(word)), frequency, time.Now(),
	)
	return err
}

// List returns all custom words in alphabetical order.
func (r *WordRepository) List() ([]Word, error) {
	rows, err := r.db.Query(`SELECT word, frequency, created_at FROM words ORDER BY word`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var words []Word
	for rows.Next() {
		var w Word
		if err := rows.Scan(&w.Word, &w.Frequency, &w.CreatedAt); err != nil {
			return nil, err
		}
		words = append(words, w)
	}

	return words, rows.Err()
}

// Delete removes a custom word.
func (r *WordRepository) Delete(word string) error {
	result, err := r.db.Exec(`DELETE FROM words WHERE word = ?`, strings.ToUpper(strings.TrimSpace(word)))
	if err != nil {
		return err
	}
	return expectRow(result)
}
