package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/landmarks"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Letter is a stored letter template definition.
type Letter struct {
	ID        string
	Symbol    string
	Hands     int
	Tolerance float64
	Samples   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LetterRepository provides CRUD operations for letters and their landmarks.
type LetterRepository struct {
	db *sql.DB
}

// Letters returns the letter repository for this store.
func (s *Store) Letters() *LetterRepository {
	return &LetterRepository{db: s.db}
}

const letterColumns = `id, symbol, hands, tolerance, samples, created_at, updated_at`

func scanLetter(row interface{ Scan(...any) error }) (*Letter, error) {
	l := &Letter{}
	err := row.Scan(&l.ID, &l.Symbol, &l.Hands, &l.Tolerance, &l.Samples, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Create inserts a new letter.
func (r *LetterRepository) Create(l *Letter) error {
	now := time.Now()
	l.CreatedAt = now
	l.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO letters (`+letterColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Symbol, l.Hands, l.Tolerance, l.Samples, l.CreatedAt, l.UpdatedAt,
	)
	return err
}

// GetByID retrieves a letter by its ID.
func (r *LetterRepository) GetByID(id string) (*Letter, error) {
	l, err := scanLetter(r.db.QueryRow(`SELECT `+letterColumns+` FROM letters WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

// GetBySymbol retrieves a letter by its symbol.
func (r *LetterRepository) GetBySymbol(symbol string) (*Letter, error) {
	l, err := scanLetter(r.db.QueryRow(`SELECT `+letterColumns+` FROM letters WHERE symbol = ?`, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

// List retrieves all letters ordered by symbol.
func (r *LetterRepository) List() ([]*Letter, error) {
	rows, err := r.db.Query(`SELECT ` + letterColumns + ` FROM letters ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var letters []*Letter
	for rows.Next() {
		l, err := scanLetter(rows)
		if err != nil {
			return nil, err
		}
		letters = append(letters, l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return letters, nil
}

// Update updates an existing letter.
func (r *LetterRepository) Update(l *Letter) error {
	l.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE letters SET symbol = ?, hands = ?, tolerance = ?, samples = ?, updated_at = ?
		 WHERE id = ?`,
		l.Symbol, l.Hands, l.Tolerance, l.Samples, l.UpdatedAt, l.ID,
	)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// Delete removes a letter and, by cascade, its landmarks and samples.
func (r *LetterRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM letters WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

// SetLandmarks replaces the trained landmarks of a letter.
func (r *LetterRepository) SetLandmarks(letterID string, points []landmarks.Point3D) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM letters WHERE id = ?`, letterID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`DELETE FROM letter_landmarks WHERE letter_id = ?`, letterID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO letter_landmarks (letter_id, landmark_index, x, y, z) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range points {
		if _, err := stmt.Exec(letterID, i, p.X, p.Y, p.Z); err != nil {
			return fmt.Errorf("insert landmark %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(`UPDATE letters SET updated_at = ? WHERE id = ?`, time.Now(), letterID); err != nil {
		return err
	}

	return tx.Commit()
}

// GetLandmarks returns the trained landmarks of a letter in index order. A
// letter that has not been trained yet has none.
func (r *LetterRepository) GetLandmarks(letterID string) ([]landmarks.Point3D, error) {
	rows, err := r.db.Query(
		`SELECT x, y, z FROM letter_landmarks WHERE letter_id = ? ORDER BY landmark_index`,
		letterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []landmarks.Point3D
	for rows.Next() {
		var p landmarks.Point3D
		if err := rows.Scan(&p.X, &p.Y, &p.Z); err != nil {
			return nil, err
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

func expectRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
