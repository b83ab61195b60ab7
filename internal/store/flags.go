package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yycdata/crashweather/internal/models"
)

// ErrCollisionNotFound rejects a flag referencing a collision identifier that
// does not exist. The flag is never persisted.
var ErrCollisionNotFound = errors.New("collision not found")

// CreateFlag attaches a note to an existing collision. The referential check
// and the insert share one transaction.
func (s *Store) CreateFlag(collisionID, note string) (*models.Flag, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM collisions WHERE collision_id = ?)`, collisionID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("flag %q: %w", collisionID, ErrCollisionNotFound)
	}

	now := time.Now().UTC()
	res, err := tx.Exec(`INSERT INTO flags (collision_id, note, created_at) VALUES (?, ?, ?)`,
		collisionID, note, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.Flag{ID: id, CollisionID: collisionID, Note: note, CreatedAt: now}, nil
}

// ListFlags returns flags newest-first.
func (s *Store) ListFlags(limit int) ([]models.Flag, error) {
	rows, err := s.db.Query(`
		SELECT id, collision_id, note, created_at
		FROM flags
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []models.Flag
	for rows.Next() {
		var fl models.Flag
		var created sql.NullTime
		if err := rows.Scan(&fl.ID, &fl.CollisionID, &fl.Note, &created); err != nil {
			return nil, err
		}
		fl.CreatedAt = created.Time
		flags = append(flags, fl)
	}
	return flags, rows.Err()
}
