package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ContextInfo describes a persisted interaction context.
type ContextInfo struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
	Entries   int    `json:"entries"`
}

// EnsureContext creates the context row if it does not exist yet.
func (db *DB) EnsureContext(id string) (*ContextInfo, error) {
	if id == "" {
		return nil, errors.New("ensure context: empty id")
	}
	now := time.Now().UnixMilli()
	if _, err := db.Exec(`
		INSERT INTO contexts (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, now, now); err != nil {
		return nil, fmt.Errorf("ensure context: %w", err)
	}
	return db.GetContext(id)
}

// GetContext returns a context by id, or ErrNotFound.
func (db *DB) GetContext(id string) (*ContextInfo, error) {
	var c ContextInfo
	err := db.QueryRow(`
		SELECT c.id, c.created_at, c.updated_at, COUNT(h.id)
		FROM contexts c LEFT JOIN history h ON h.context_id = c.id
		WHERE c.id = ?
		GROUP BY c.id
	`, id).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.Entries)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("context %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}
	return &c, nil
}

// ListContexts returns every context, most recently updated first.
func (db *DB) ListContexts() ([]ContextInfo, error) {
	rows, err := db.Query(`
		SELECT c.id, c.created_at, c.updated_at, COUNT(h.id)
		FROM contexts c LEFT JOIN history h ON h.context_id = c.id
		GROUP BY c.id
		ORDER BY c.updated_at DESC, c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	defer rows.Close()

	var out []ContextInfo
	for rows.Next() {
		var c ContextInfo
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.Entries); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
