package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DraftRepository is a durable key/value store over the draft_slots table.
//
// It satisfies drafts.KeyValueStore so draft slots survive restarts of the CLI.
type DraftRepository struct {
	db *sql.DB
}

// NewDraftRepository creates a new DraftRepository with the given database connection
func NewDraftRepository(db *sql.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// Get returns the value stored under key and whether it exists
func (r *DraftRepository) Get(key string) (string, bool, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM draft_slots WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read draft slot %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value
func (r *DraftRepository) Set(key, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO draft_slots (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to write draft slot %s: %w", key, err)
	}
	return nil
}

// Keys returns every stored slot key
func (r *DraftRepository) Keys() ([]string, error) {
	rows, err := r.db.Query(`SELECT key FROM draft_slots ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query draft slots: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan draft slot: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return keys, nil
}
