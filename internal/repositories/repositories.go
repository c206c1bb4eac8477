package repositories

import (
	"database/sql"
	"errors"
	"fmt"
)

// rowQuerier is satisfied by both [sql.DB] and [sql.Tx].
type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

// NextSequence increments and returns the counter in the table's sequence table.
//
// Pass the caller's transaction so the number is only consumed when the insert commits.
// Sequence numbers order lists newest first independent of their ULIDs.
func NextSequence(q rowQuerier, table string) (int, error) {
	var sequence int
	err := q.QueryRow(fmt.Sprintf("UPDATE %s_sequence SET value = value + 1 WHERE id = 1 RETURNING value", table)).Scan(&sequence)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("sequence for %s is not initialized", table)
	case err != nil:
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}
	return sequence, nil
}
