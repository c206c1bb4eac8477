package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
)

// ListRepository persists lists and their ordered membership, partitioned by scope key.
//
// Writes are full replacements: every Create and Update rewrites the list's name and
// all of its song and card orders in one transaction.
type ListRepository struct {
	db *sql.DB
}

// NewListRepository creates a new ListRepository with the given database connection
func NewListRepository(db *sql.DB) *ListRepository {
	return &ListRepository{db: db}
}

// Create inserts a list owned by scope with the given items and returns its ID
func (r *ListRepository) Create(scope string, update models.ListUpdate) (string, error) {
	if err := ValidateUpdate(update); err != nil {
		return "", err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := NextSequence(tx, "lists")
	if err != nil {
		return "", fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateListID()
	now := time.Now()

	_, err = tx.Exec(
		`INSERT INTO lists (id, sequence, scope, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, sequence, scope, strings.TrimSpace(update.Name), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert list: %w", err)
	}

	if err := insertItems(tx, id, update); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit list: %w", err)
	}
	return id, nil
}

// Update replaces the name and every item order of list id
func (r *ListRepository) Update(id string, update models.ListUpdate) error {
	if err := ValidateUpdate(update); err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE lists SET name = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		strings.TrimSpace(update.Name), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update list: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrListNotFound, id)
	}

	if _, err := tx.Exec(`DELETE FROM list_songs WHERE list_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear songs: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM list_cards WHERE list_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear cards: %w", err)
	}

	if err := insertItems(tx, id, update); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit list: %w", err)
	}
	return nil
}

// Delete soft-deletes a list by ID
func (r *ListRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE lists SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete list: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrListNotFound, id)
	}
	return nil
}

// Owner returns the scope key list id belongs to
func (r *ListRepository) Owner(id string) (string, error) {
	var scope string
	err := r.db.QueryRow(`SELECT scope FROM lists WHERE id = ? AND deleted_at IS NULL`, id).Scan(&scope)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", shared.ErrListNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query list owner: %w", err)
	}
	return scope, nil
}

// Get retrieves a list with its items by ID
func (r *ListRepository) Get(id string) (models.List, error) {
	lists, err := r.load(`l.id = ?`, id)
	if err != nil {
		return models.List{}, err
	}
	if len(lists) == 0 {
		return models.List{}, fmt.Errorf("%w: %s", shared.ErrListNotFound, id)
	}
	return lists[0], nil
}

// List retrieves every list of scope with its items, newest first
func (r *ListRepository) List(scope string) ([]models.List, error) {
	return r.load(`l.scope = ?`, scope)
}

// load runs the header, song and card queries one after another so that at most one
// result set is open on the connection.
func (r *ListRepository) load(where string, arg any) ([]models.List, error) {
	rows, err := r.db.Query(`
		SELECT l.id, l.name
		FROM lists l
		WHERE `+where+` AND l.deleted_at IS NULL
		ORDER BY l.sequence DESC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query lists: %w", err)
	}

	lists := []models.List{}
	index := make(map[string]int)
	for rows.Next() {
		l := models.List{Persisted: true, Songs: []models.SongItem{}, Cards: []models.CardItem{}}
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		index[l.ID] = len(lists)
		lists = append(lists, l)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	if len(lists) == 0 {
		return lists, nil
	}

	rows, err = r.db.Query(`
		SELECT ls.list_id, ls.position, s.id, s.title, s.verses
		FROM list_songs ls
		JOIN songs s ON s.id = ls.song_id
		JOIN lists l ON l.id = ls.list_id
		WHERE `+where+` AND l.deleted_at IS NULL
		ORDER BY ls.position ASC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query list songs: %w", err)
	}
	for rows.Next() {
		var (
			listID string
			item   models.SongItem
			verses string
		)
		if err := rows.Scan(&listID, &item.Order, &item.Song.ID, &item.Song.Title, &verses); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan list song: %w", err)
		}
		if err := json.Unmarshal([]byte(verses), &item.Song.Verses); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode verses of %s: %w", item.Song.ID, err)
		}
		i := index[listID]
		lists[i].Songs = append(lists[i].Songs, item)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	rows, err = r.db.Query(`
		SELECT lc.list_id, lc.position, c.id, c.name, c.title, c.type, c.image_urls
		FROM list_cards lc
		JOIN cards c ON c.id = lc.card_id
		JOIN lists l ON l.id = lc.list_id
		WHERE `+where+` AND l.deleted_at IS NULL
		ORDER BY lc.position ASC
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query list cards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			listID string
			item   models.CardItem
			urls   string
		)
		if err := rows.Scan(&listID, &item.Order, &item.Card.ID, &item.Card.Name, &item.Card.Title, &item.Card.Type, &urls); err != nil {
			return nil, fmt.Errorf("failed to scan list card: %w", err)
		}
		if err := json.Unmarshal([]byte(urls), &item.Card.ImageURLs); err != nil {
			return nil, fmt.Errorf("failed to decode image urls of %s: %w", item.Card.ID, err)
		}
		i := index[listID]
		lists[i].Cards = append(lists[i].Cards, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return lists, nil
}

// insertItems writes the membership rows of update, rejecting ids missing from the catalog.
func insertItems(tx *sql.Tx, listID string, update models.ListUpdate) error {
	for _, o := range update.Songs {
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM songs WHERE id = ?)`, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check song: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", shared.ErrSongNotFound, o.ID)
		}
		if _, err := tx.Exec(`INSERT INTO list_songs (list_id, song_id, position) VALUES (?, ?, ?)`, listID, o.ID, o.Order); err != nil {
			return fmt.Errorf("failed to insert list song: %w", err)
		}
	}

	for _, o := range update.Cards {
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM cards WHERE id = ?)`, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check card: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", shared.ErrCardNotFound, o.ID)
		}
		if _, err := tx.Exec(`INSERT INTO list_cards (list_id, card_id, position) VALUES (?, ?, ?)`, listID, o.ID, o.Order); err != nil {
			return fmt.Errorf("failed to insert list card: %w", err)
		}
	}
	return nil
}

// ValidateUpdate checks that update is named and that its song and card orders together
// form exactly 1..N with no repeated ids within a kind.
func ValidateUpdate(update models.ListUpdate) error {
	if strings.TrimSpace(update.Name) == "" {
		return fmt.Errorf("%w: list name is required", shared.ErrInvalidInput)
	}

	n := len(update.Songs) + len(update.Cards)
	seen := make([]bool, n+1)
	check := func(kind string, items []models.ItemOrder) error {
		ids := make(map[string]bool, len(items))
		for _, o := range items {
			if ids[o.ID] {
				return fmt.Errorf("%w: %s %s", shared.ErrDuplicateItem, kind, o.ID)
			}
			ids[o.ID] = true
			if o.Order < 1 || o.Order > n || seen[o.Order] {
				return fmt.Errorf("%w: %s %s has order %d", shared.ErrInvalidOrder, kind, o.ID, o.Order)
			}
			seen[o.Order] = true
		}
		return nil
	}

	if err := check("song", update.Songs); err != nil {
		return err
	}
	return check("card", update.Cards)
}
