package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
)

// SongRepository stores the song catalog.
type SongRepository struct {
	db *sql.DB
}

// NewSongRepository creates a new SongRepository with the given database connection
func NewSongRepository(db *sql.DB) *SongRepository {
	return &SongRepository{db: db}
}

// Create inserts song, generating an ID when it has none
func (r *SongRepository) Create(song *models.Song) error {
	if strings.TrimSpace(song.Title) == "" {
		return fmt.Errorf("%w: song title is required", shared.ErrInvalidInput)
	}
	if song.ID == "" {
		song.ID = shared.GenerateID()
	}
	if song.Verses == nil {
		song.Verses = []string{}
	}

	verses, err := json.Marshal(song.Verses)
	if err != nil {
		return fmt.Errorf("failed to encode verses: %w", err)
	}

	_, err = r.db.Exec(`INSERT INTO songs (id, title, verses) VALUES (?, ?, ?)`, song.ID, song.Title, string(verses))
	if err != nil {
		return fmt.Errorf("failed to insert song: %w", err)
	}
	return nil
}

// Get retrieves a song by ID
func (r *SongRepository) Get(id string) (*models.Song, error) {
	row := r.db.QueryRow(`SELECT id, title, verses FROM songs WHERE id = ?`, id)

	var (
		song   models.Song
		verses string
	)
	if err := row.Scan(&song.ID, &song.Title, &verses); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", shared.ErrSongNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan song: %w", err)
	}
	if err := json.Unmarshal([]byte(verses), &song.Verses); err != nil {
		return nil, fmt.Errorf("failed to decode verses of %s: %w", id, err)
	}
	return &song, nil
}

// List returns every song ordered by title
func (r *SongRepository) List() ([]models.Song, error) {
	rows, err := r.db.Query(`SELECT id, title, verses FROM songs ORDER BY title ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	songs := []models.Song{}
	for rows.Next() {
		var (
			song   models.Song
			verses string
		)
		if err := rows.Scan(&song.ID, &song.Title, &verses); err != nil {
			return nil, fmt.Errorf("failed to scan song: %w", err)
		}
		if err := json.Unmarshal([]byte(verses), &song.Verses); err != nil {
			return nil, fmt.Errorf("failed to decode verses of %s: %w", song.ID, err)
		}
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return songs, nil
}

// CardRepository stores the card catalog.
type CardRepository struct {
	db *sql.DB
}

// NewCardRepository creates a new CardRepository with the given database connection
func NewCardRepository(db *sql.DB) *CardRepository {
	return &CardRepository{db: db}
}

// Create inserts card, generating an ID when it has none
func (r *CardRepository) Create(card *models.Card) error {
	if strings.TrimSpace(card.Name) == "" {
		return fmt.Errorf("%w: card name is required", shared.ErrInvalidInput)
	}
	if card.ID == "" {
		card.ID = shared.GenerateID()
	}
	if card.ImageURLs == nil {
		card.ImageURLs = []string{}
	}

	urls, err := json.Marshal(card.ImageURLs)
	if err != nil {
		return fmt.Errorf("failed to encode image urls: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO cards (id, name, title, type, image_urls) VALUES (?, ?, ?, ?, ?)`,
		card.ID, card.Name, card.Title, card.Type, string(urls),
	)
	if err != nil {
		return fmt.Errorf("failed to insert card: %w", err)
	}
	return nil
}

// Get retrieves a card by ID
func (r *CardRepository) Get(id string) (*models.Card, error) {
	card, err := scanCard(r.db.QueryRow(`SELECT id, name, title, type, image_urls FROM cards WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrCardNotFound, id)
	}
	return card, err
}

// List returns every card ordered by name
func (r *CardRepository) List() ([]models.Card, error) {
	rows, err := r.db.Query(`SELECT id, name, title, type, image_urls FROM cards ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	cards := []models.Card{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *card)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return cards, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(row scanner) (*models.Card, error) {
	var (
		card models.Card
		urls string
	)
	if err := row.Scan(&card.ID, &card.Name, &card.Title, &card.Type, &urls); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan card: %w", err)
	}
	if err := json.Unmarshal([]byte(urls), &card.ImageURLs); err != nil {
		return nil, fmt.Errorf("failed to decode image urls of %s: %w", card.ID, err)
	}
	return &card, nil
}
