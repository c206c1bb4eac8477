package services

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/repositories"
	"github.com/desertthunder/setlist/internal/shared"
)

// LocalStore is a [Backend] over the SQLite repositories.
//
// It serves the CLI directly and sits behind the HTTP server. Every successful write
// notifies the registered change listeners with the owning scope.
type LocalStore struct {
	lists  *repositories.ListRepository
	songs  *repositories.SongRepository
	cards  *repositories.CardRepository
	logger *log.Logger

	mu        sync.Mutex
	listeners []func(models.Scope)
}

// NewLocalStore creates a store over db, which must already be migrated.
func NewLocalStore(db *sql.DB, logger *log.Logger) *LocalStore {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &LocalStore{
		lists:  repositories.NewListRepository(db),
		songs:  repositories.NewSongRepository(db),
		cards:  repositories.NewCardRepository(db),
		logger: shared.WithLogger(logger, "component", "store"),
	}
}

// OnChange registers fn to run after every list write.
func (s *LocalStore) OnChange(fn func(models.Scope)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *LocalStore) notify(scopeKey string) {
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(models.Scope{Key: scopeKey})
	}
}

func requireScope(scope models.Scope) error {
	if !scope.Authenticated() || scope.Key == "" {
		return fmt.Errorf("%w: lists are stored per signed-in user", shared.ErrNotAuthenticated)
	}
	return nil
}

// ListAllLists returns every list of scope, newest first.
func (s *LocalStore) ListAllLists(ctx context.Context, scope models.Scope) ([]models.List, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	return s.lists.List(scope.Key)
}

// CreateList persists a new list owned by scope.
func (s *LocalStore) CreateList(ctx context.Context, name string, scope models.Scope, items models.ListUpdate) (string, error) {
	if err := requireScope(scope); err != nil {
		return "", err
	}

	items.Name = name
	id, err := s.lists.Create(scope.Key, items)
	if err != nil {
		return "", err
	}

	s.logger.Info("list created", "id", id, "scope", scope.Key, "items", len(items.Songs)+len(items.Cards))
	s.notify(scope.Key)
	return id, nil
}

// UpdateList replaces the name and every item order of list id.
func (s *LocalStore) UpdateList(ctx context.Context, id string, update models.ListUpdate) error {
	owner, err := s.lists.Owner(id)
	if err != nil {
		return err
	}
	if err := s.lists.Update(id, update); err != nil {
		return err
	}

	s.logger.Debug("list updated", "id", id, "scope", owner)
	s.notify(owner)
	return nil
}

// DeleteList removes list id.
func (s *LocalStore) DeleteList(ctx context.Context, id string) error {
	owner, err := s.lists.Owner(id)
	if err != nil {
		return err
	}
	if err := s.lists.Delete(id); err != nil {
		return err
	}

	s.logger.Info("list deleted", "id", id, "scope", owner)
	s.notify(owner)
	return nil
}

// Songs returns the song catalog.
func (s *LocalStore) Songs(ctx context.Context) ([]models.Song, error) {
	return s.songs.List()
}

// Song returns one catalog song.
func (s *LocalStore) Song(ctx context.Context, id string) (*models.Song, error) {
	return s.songs.Get(id)
}

// Cards returns the card catalog.
func (s *LocalStore) Cards(ctx context.Context) ([]models.Card, error) {
	return s.cards.List()
}

// Card returns one catalog card.
func (s *LocalStore) Card(ctx context.Context, id string) (*models.Card, error) {
	return s.cards.Get(id)
}

// AddSong adds song to the catalog.
func (s *LocalStore) AddSong(ctx context.Context, song models.Song) (models.Song, error) {
	if err := s.songs.Create(&song); err != nil {
		return models.Song{}, err
	}
	s.logger.Info("song added", "id", song.ID, "title", song.Title)
	return song, nil
}

// AddCard adds card to the catalog.
func (s *LocalStore) AddCard(ctx context.Context, card models.Card) (models.Card, error) {
	if err := s.cards.Create(&card); err != nil {
		return models.Card{}, err
	}
	s.logger.Info("card added", "id", card.ID, "name", card.Name)
	return card, nil
}
