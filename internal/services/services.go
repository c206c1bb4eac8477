package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
)

// RemoteStore persists lists on behalf of an identity scope.
type RemoteStore interface {
	// ListAllLists returns every persisted list of scope, newest first.
	ListAllLists(ctx context.Context, scope models.Scope) ([]models.List, error)

	// CreateList persists a new list with the given items and returns its server-assigned id.
	CreateList(ctx context.Context, name string, scope models.Scope, items models.ListUpdate) (string, error)

	// UpdateList replaces the name and every item order of a list in one request.
	UpdateList(ctx context.Context, id string, update models.ListUpdate) error

	// DeleteList removes a list.
	DeleteList(ctx context.Context, id string) error
}

// Catalog is the read-only collection of songs and cards lists refer to.
type Catalog interface {
	Songs(ctx context.Context) ([]models.Song, error)
	Song(ctx context.Context, id string) (*models.Song, error)
	Cards(ctx context.Context) ([]models.Card, error)
	Card(ctx context.Context, id string) (*models.Card, error)
}

// Backend is a remote store that also serves its catalog.
type Backend interface {
	RemoteStore
	Catalog
}

// ResolveItem looks up id in catalog as kind and wraps it as an ordered item.
func ResolveItem(ctx context.Context, catalog Catalog, kind models.ItemKind, id string, order int) (models.OrderedItem, error) {
	switch kind {
	case models.KindSong:
		s, err := catalog.Song(ctx, id)
		if err != nil {
			return models.OrderedItem{}, err
		}
		return models.NewSongItem(*s, order), nil
	case models.KindCard:
		c, err := catalog.Card(ctx, id)
		if err != nil {
			return models.OrderedItem{}, err
		}
		return models.NewCardItem(*c, order), nil
	default:
		return models.OrderedItem{}, fmt.Errorf("%w: item kind %v", shared.ErrInvalidArgument, kind)
	}
}
