package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/services"
	"github.com/desertthunder/setlist/internal/shared"
	"github.com/urfave/cli/v3"
)

// localStore returns the backend when it is the local database; catalog edits are not served over HTTP.
func (r *Runner) localStore() (*services.LocalStore, error) {
	backend, err := r.openBackend()
	if err != nil {
		return nil, err
	}
	store, ok := backend.(*services.LocalStore)
	if !ok {
		return nil, fmt.Errorf("%w: catalog edits need the local database (unset remote.url)", shared.ErrNotImplemented)
	}
	return store, nil
}

// CatalogSongs lists the song catalog.
func (r *Runner) CatalogSongs(ctx context.Context, cmd *cli.Command) error {
	backend, err := r.openBackend()
	if err != nil {
		return err
	}
	songs, err := backend.Songs(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(songs, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Songs (%d)", len(songs)))
	for _, s := range songs {
		r.writePlain("%-36s  %s (%d verses)\n", s.ID, s.Title, len(s.Verses))
	}
	return nil
}

// CatalogCards lists the card catalog.
func (r *Runner) CatalogCards(ctx context.Context, cmd *cli.Command) error {
	backend, err := r.openBackend()
	if err != nil {
		return err
	}
	cards, err := backend.Cards(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(cards, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Cards (%d)", len(cards)))
	for _, c := range cards {
		r.writePlain("%-36s  %s [%s]\n", c.ID, c.Name, c.Type)
	}
	return nil
}

// CatalogAddSong adds a song to the local catalog.
func (r *Runner) CatalogAddSong(ctx context.Context, cmd *cli.Command) error {
	store, err := r.localStore()
	if err != nil {
		return err
	}

	song, err := store.AddSong(ctx, models.Song{
		ID:     cmd.String("id"),
		Title:  cmd.String("title"),
		Verses: cmd.StringSlice("verse"),
	})
	if err != nil {
		return err
	}
	return r.writePlain("✓ Added song %s (%s)\n", song.Title, song.ID)
}

// CatalogAddCard adds a card to the local catalog.
func (r *Runner) CatalogAddCard(ctx context.Context, cmd *cli.Command) error {
	store, err := r.localStore()
	if err != nil {
		return err
	}

	card, err := store.AddCard(ctx, models.Card{
		ID:        cmd.String("id"),
		Name:      cmd.String("name"),
		Title:     cmd.String("title"),
		Type:      cmd.String("type"),
		ImageURLs: cmd.StringSlice("image"),
	})
	if err != nil {
		return err
	}
	return r.writePlain("✓ Added card %s (%s)\n", card.Name, card.ID)
}
