// Package ordering merges songs and cards into one ordered sequence and re-derives
// per-kind order fields from a global permutation.
//
// Inputs are never modified.
package ordering

import (
	"fmt"
	"sort"

	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
)

// CombineAndSort concatenates songs and cards and sorts them ascending by order.
//
// Equal orders put songs before cards, then keep the original array order.
func CombineAndSort(songs []models.SongItem, cards []models.CardItem) []models.OrderedItem {
	items := make([]models.OrderedItem, 0, len(songs)+len(cards))
	for _, s := range songs {
		items = append(items, models.NewSongItem(s.Song, s.Order))
	}
	for _, c := range cards {
		items = append(items, models.NewCardItem(c.Card, c.Order))
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].Kind == models.KindSong && items[j].Kind == models.KindCard
	})
	return items
}

// Split partitions ordered items back into per-kind arrays, keeping each item's order.
func Split(items []models.OrderedItem) ([]models.SongItem, []models.CardItem) {
	songs := make([]models.SongItem, 0, len(items))
	cards := make([]models.CardItem, 0, len(items))
	for _, it := range items {
		switch it.Kind {
		case models.KindSong:
			if it.Song != nil {
				songs = append(songs, models.SongItem{Order: it.Order, Song: *it.Song})
			}
		case models.KindCard:
			if it.Card != nil {
				cards = append(cards, models.CardItem{Order: it.Order, Card: *it.Card})
			}
		}
	}
	return songs, cards
}

// ApplyPermutation re-derives every item's order as its 1-based position in orderedIDs
// and partitions the result back into songs and cards.
//
// Ids in orderedIDs that are not in current are ignored and repeated ids keep their first
// position, so orders stay dense. Items of current whose id is missing from orderedIDs
// are dropped and their ids returned in dropped.
func ApplyPermutation(current []models.OrderedItem, orderedIDs []string) (songs []models.SongItem, cards []models.CardItem, dropped []string) {
	byID := make(map[string]models.OrderedItem, len(current))
	for _, it := range current {
		if id := it.ID(); id != "" {
			if _, ok := byID[id]; !ok {
				byID[id] = it
			}
		}
	}

	seen := make(map[string]bool, len(orderedIDs))
	reordered := make([]models.OrderedItem, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		it, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		it.Order = len(reordered) + 1
		reordered = append(reordered, it)
	}

	for _, it := range current {
		if id := it.ID(); id != "" && !seen[id] {
			dropped = append(dropped, id)
			seen[id] = true
		}
	}

	songs, cards = Split(reordered)
	return songs, cards, dropped
}

// Renumber rewrites orders to 1..N following the current sort order.
func Renumber(songs []models.SongItem, cards []models.CardItem) ([]models.SongItem, []models.CardItem) {
	items := CombineAndSort(songs, cards)
	for i := range items {
		items[i].Order = i + 1
	}
	return Split(items)
}

// Insert places item at position order, shifting later items down.
//
// Orders outside 1..N+1 are clamped; order <= 0 appends. The item id must not already
// be in the list.
func Insert(songs []models.SongItem, cards []models.CardItem, item models.OrderedItem, order int) ([]models.SongItem, []models.CardItem, error) {
	if !item.Valid() {
		return nil, nil, fmt.Errorf("%w: item kind does not match its payload", shared.ErrInvalidInput)
	}
	if Contains(songs, cards, item.ID()) {
		return nil, nil, fmt.Errorf("%w: %s", shared.ErrDuplicateItem, item.ID())
	}

	items := CombineAndSort(songs, cards)
	n := len(items)
	if order <= 0 || order > n+1 {
		order = n + 1
	}

	out := make([]models.OrderedItem, 0, n+1)
	out = append(out, items[:order-1]...)
	out = append(out, item)
	out = append(out, items[order-1:]...)
	for i := range out {
		out[i].Order = i + 1
	}

	s, c := Split(out)
	return s, c, nil
}

// Remove deletes the item with id and closes the gap. The second return is false when
// no item has that id.
func Remove(songs []models.SongItem, cards []models.CardItem, id string) ([]models.SongItem, []models.CardItem, bool) {
	items := CombineAndSort(songs, cards)
	out := make([]models.OrderedItem, 0, len(items))
	found := false
	for _, it := range items {
		if !found && it.ID() == id {
			found = true
			continue
		}
		out = append(out, it)
	}
	if !found {
		return songs, cards, false
	}

	for i := range out {
		out[i].Order = i + 1
	}
	s, c := Split(out)
	return s, c, true
}

// Validate checks that the combined orders form a permutation of 1..N and that item ids
// are unique across both kinds.
func Validate(songs []models.SongItem, cards []models.CardItem) error {
	n := len(songs) + len(cards)
	orders := make(map[int]bool, n)
	ids := make(map[string]bool, n)

	check := func(id string, order int) error {
		if id == "" {
			return fmt.Errorf("%w: item without id", shared.ErrInvalidOrder)
		}
		if ids[id] {
			return fmt.Errorf("%w: %s", shared.ErrDuplicateItem, id)
		}
		ids[id] = true
		if order < 1 || order > n {
			return fmt.Errorf("%w: order %d outside 1..%d", shared.ErrInvalidOrder, order, n)
		}
		if orders[order] {
			return fmt.Errorf("%w: order %d used twice", shared.ErrInvalidOrder, order)
		}
		orders[order] = true
		return nil
	}

	for _, s := range songs {
		if err := check(s.Song.ID, s.Order); err != nil {
			return err
		}
	}
	for _, c := range cards {
		if err := check(c.Card.ID, c.Order); err != nil {
			return err
		}
	}
	return nil
}

// IDs returns the ids of items in sequence.
func IDs(items []models.OrderedItem) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID())
	}
	return ids
}

// Contains reports whether any song or card in the list has id.
func Contains(songs []models.SongItem, cards []models.CardItem, id string) bool {
	for _, s := range songs {
		if s.Song.ID == id {
			return true
		}
	}
	for _, c := range cards {
		if c.Card.ID == id {
			return true
		}
	}
	return false
}

// Move shifts the item with id by delta positions, clamped to the list bounds, and
// returns the new id sequence for [ApplyPermutation].
func Move(items []models.OrderedItem, id string, delta int) []string {
	ids := IDs(items)
	from := -1
	for i, v := range ids {
		if v == id {
			from = i
			break
		}
	}
	if from < 0 {
		return ids
	}

	to := max(0, min(len(ids)-1, from+delta))
	if to == from {
		return ids
	}

	moved := ids[from]
	ids = append(ids[:from], ids[from+1:]...)
	ids = append(ids[:to], append([]string{moved}, ids[to:]...)...)
	return ids
}
