package drafts

import (
	"encoding/json"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/ordering"
)

// decode parses a stored slot, keeping every entry that can be repaired.
//
// Entries without an id or name and repeated list ids are discarded. Items without an
// id and repeated item ids are dropped. Orders that are not a permutation of 1..N are
// renumbered in their current sort order.
func decode(raw string, logger *log.Logger) []models.List {
	lists := []models.List{}
	if strings.TrimSpace(raw) == "" {
		return lists
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		logger.Warn("discarding corrupt drafts", "error", err)
		return lists
	}

	seen := make(map[string]bool, len(entries))
	for i, entry := range entries {
		var l models.List
		if err := json.Unmarshal(entry, &l); err != nil {
			logger.Warn("discarding invalid draft", "index", i, "error", err)
			continue
		}
		if err := l.Validate(); err != nil {
			logger.Warn("discarding invalid draft", "index", i, "error", err)
			continue
		}
		if seen[l.ID] {
			logger.Warn("discarding duplicate draft", "id", l.ID)
			continue
		}
		seen[l.ID] = true

		lists = append(lists, repair(l, logger))
	}
	return lists
}

func repair(l models.List, logger *log.Logger) models.List {
	ids := make(map[string]bool, l.Len())

	songs := make([]models.SongItem, 0, len(l.Songs))
	for _, s := range l.Songs {
		if s.Song.ID == "" || ids[s.Song.ID] {
			continue
		}
		ids[s.Song.ID] = true
		songs = append(songs, s)
	}

	cards := make([]models.CardItem, 0, len(l.Cards))
	for _, c := range l.Cards {
		if c.Card.ID == "" || ids[c.Card.ID] {
			continue
		}
		ids[c.Card.ID] = true
		cards = append(cards, c)
	}

	if err := ordering.Validate(songs, cards); err != nil {
		logger.Warn("renumbering draft", "id", l.ID, "error", err)
		songs, cards = ordering.Renumber(songs, cards)
	}

	l.Songs = songs
	l.Cards = cards
	l.Persisted = false
	return l
}
