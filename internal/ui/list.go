package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/setlist/internal/models"
)

var (
	_ list.Item = listItem{}
	_ list.Item = entryItem{}
)

// listItem wraps [models.List] to implement [list.Item].
type listItem struct {
	list  models.List
	draft bool
}

func (i listItem) FilterValue() string { return i.list.Name }
func (i listItem) Title() string {
	if i.draft {
		return i.list.Name + " " + styles.draft.Render("(draft)")
	}
	return i.list.Name
}
func (i listItem) Description() string {
	return fmt.Sprintf("%d songs • %d cards", len(i.list.Songs), len(i.list.Cards))
}

// entryItem wraps [models.OrderedItem] to implement [list.Item].
//
// Used for both a list's running order and the catalog picker.
type entryItem struct {
	item models.OrderedItem
}

func (i entryItem) FilterValue() string { return i.item.Title() }
func (i entryItem) Title() string {
	if i.item.Order > 0 {
		return fmt.Sprintf("%d. %s", i.item.Order, i.item.Title())
	}
	return i.item.Title()
}
func (i entryItem) Description() string {
	switch i.item.Kind {
	case models.KindSong:
		return fmt.Sprintf("%s • %d verses", styles.kind("song"), len(i.item.Song.Verses))
	case models.KindCard:
		if i.item.Card.Type != "" {
			return styles.kind("card") + " • " + i.item.Card.Type
		}
		return styles.kind("card")
	}
	return ""
}

func listItems(lists []models.List, isDraft func(string) bool) []list.Item {
	items := make([]list.Item, len(lists))
	for i, l := range lists {
		items[i] = listItem{list: l, draft: isDraft(l.ID)}
	}
	return items
}

func entryItems(entries []models.OrderedItem) []list.Item {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = entryItem{item: e}
	}
	return items
}
