package models

import (
	"fmt"
	"strings"
)

// Song is a catalog song. Verses are rendered one per slide.
type Song struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Verses []string `json:"verses"`
}

// Card is a catalog card, a visual slide backed by one or more images.
type Card struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Title     string   `json:"title,omitempty"`
	Type      string   `json:"type,omitempty"`
	ImageURLs []string `json:"imageUrls,omitempty"`
}

// SongItem positions a [Song] within a [List].
type SongItem struct {
	Order int  `json:"order"`
	Song  Song `json:"song"`
}

// CardItem positions a [Card] within a [List].
type CardItem struct {
	Order int  `json:"order"`
	Card  Card `json:"card"`
}

// List is a presentation.
//
// Persisted is false for drafts, which exist only on the client until promoted.
type List struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Songs     []SongItem `json:"songs"`
	Cards     []CardItem `json:"cards"`
	Persisted bool       `json:"persisted"`
}

// Len returns the number of items in the list.
func (l List) Len() int {
	return len(l.Songs) + len(l.Cards)
}

// Clone returns a deep copy of the list so callers can mutate it without aliasing.
func (l List) Clone() List {
	c := l
	c.Songs = make([]SongItem, len(l.Songs))
	copy(c.Songs, l.Songs)
	c.Cards = make([]CardItem, len(l.Cards))
	copy(c.Cards, l.Cards)
	return c
}

// Validate checks the list has an id and a non-blank name.
func (l List) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("list id is required")
	}
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("list name is required")
	}
	return nil
}

// ItemKind tags an [OrderedItem].
type ItemKind int

const (
	KindSong ItemKind = iota + 1
	KindCard
)

func (k ItemKind) String() string {
	switch k {
	case KindSong:
		return "song"
	case KindCard:
		return "card"
	default:
		return "unknown"
	}
}

// ParseItemKind parses "song" or "card".
func ParseItemKind(s string) (ItemKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "song":
		return KindSong, nil
	case "card":
		return KindCard, nil
	default:
		return 0, fmt.Errorf("unknown item kind %q", s)
	}
}

// OrderedItem is either a song or a card with its order.
//
// Exactly one of Song and Card is set, as indicated by Kind. Build values with
// [NewSongItem] and [NewCardItem].
type OrderedItem struct {
	Kind  ItemKind
	Order int
	Song  *Song
	Card  *Card
}

// NewSongItem wraps a song.
func NewSongItem(s Song, order int) OrderedItem {
	return OrderedItem{Kind: KindSong, Order: order, Song: &s}
}

// NewCardItem wraps a card.
func NewCardItem(c Card, order int) OrderedItem {
	return OrderedItem{Kind: KindCard, Order: order, Card: &c}
}

// ID returns the id of the wrapped song or card.
func (i OrderedItem) ID() string {
	switch i.Kind {
	case KindSong:
		if i.Song != nil {
			return i.Song.ID
		}
	case KindCard:
		if i.Card != nil {
			return i.Card.ID
		}
	}
	return ""
}

// Title returns a display title for the wrapped song or card.
func (i OrderedItem) Title() string {
	switch i.Kind {
	case KindSong:
		if i.Song != nil {
			return i.Song.Title
		}
	case KindCard:
		if i.Card != nil {
			if i.Card.Title != "" {
				return i.Card.Title
			}
			return i.Card.Name
		}
	}
	return ""
}

// Valid reports whether the tag matches the populated payload.
func (i OrderedItem) Valid() bool {
	switch i.Kind {
	case KindSong:
		return i.Song != nil && i.Card == nil && i.Song.ID != ""
	case KindCard:
		return i.Card != nil && i.Song == nil && i.Card.ID != ""
	default:
		return false
	}
}

// ItemOrder is one entry of a [ListUpdate].
type ItemOrder struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}

// ListUpdate is the full replacement state of a list as written to the remote store.
type ListUpdate struct {
	Name  string      `json:"name"`
	Songs []ItemOrder `json:"songs"`
	Cards []ItemOrder `json:"cards"`
}

// UpdateFromList builds the [ListUpdate] carrying the name and per-kind id/order pairs of l.
func UpdateFromList(l List) ListUpdate {
	u := ListUpdate{
		Name:  l.Name,
		Songs: make([]ItemOrder, 0, len(l.Songs)),
		Cards: make([]ItemOrder, 0, len(l.Cards)),
	}
	for _, s := range l.Songs {
		u.Songs = append(u.Songs, ItemOrder{ID: s.Song.ID, Order: s.Order})
	}
	for _, c := range l.Cards {
		u.Cards = append(u.Cards, ItemOrder{ID: c.Card.ID, Order: c.Order})
	}
	return u
}

// AnonymousScopeKey is the partition key used when no principal is signed in.
const AnonymousScopeKey = "anon"

// Scope partitions drafts and cached lists by identity.
//
// Scope values are comparable: two scopes resolved from the same principal are equal.
type Scope struct {
	Key    string `json:"key"`
	UserID string `json:"userId,omitempty"`
}

// AnonymousScope returns the scope used when no principal is signed in.
func AnonymousScope() Scope {
	return Scope{Key: AnonymousScopeKey}
}

// Authenticated reports whether the scope belongs to a signed-in principal.
func (s Scope) Authenticated() bool {
	return s.UserID != ""
}

func (s Scope) String() string {
	if s.Key == "" {
		return AnonymousScopeKey
	}
	return s.Key
}
