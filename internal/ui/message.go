package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/presentation"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgListsLoaded MsgKind = iota
	MsgEngineEvent
	MsgEventsClosed
	MsgCatalogLoaded
	MsgOpDone
)

type listsLoaded struct {
	lists []models.List
	err   error
}

type catalogLoaded struct {
	items []models.OrderedItem
	err   error
}

type opDone struct {
	status string
	from   string // draft id, when a promote finished
	id     string
	err    error
}

// listsLoadedMsg is the constructor for [MsgListsLoaded]
func listsLoadedMsg(lists []models.List, err error) Msg {
	return Msg{kind: MsgListsLoaded, data: listsLoaded{lists, err}}
}

// engineEventMsg is the constructor for [MsgEngineEvent]
func engineEventMsg(ev presentation.Event) Msg {
	return Msg{kind: MsgEngineEvent, data: ev}
}

// eventsClosedMsg is the constructor for [MsgEventsClosed]
func eventsClosedMsg() Msg {
	return Msg{kind: MsgEventsClosed}
}

// catalogLoadedMsg is the constructor for [MsgCatalogLoaded]
func catalogLoadedMsg(items []models.OrderedItem, err error) Msg {
	return Msg{kind: MsgCatalogLoaded, data: catalogLoaded{items, err}}
}

// opDoneMsg is the constructor for [MsgOpDone]
func opDoneMsg(status string, err error) Msg {
	return Msg{kind: MsgOpDone, data: opDone{status: status, err: err}}
}

// promotedMsg is the constructor for [MsgOpDone] after a draft was saved as id
func promotedMsg(from, id string, err error) Msg {
	return Msg{kind: MsgOpDone, data: opDone{status: "saved", from: from, id: id, err: err}}
}
