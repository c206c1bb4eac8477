package ui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/ordering"
	"github.com/desertthunder/setlist/internal/presentation"
	"github.com/desertthunder/setlist/internal/services"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ListsView ViewState = iota
	ItemsView
	CatalogView
	InputView
	ConfirmView
)

type inputMode int

const (
	inputCreate inputMode = iota
	inputRename
)

// Editor is the list engine surface the TUI drives, implemented by [presentation.Engine].
type Editor interface {
	Read(ctx context.Context) ([]models.List, error)
	Lists() []models.List
	Get(id string) (models.List, bool)
	IsDraft(id string) bool
	SetActive(id string) error
	Create(name string) (models.List, error)
	Rename(id, name string) error
	AddItem(id string, item models.OrderedItem, order int) error
	RemoveItem(id, itemID string) error
	Reorder(id string, orderedIDs []string) error
	Delete(ctx context.Context, id string) error
	Promote(ctx context.Context, draftID string) (string, error)
	Subscribe() <-chan presentation.Event
}

var _ Editor = (*presentation.Engine)(nil)

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	view      ViewState
	returnTo  ViewState
	editor    Editor
	catalog   services.Catalog
	events    <-chan presentation.Event
	width     int
	height    int
	lists     list.Model
	items     list.Model
	picker    list.Model
	input     textinput.Model
	mode      inputMode
	current   string // list open in ItemsView
	target    string // list being renamed or deleted
	promoting string
	status    string
	err       error
	help      help.Model
	keys      keyMap
}

// NewModel creates a new TUI model over editor, picking items from catalog.
func NewModel(ctx context.Context, editor Editor, catalog services.Catalog) *Model {
	newList := func(title string) list.Model {
		l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
		l.Title = title
		l.SetShowHelp(false)
		return l
	}

	input := textinput.New()
	input.Placeholder = "List name"
	input.CharLimit = 120

	return &Model{
		ctx:     ctx,
		view:    ListsView,
		editor:  editor,
		catalog: catalog,
		events:  editor.Subscribe(),
		lists:   newList("Lists"),
		items:   newList(""),
		picker:  newList("Add to list"),
		input:   input,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init loads the lists and starts listening for engine events.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.waitForEvent())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		for _, l := range []*list.Model{&m.lists, &m.items, &m.picker} {
			l.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.view {
		case ListsView:
			return m.handleListsKeys(msg)
		case ItemsView:
			return m.handleItemsKeys(msg)
		case CatalogView:
			return m.handleCatalogKeys(msg)
		case InputView:
			return m.handleInputKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgListsLoaded:
		data := msg.data.(listsLoaded)
		m.err = data.err
		return m, m.refresh()

	case MsgEngineEvent:
		ev := msg.data.(presentation.Event)
		switch ev.Kind {
		case presentation.ScopeChanged:
			m.current, m.view = "", ListsView
			m.status = "signed in as " + ev.Message
		case presentation.ReorderPruned:
			m.status = styles.draft.Render(ev.Message)
		case presentation.Flushed:
			m.status = "saved"
		case presentation.FlushFailed:
			m.err = ev.Err
		}
		return m, tea.Batch(m.refresh(), m.waitForEvent())

	case MsgEventsClosed:
		return m, nil

	case MsgCatalogLoaded:
		data := msg.data.(catalogLoaded)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.view = CatalogView
		return m, m.picker.SetItems(entryItems(data.items))

	case MsgOpDone:
		data := msg.data.(opDone)
		if data.from == m.promoting {
			m.promoting = ""
		}
		if data.err != nil {
			m.err = data.err
		} else {
			m.status = data.status
			if data.id != "" && data.from == m.current {
				m.current = data.id
			}
		}
		return m, m.refresh()
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case ListsView:
		body = m.renderLists()
	case ItemsView:
		body = m.renderItems()
	case CatalogView:
		body = m.renderCatalog()
	case InputView:
		body = m.renderInput()
	case ConfirmView:
		body = m.renderConfirm()
	}

	switch {
	case m.err != nil:
		body += "\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	case m.status != "":
		body += "\n" + styles.status.Render(m.status)
	}
	return body
}

func (m *Model) handleListsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.lists.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}
	m.err, m.status = nil, ""

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if sel, ok := m.lists.SelectedItem().(listItem); ok {
			return m, m.open(sel.list.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.create):
		return m, m.prompt(inputCreate, "", "")
	case key.Matches(msg, m.keys.rename):
		if sel, ok := m.lists.SelectedItem().(listItem); ok {
			return m, m.prompt(inputRename, sel.list.ID, sel.list.Name)
		}
		return m, nil
	case key.Matches(msg, m.keys.delete):
		if sel, ok := m.lists.SelectedItem().(listItem); ok {
			m.confirm(sel.list.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.promote):
		if sel, ok := m.lists.SelectedItem().(listItem); ok {
			return m, m.promote(sel.list.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.load()
	}

	return m.updateLists(msg)
}

func (m *Model) handleItemsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.items.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}
	m.err, m.status = nil, ""

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view, m.current = ListsView, ""
		return m, m.refresh()
	case key.Matches(msg, m.keys.add):
		return m, m.loadCatalog()
	case key.Matches(msg, m.keys.remove):
		if sel, ok := m.items.SelectedItem().(entryItem); ok {
			m.err = m.editor.RemoveItem(m.current, sel.item.ID())
			return m, m.refresh()
		}
		return m, nil
	case key.Matches(msg, m.keys.moveUp):
		return m, m.move(-1)
	case key.Matches(msg, m.keys.moveDown):
		return m, m.move(1)
	case key.Matches(msg, m.keys.rename):
		if l, ok := m.editor.Get(m.current); ok {
			return m, m.prompt(inputRename, l.ID, l.Name)
		}
		return m, nil
	case key.Matches(msg, m.keys.promote):
		return m, m.promote(m.current)
	case key.Matches(msg, m.keys.delete):
		m.confirm(m.current)
		return m, nil
	}

	return m.updateLists(msg)
}

func (m *Model) handleCatalogKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.picker.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = ItemsView
		return m, nil
	case key.Matches(msg, m.keys.enter):
		sel, ok := m.picker.SelectedItem().(entryItem)
		if !ok {
			return m, nil
		}
		m.view = ItemsView
		l, ok := m.editor.Get(m.current)
		if !ok {
			return m, m.refresh()
		}
		if err := m.editor.AddItem(m.current, sel.item, l.Len()+1); err != nil {
			m.err = err
		} else {
			m.status = fmt.Sprintf("added %q", sel.item.Title())
		}
		cmd := m.refresh()
		m.items.Select(len(m.items.Items()) - 1)
		return m, cmd
	}

	return m.updateLists(msg)
}

func (m *Model) handleInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.view = m.returnTo
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		name := strings.TrimSpace(m.input.Value())
		m.input.Blur()
		m.view = m.returnTo

		if m.mode == inputCreate {
			l, err := m.editor.Create(name)
			if err != nil {
				m.err = err
				return m, nil
			}
			m.status = fmt.Sprintf("created draft %q", l.Name)
			return m, m.open(l.ID)
		}

		if err := m.editor.Rename(m.target, name); err != nil {
			m.err = err
		}
		return m, m.refresh()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		id := m.target
		if id == m.current {
			m.current = ""
		}
		m.view = ListsView
		return m, m.deleteList(id)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.view = m.returnTo
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case ListsView:
		m.lists, cmd = m.lists.Update(msg)
	case ItemsView:
		m.items, cmd = m.items.Update(msg)
	case CatalogView:
		m.picker, cmd = m.picker.Update(msg)
	}
	return m, cmd
}

// refresh re-renders lists and the open list from the engine's snapshot.
func (m *Model) refresh() tea.Cmd {
	cmd := m.lists.SetItems(listItems(m.editor.Lists(), m.editor.IsDraft))
	if m.current == "" {
		return cmd
	}

	l, ok := m.editor.Get(m.current)
	if !ok {
		if m.current == m.promoting {
			return cmd
		}
		m.current = ""
		if m.view == ItemsView || m.view == CatalogView {
			m.view = ListsView
		}
		return cmd
	}

	m.items.Title = l.Name
	if m.editor.IsDraft(l.ID) {
		m.items.Title += " (draft)"
	}
	return tea.Batch(cmd, m.items.SetItems(entryItems(ordering.CombineAndSort(l.Songs, l.Cards))))
}

func (m *Model) open(id string) tea.Cmd {
	if err := m.editor.SetActive(id); err != nil {
		m.err = err
		return nil
	}
	m.current = id
	m.view = ItemsView
	cmd := m.refresh()
	m.items.Select(0)
	return cmd
}

func (m *Model) prompt(mode inputMode, target, value string) tea.Cmd {
	m.mode, m.target = mode, target
	m.returnTo = m.view
	m.view = InputView
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) confirm(id string) {
	m.target = id
	m.returnTo = m.view
	m.view = ConfirmView
}

// move shifts the selected item by delta and keeps it selected.
func (m *Model) move(delta int) tea.Cmd {
	sel, ok := m.items.SelectedItem().(entryItem)
	if !ok {
		return nil
	}
	l, ok := m.editor.Get(m.current)
	if !ok {
		return nil
	}

	ids := ordering.Move(ordering.CombineAndSort(l.Songs, l.Cards), sel.item.ID(), delta)
	if err := m.editor.Reorder(m.current, ids); err != nil {
		m.err = err
		return nil
	}

	cmd := m.refresh()
	m.items.Select(slices.Index(ids, sel.item.ID()))
	return cmd
}

func (m *Model) load() tea.Cmd {
	return func() tea.Msg {
		lists, err := m.editor.Read(m.ctx)
		return listsLoadedMsg(lists, err)
	}
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsClosedMsg()
		}
		return engineEventMsg(ev)
	}
}

func (m *Model) loadCatalog() tea.Cmd {
	return func() tea.Msg {
		songs, err := m.catalog.Songs(m.ctx)
		if err != nil {
			return catalogLoadedMsg(nil, err)
		}
		cards, err := m.catalog.Cards(m.ctx)
		if err != nil {
			return catalogLoadedMsg(nil, err)
		}

		items := make([]models.OrderedItem, 0, len(songs)+len(cards))
		for _, s := range songs {
			items = append(items, models.NewSongItem(s, 0))
		}
		for _, c := range cards {
			items = append(items, models.NewCardItem(c, 0))
		}
		return catalogLoadedMsg(items, nil)
	}
}

func (m *Model) promote(id string) tea.Cmd {
	if !m.editor.IsDraft(id) {
		m.status = "already saved"
		return nil
	}
	if m.promoting != "" {
		m.status = "still saving"
		return nil
	}
	m.promoting = id
	return func() tea.Msg {
		newID, err := m.editor.Promote(m.ctx, id)
		return promotedMsg(id, newID, err)
	}
}

func (m *Model) deleteList(id string) tea.Cmd {
	name := id
	if l, ok := m.editor.Get(id); ok {
		name = l.Name
	}
	return func() tea.Msg {
		err := m.editor.Delete(m.ctx, id)
		return opDoneMsg(fmt.Sprintf("deleted %q", name), err)
	}
}

func (m *Model) renderLists() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.create, m.keys.rename, m.keys.promote, m.keys.delete, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.lists.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderItems() string {
	helpKeys := []key.Binding{m.keys.add, m.keys.remove, m.keys.moveUp, m.keys.moveDown, m.keys.promote, m.keys.back}
	return fmt.Sprintf("%s\n\n%s", m.items.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderCatalog() string {
	addKey := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "add"))
	return fmt.Sprintf("%s\n\n%s", m.picker.View(), m.help.ShortHelpView([]key.Binding{addKey, m.keys.back}))
}

func (m *Model) renderInput() string {
	title := "New list"
	if m.mode == inputRename {
		title = "Rename list"
	}
	helpKeys := []key.Binding{m.keys.enter, m.keys.back}
	return fmt.Sprintf("%s\n%s\n\n%s", styles.title.Render(title), m.input.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	name := m.target
	if l, ok := m.editor.Get(m.target); ok {
		name = l.Name
	}
	title := styles.title.Render(fmt.Sprintf("Delete '%s'?", name))

	info := "\nThis removes the saved list for every device."
	if m.editor.IsDraft(m.target) {
		info = "\nThis draft was never saved."
	}
	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n%s\n\n%s", title, styles.muted.Render(info), m.help.ShortHelpView(helpKeys))
}
