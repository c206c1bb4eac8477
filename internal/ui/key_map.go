package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	enter    key.Binding
	back     key.Binding
	create   key.Binding
	rename   key.Binding
	remove   key.Binding
	add      key.Binding
	moveUp   key.Binding
	moveDown key.Binding
	promote  key.Binding
	delete   key.Binding
	refresh  key.Binding
	yes      key.Binding
	no       key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		create:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
		rename:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "rename")),
		remove:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "remove")),
		add:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add")),
		moveUp:   key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K", "move up")),
		moveDown: key.NewBinding(key.WithKeys("J", "shift+down"), key.WithHelp("J", "move down")),
		promote:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "save")),
		delete:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		yes:      key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:       key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "no")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.enter, k.back, k.create, k.rename},
		{k.add, k.remove, k.moveUp, k.moveDown},
		{k.promote, k.delete, k.refresh, k.quit},
	}
}
