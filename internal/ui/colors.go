package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var styles = NewPalette(Colors{
	Title:  "#7D56F4",
	Status: "#04B575",
	Error:  "#FF0000",
	Draft:  "#FFA500",
	Song:   "#5FAFFF",
	Card:   "#D787D7",
	Muted:  "#626262",
})

// Colors names the foreground color of each role in the editor.
type Colors struct {
	Title, Status, Error, Draft, Song, Card, Muted string
}

// Palette holds the rendered styles for each role.
type Palette struct {
	title  lipgloss.Style
	status lipgloss.Style
	err    lipgloss.Style
	draft  lipgloss.Style
	song   lipgloss.Style
	card   lipgloss.Style
	muted  lipgloss.Style
}

func NewPalette(c Colors) *Palette {
	return &Palette{
		title:  NewBold(c.Title).MarginBottom(1),
		status: NewBold(c.Status),
		err:    NewBold(c.Error),
		draft:  NewEm(c.Draft),
		song:   NewStyle(c.Song),
		card:   NewStyle(c.Card),
		muted:  NewEm(c.Muted),
	}
}

// kind renders an item kind label in its own color.
func (p *Palette) kind(k string) string {
	if k == "card" {
		return p.card.Render(k)
	}
	return p.song.Render(k)
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
