// package formatter provides functions to export a list's running order to various formats (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/ordering"
	"github.com/desertthunder/setlist/internal/shared"
)

// Format is an export format.
type Format string

const (
	CSV      Format = "csv"
	Markdown Format = "md"
	Text     Format = "txt"
	JSON     Format = "json"
)

// ParseFormat accepts a format name or common alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return CSV, nil
	case "md", "markdown":
		return Markdown, nil
	case "txt", "text", "":
		return Text, nil
	case "json":
		return JSON, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, s)
	}
}

// detail describes an item beyond its title
func detail(item models.OrderedItem) string {
	switch item.Kind {
	case models.KindSong:
		return fmt.Sprintf("%d verses", len(item.Song.Verses))
	case models.KindCard:
		if item.Card.Type != "" {
			return item.Card.Type
		}
		return "card"
	}
	return ""
}

// ExportToCSV converts a list to CSV format with columns: Order, Kind, ID, Title, Detail
func ExportToCSV(list models.List) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Order", "Kind", "ID", "Title", "Detail"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range ordering.CombineAndSort(list.Songs, list.Cards) {
		record := []string{
			strconv.Itoa(item.Order),
			item.Kind.String(),
			item.ID(),
			item.Title(),
			detail(item),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a list to Markdown with its running order and song lyrics
func ExportToMarkdown(list models.List) ([]byte, error) {
	var buf bytes.Buffer
	items := ordering.CombineAndSort(list.Songs, list.Cards)

	fmt.Fprintf(&buf, "# %s\n\n", list.Name)
	fmt.Fprintf(&buf, "**Songs**: %d\n", len(list.Songs))
	fmt.Fprintf(&buf, "**Cards**: %d\n", len(list.Cards))
	if !list.Persisted {
		buf.WriteString("**Status**: draft\n")
	}
	buf.WriteString("\n## Running Order\n\n")

	for _, item := range items {
		fmt.Fprintf(&buf, "%d. %s _(%s)_\n", item.Order, item.Title(), detail(item))
	}

	for _, item := range items {
		if item.Kind != models.KindSong || len(item.Song.Verses) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "\n## %s\n\n", item.Song.Title)
		for _, verse := range item.Song.Verses {
			fmt.Fprintf(&buf, "> %s\n>\n", strings.ReplaceAll(verse, "\n", "\n> "))
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts a list to plain text format
func ExportToText(list models.List) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "List: %s\n", list.Name)
	fmt.Fprintf(&buf, "Items: %d\n\n", list.Len())

	for _, item := range ordering.CombineAndSort(list.Songs, list.Cards) {
		fmt.Fprintf(&buf, "%d. [%s] %s\n", item.Order, item.Kind, item.Title())
	}

	return buf.Bytes(), nil
}

// ToJSON renders the full list, items included
func ToJSON(list models.List) ([]byte, error) {
	return shared.MarshalJSON(list, true)
}

// Export renders list in format.
func Export(list models.List, format Format) ([]byte, error) {
	switch format {
	case CSV:
		return ExportToCSV(list)
	case Markdown:
		return ExportToMarkdown(list)
	case Text:
		return ExportToText(list)
	case JSON:
		return ToJSON(list)
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteExport renders list in format and writes it to path.
//
// Defaults to {list.ID}.{format} as the filename.
func WriteExport(list models.List, format Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s.%s", list.ID, format)
	}

	data, err := Export(list, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}
