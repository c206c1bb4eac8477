package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/setlist/internal/formatter"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
	th "github.com/desertthunder/setlist/internal/testing"
)

type fakeSource struct {
	lists  []models.List
	drafts map[string]bool
}

func (s fakeSource) Lists() []models.List   { return s.lists }
func (s fakeSource) IsDraft(id string) bool { return s.drafts[id] }

// countingCatalog records lookups and can fail them.
type countingCatalog struct {
	*th.MockCatalog
	mu      sync.Mutex
	lookups map[string]int
	fail    error
}

func (c *countingCatalog) Song(ctx context.Context, id string) (*models.Song, error) {
	c.mu.Lock()
	c.lookups[id]++
	fail := c.fail
	c.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return c.MockCatalog.Song(ctx, id)
}

func (c *countingCatalog) Card(ctx context.Context, id string) (*models.Card, error) {
	c.mu.Lock()
	c.lookups[id]++
	c.mu.Unlock()
	return c.MockCatalog.Card(ctx, id)
}

func (c *countingCatalog) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups[id]
}

func newCatalog() *countingCatalog {
	mc := th.NewMockCatalog()
	mc.AddSong(models.Song{ID: "s1", Title: "Amazing Grace (revised)", Verses: []string{"Amazing grace", "How sweet"}})
	mc.AddSong(models.Song{ID: "s2", Title: "Be Thou My Vision", Verses: []string{"Be thou my vision"}})
	mc.AddCard(models.Card{ID: "c1", Name: "Welcome", Type: "image"})
	return &countingCatalog{MockCatalog: mc, lookups: make(map[string]int)}
}

func sampleSource() fakeSource {
	return fakeSource{
		lists: []models.List{
			{
				ID: "l1", Name: "Sunday", Persisted: true,
				Songs: []models.SongItem{{Order: 1, Song: models.Song{ID: "s1", Title: "Amazing Grace"}}},
				Cards: []models.CardItem{{Order: 2, Card: models.Card{ID: "c1", Name: "Welcome"}}},
			},
			{
				ID: "l2", Name: "Evening", Persisted: true,
				Songs: []models.SongItem{
					{Order: 1, Song: models.Song{ID: "s2", Title: "Be Thou My Vision"}},
					{Order: 2, Song: models.Song{ID: "s1", Title: "Amazing Grace"}},
				},
			},
			{
				ID: "d1", Name: "Ideas",
				Cards: []models.CardItem{{Order: 1, Card: models.Card{ID: "gone", Name: "Old card"}}},
			},
		},
		drafts: map[string]bool{"d1": true},
	}
}

func readManifest(t *testing.T, path string) ExportResult {
	t.Helper()
	var m ExportResult
	if err := json.Unmarshal([]byte(th.MustReadFile(t, path)), &m); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	return m
}

func TestExport(t *testing.T) {
	t.Run("writes every list and a manifest", func(t *testing.T) {
		dir := t.TempDir()
		e := NewExporter(nil, shared.NewLogger(nil))

		result, err := e.Export(context.Background(), nil, sampleSource(), nil, ExportOpts{Format: formatter.JSON, OutputDir: dir})
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}

		if result.TotalLists != 3 || result.SuccessfulExports != 3 || result.FailedExports != 0 {
			t.Errorf("unexpected counts: %+v", result)
		}
		for i, want := range []string{"l1", "l2", "d1"} {
			res := result.Results[i]
			if res.ListID != want {
				t.Errorf("result %d: expected %s, got %s", i, want, res.ListID)
			}
			if res.File != filepath.Join(dir, want+".json") {
				t.Errorf("result %d: unexpected file %s", i, res.File)
			}
			if _, err := os.Stat(res.File); err != nil {
				t.Errorf("export file missing: %v", err)
			}
		}
		if !result.Results[2].Draft || result.Results[0].Draft {
			t.Error("expected only d1 to be flagged as a draft")
		}

		m := readManifest(t, result.ManifestPath)
		if m.SuccessfulExports != 3 || len(m.Results) != 3 || m.Format != formatter.JSON {
			t.Errorf("manifest does not match result: %+v", m)
		}
	})

	t.Run("defaults to markdown and accepts aliases", func(t *testing.T) {
		dir := t.TempDir()
		e := NewExporter(nil, nil)

		result, err := e.Export(context.Background(), nil, sampleSource(), []string{"l1"}, ExportOpts{OutputDir: dir})
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if !strings.HasSuffix(result.Results[0].File, ".md") {
			t.Errorf("expected markdown file, got %s", result.Results[0].File)
		}

		result, err = e.Export(context.Background(), nil, sampleSource(), []string{"l1"}, ExportOpts{Format: "text", OutputDir: dir})
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if result.Format != formatter.Text || !strings.HasSuffix(result.Results[0].File, ".txt") {
			t.Errorf("expected text export, got %s", result.Results[0].File)
		}
	})

	t.Run("selected ids keep their order and unknown ids fail", func(t *testing.T) {
		dir := t.TempDir()
		e := NewExporter(nil, nil)

		result, err := e.Export(context.Background(), nil, sampleSource(), []string{"l2", "nope", "l1"}, ExportOpts{Format: formatter.CSV, OutputDir: dir})
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if result.SuccessfulExports != 2 || result.FailedExports != 1 {
			t.Fatalf("unexpected counts: %+v", result)
		}

		missing := result.Results[1]
		if missing.Success || !errors.Is(missing.Error, shared.ErrListNotFound) {
			t.Errorf("expected list not found, got %+v", missing)
		}
		if result.Results[0].ListID != "l2" || result.Results[2].ListID != "l1" {
			t.Errorf("results out of order: %+v", result.Results)
		}

		m := readManifest(t, result.ManifestPath)
		if m.Results[1].Message == "" {
			t.Error("manifest should carry the failure message")
		}
	})

	t.Run("skips drafts", func(t *testing.T) {
		e := NewExporter(nil, nil)

		result, err := e.Export(context.Background(), nil, sampleSource(), nil, ExportOpts{Format: formatter.JSON, OutputDir: t.TempDir(), SkipDrafts: true})
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if result.TotalLists != 2 {
			t.Errorf("expected 2 saved lists, got %d", result.TotalLists)
		}
	})

	t.Run("refreshes items from the catalog", func(t *testing.T) {
		dir := t.TempDir()
		catalog := newCatalog()
		e := NewExporter(catalog, nil)

		result, err := e.Export(context.Background(), nil, sampleSource(), nil, ExportOpts{Format: formatter.JSON, OutputDir: dir, RateLimit: 1000})
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}

		var l1 models.List
		if err := json.Unmarshal([]byte(th.MustReadFile(t, result.Results[0].File)), &l1); err != nil {
			t.Fatalf("invalid export: %v", err)
		}
		if l1.Songs[0].Song.Title != "Amazing Grace (revised)" || len(l1.Songs[0].Song.Verses) != 2 {
			t.Errorf("song was not refreshed: %+v", l1.Songs[0])
		}
		if l1.Songs[0].Order != 1 || l1.Cards[0].Order != 2 {
			t.Error("refresh must keep item orders")
		}

		draft := result.Results[2]
		if !draft.Success || len(draft.Stale) != 1 || draft.Stale[0] != "gone" {
			t.Errorf("expected stale card to be reported, got %+v", draft)
		}

		if n := catalog.count("s1"); n != 1 {
			t.Errorf("expected s1 to be looked up once, got %d", n)
		}
	})

	t.Run("skip refresh writes cached content", func(t *testing.T) {
		catalog := newCatalog()
		e := NewExporter(catalog, nil)

		_, err := e.Export(context.Background(), nil, sampleSource(), nil, ExportOpts{Format: formatter.JSON, OutputDir: t.TempDir(), SkipRefresh: true})
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if n := catalog.count("s1"); n != 0 {
			t.Errorf("expected no catalog lookups, got %d", n)
		}
	})

	t.Run("catalog failures fail the list", func(t *testing.T) {
		catalog := newCatalog()
		catalog.fail = shared.ErrServiceUnavailable
		e := NewExporter(catalog, nil)

		result, err := e.Export(context.Background(), nil, sampleSource(), nil, ExportOpts{Format: formatter.JSON, OutputDir: t.TempDir(), RateLimit: 1000})
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if result.FailedExports != 2 || result.SuccessfulExports != 1 {
			t.Errorf("expected the two song lists to fail, got %+v", result)
		}
		if !errors.Is(result.Results[0].Error, shared.ErrServiceUnavailable) {
			t.Errorf("expected service error, got %v", result.Results[0].Error)
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		e := NewExporter(nil, nil)
		_, err := e.Export(context.Background(), nil, sampleSource(), nil, ExportOpts{Format: "pdf", OutputDir: t.TempDir()})
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("nil source", func(t *testing.T) {
		e := NewExporter(nil, nil)
		if _, err := e.Export(context.Background(), nil, nil, nil, ExportOpts{}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		dir := t.TempDir()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		e := NewExporter(nil, nil)
		_, err := e.Export(ctx, nil, sampleSource(), nil, ExportOpts{Format: formatter.JSON, OutputDir: dir})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, ManifestName)); !os.IsNotExist(err) {
			t.Error("no manifest should be written for a canceled export")
		}
	})
}

func TestExportProgress(t *testing.T) {
	t.Run("reports every phase", func(t *testing.T) {
		prog := make(chan ProgressUpdate, 32)
		e := NewExporter(newCatalog(), nil)

		if _, err := e.Export(context.Background(), prog, sampleSource(), nil, ExportOpts{Format: formatter.Text, OutputDir: t.TempDir(), RateLimit: 1000}); err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		close(prog)

		phases := make(map[Phase]int)
		for u := range prog {
			phases[u.Phase]++
			if u.Message == "" {
				t.Errorf("%s update has no message", u.Phase)
			}
		}
		if phases[FetchLists] != 1 || phases[ResolveItems] != 3 || phases[ExportList] != 3 || phases[WriteManifest] != 1 {
			t.Errorf("unexpected phase counts: %v", phases)
		}
	})

	t.Run("never blocks on a full channel", func(t *testing.T) {
		prog := make(chan ProgressUpdate)
		e := NewExporter(nil, nil)

		if _, err := e.Export(context.Background(), prog, sampleSource(), nil, ExportOpts{Format: formatter.Text, OutputDir: t.TempDir()}); err != nil {
			t.Fatalf("Export failed: %v", err)
		}
	})
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{FetchLists, "fetch_lists"},
		{ResolveItems, "resolve_items"},
		{ExportList, "export_list"},
		{WriteManifest, "write_manifest"},
		{Phase(99), ""},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}
