package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlist/internal/formatter"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/services"
	"github.com/desertthunder/setlist/internal/shared"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Source supplies the lists to export.
//
// [presentation.Engine] satisfies it.
type Source interface {
	Lists() []models.List
	IsDraft(id string) bool
}

// ListExportResult describes the export of a single list.
type ListExportResult struct {
	ListID   string   `json:"list_id"`
	ListName string   `json:"list_name"`
	Draft    bool     `json:"draft"`
	Items    int      `json:"items"`
	File     string   `json:"file,omitempty"`
	Stale    []string `json:"stale,omitempty"` // Item ids the catalog no longer has
	Success  bool     `json:"success"`
	Error    error    `json:"-"`
	Message  string   `json:"error,omitempty"`
}

// ExportResult summarizes a bulk export and doubles as its manifest.
type ExportResult struct {
	Format            formatter.Format   `json:"format"`
	TotalLists        int                `json:"total_lists"`
	SuccessfulExports int                `json:"successful_exports"`
	FailedExports     int                `json:"failed_exports"`
	OutputDirectory   string             `json:"output_directory"`
	ManifestPath      string             `json:"-"`
	Results           []ListExportResult `json:"results"`
}

// Exporter writes lists to disk, optionally refreshing their items from a catalog first.
type Exporter struct {
	catalog services.Catalog
	logger  *log.Logger
}

// NewExporter creates an Exporter. catalog may be nil, in which case lists are written as cached.
func NewExporter(catalog services.Catalog, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Exporter{catalog: catalog, logger: shared.WithLogger(logger, "component", "export")}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Exporter) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// refresher looks items up in a catalog once per export run.
//
// Concurrent lookups of the same id share one request.
type refresher struct {
	catalog services.Catalog
	limiter *rate.Limiter
	group   singleflight.Group

	mu    sync.Mutex
	songs map[string]*models.Song
	cards map[string]*models.Card
}

func newRefresher(catalog services.Catalog, limit float64) *refresher {
	return &refresher{
		catalog: catalog,
		limiter: rate.NewLimiter(rate.Limit(limit), 1),
		songs:   make(map[string]*models.Song),
		cards:   make(map[string]*models.Card),
	}
}

func (r *refresher) song(ctx context.Context, id string) (*models.Song, error) {
	r.mu.Lock()
	s, ok := r.songs[id]
	r.mu.Unlock()
	if ok {
		return s, nil
	}

	v, err, _ := r.group.Do("song:"+id, func() (any, error) {
		r.mu.Lock()
		s, ok := r.songs[id]
		r.mu.Unlock()
		if ok {
			return s, nil
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		s, err := r.catalog.Song(ctx, id)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.songs[id] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Song), nil
}

func (r *refresher) card(ctx context.Context, id string) (*models.Card, error) {
	r.mu.Lock()
	c, ok := r.cards[id]
	r.mu.Unlock()
	if ok {
		return c, nil
	}

	v, err, _ := r.group.Do("card:"+id, func() (any, error) {
		r.mu.Lock()
		c, ok := r.cards[id]
		r.mu.Unlock()
		if ok {
			return c, nil
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		c, err := r.catalog.Card(ctx, id)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cards[id] = c
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Card), nil
}

// refresh replaces item content in l with the catalog's current version, keeping every order.
//
// Items the catalog no longer has keep their cached content and are reported as stale.
func (r *refresher) refresh(ctx context.Context, l models.List) (models.List, []string, error) {
	l = l.Clone()
	var stale []string

	for i, item := range l.Songs {
		s, err := r.song(ctx, item.Song.ID)
		switch {
		case errors.Is(err, shared.ErrSongNotFound):
			stale = append(stale, item.Song.ID)
		case err != nil:
			return l, stale, fmt.Errorf("failed to refresh song %s: %w", item.Song.ID, err)
		default:
			l.Songs[i].Song = *s
		}
	}

	for i, item := range l.Cards {
		c, err := r.card(ctx, item.Card.ID)
		switch {
		case errors.Is(err, shared.ErrCardNotFound):
			stale = append(stale, item.Card.ID)
		case err != nil:
			return l, stale, fmt.Errorf("failed to refresh card %s: %w", item.Card.ID, err)
		default:
			l.Cards[i].Card = *c
		}
	}
	return l, stale, nil
}
