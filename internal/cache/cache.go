// Package cache holds the optimistic in-memory copy of a scope's persisted lists.
//
// The cache is keyed by ("lists", scope). Readers see optimistic edits immediately;
// [ListCache.Invalidate] refetches from the remote store and replaces the contents with
// server truth. Lists edited locally while a fetch was in flight, or still awaiting a
// write, keep their local version.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
	"golang.org/x/sync/singleflight"
)

// Fetcher reads every persisted list of a scope.
type Fetcher interface {
	ListAllLists(ctx context.Context, scope models.Scope) ([]models.List, error)
}

// Options configures a [ListCache].
type Options struct {
	Logger *log.Logger
	// FetchTimeout bounds background refetches.
	FetchTimeout time.Duration
}

// ListCache is the remote list cache of one scope at a time.
type ListCache struct {
	fetcher Fetcher
	logger  *log.Logger
	timeout time.Duration
	group   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	scope      models.Scope
	ready      bool
	lists      []models.List
	loaded     bool
	stale      bool
	generation uint64
	epoch      uint64
	rev        uint64
	localRev   map[string]uint64
	retain     func(id string) bool
	listeners  []func()
}

// New creates an empty, disabled cache. Call [ListCache.Reset] with an authenticated,
// ready scope to enable fetching.
func New(fetcher Fetcher, opts Options) *ListCache {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ListCache{
		fetcher:  fetcher,
		logger:   shared.WithLogger(opts.Logger, "component", "cache"),
		timeout:  opts.FetchTimeout,
		ctx:      ctx,
		cancel:   cancel,
		scope:    models.AnonymousScope(),
		stale:    true,
		localRev: make(map[string]uint64),
	}
}

// SetRetain installs the predicate that keeps a list's local version across refetches.
func (c *ListCache) SetRetain(fn func(id string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retain = fn
}

// OnChange registers fn to run after the contents change.
func (c *ListCache) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Reset switches the cache to scope, dropping every cached list.
//
// Fetches still running for the previous scope are discarded when they complete.
func (c *ListCache) Reset(scope models.Scope, ready bool) {
	c.mu.Lock()
	c.scope = scope
	c.ready = ready
	c.lists = nil
	c.loaded = false
	c.stale = true
	c.generation++
	c.localRev = make(map[string]uint64)
	c.mu.Unlock()

	c.notify()
}

// Scope returns the scope the cache belongs to.
func (c *ListCache) Scope() models.Scope {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scope
}

// Enabled reports whether the cache may fetch: the scope is ready and authenticated.
func (c *ListCache) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled()
}

func (c *ListCache) enabled() bool {
	return c.ready && c.scope.Authenticated()
}

// Read returns the cached lists, fetching first when they were never loaded or are stale.
//
// On fetch failure the last known contents are returned with the error.
func (c *ListCache) Read(ctx context.Context) ([]models.List, error) {
	c.mu.RLock()
	fresh := c.loaded && !c.stale
	enabled := c.enabled()
	c.mu.RUnlock()

	if enabled && !fresh {
		if err := c.fetch(ctx); err != nil {
			return c.snapshot(), err
		}
	}
	return c.snapshot(), nil
}

// Snapshot returns the cached lists without blocking, starting a background fetch when stale.
func (c *ListCache) Snapshot() []models.List {
	c.mu.RLock()
	needsFetch := c.enabled() && (!c.loaded || c.stale)
	c.mu.RUnlock()

	if needsFetch {
		go c.refresh()
	}
	return c.snapshot()
}

func (c *ListCache) snapshot() []models.List {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.List, 0, len(c.lists))
	for _, l := range c.lists {
		out = append(out, l.Clone())
	}
	return out
}

// Get returns a copy of the cached list with id.
func (c *ListCache) Get(id string) (models.List, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.index(id); i >= 0 {
		return c.lists[i].Clone(), true
	}
	return models.List{}, false
}

// Has reports whether id is cached.
func (c *ListCache) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index(id) >= 0
}

// Loaded reports whether a fetch has completed for the current scope.
func (c *ListCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// OptimisticUpdate replaces the list with id by fn applied to a copy of it.
// The result is visible to readers immediately.
//
// Returns false without calling fn when id is not cached.
func (c *ListCache) OptimisticUpdate(id string, fn func(models.List) models.List) bool {
	c.mu.Lock()
	i := c.index(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}

	next := fn(c.lists[i].Clone())
	next.ID = id
	next.Persisted = true
	c.lists[i] = next
	c.touch(id)
	c.mu.Unlock()

	c.notify()
	return true
}

// Insert adds list to the front of the cache, replacing any cached list with the same id.
func (c *ListCache) Insert(list models.List) {
	list = list.Clone()
	list.Persisted = true

	c.mu.Lock()
	if i := c.index(list.ID); i >= 0 {
		c.lists = append(c.lists[:i:i], c.lists[i+1:]...)
	}
	c.lists = append([]models.List{list}, c.lists...)
	c.touch(list.ID)
	c.mu.Unlock()

	c.notify()
}

// Remove drops the list with id. Returns false when it was not cached.
func (c *ListCache) Remove(id string) bool {
	c.mu.Lock()
	i := c.index(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.lists = append(c.lists[:i:i], c.lists[i+1:]...)
	delete(c.localRev, id)
	c.mu.Unlock()

	c.notify()
	return true
}

// Invalidate marks the contents stale and refetches in the background.
func (c *ListCache) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.epoch++
	enabled := c.enabled()
	c.mu.Unlock()

	if enabled {
		go c.refresh()
	}
}

// Close stops background fetches.
func (c *ListCache) Close() {
	c.cancel()
}

func (c *ListCache) refresh() {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	if err := c.fetch(ctx); err != nil {
		c.logger.Warn("background fetch failed", "error", err)
	}
}

// fetch loads the scope's lists, joining a fetch already in flight for the same scope.
func (c *ListCache) fetch(ctx context.Context) error {
	c.mu.RLock()
	scope := c.scope
	gen := c.generation
	epoch := c.epoch
	rev := c.rev
	c.mu.RUnlock()

	key := fmt.Sprintf("lists:%s:%d", scope.Key, gen)
	_, err, _ := c.group.Do(key, func() (any, error) {
		lists, err := c.fetcher.ListAllLists(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch lists for %s: %w", scope.Key, err)
		}
		c.apply(gen, epoch, rev, lists)
		return nil, nil
	})
	return err
}

// apply replaces the contents with server, unless the scope changed since the fetch began.
func (c *ListCache) apply(gen, epoch, rev uint64, server []models.List) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("discarding fetch for previous scope")
		return
	}

	keep := func(id string) bool {
		return c.localRev[id] > rev || (c.retain != nil && c.retain(id))
	}

	local := make(map[string]models.List, len(c.lists))
	for _, l := range c.lists {
		local[l.ID] = l
	}

	next := make([]models.List, 0, len(server))
	seen := make(map[string]bool, len(server))
	for _, l := range c.lists {
		if _, onServer := indexOf(server, l.ID); !onServer && c.localRev[l.ID] > rev {
			next = append(next, l)
			seen[l.ID] = true
		}
	}
	for _, l := range server {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		if cur, ok := local[l.ID]; ok && keep(l.ID) {
			next = append(next, cur)
			continue
		}
		l = l.Clone()
		l.Persisted = true
		next = append(next, l)
	}

	c.lists = next
	c.loaded = true
	again := c.epoch != epoch
	c.stale = again
	c.mu.Unlock()

	c.logger.Debug("lists fetched", "count", len(next))
	c.notify()

	if again {
		go c.refresh()
	}
}

// touch records a local edit of id. Callers hold c.mu.
func (c *ListCache) touch(id string) {
	c.rev++
	c.localRev[id] = c.rev
}

func (c *ListCache) index(id string) int {
	i, _ := indexOf(c.lists, id)
	return i
}

func (c *ListCache) notify() {
	c.mu.RLock()
	listeners := append([]func(){}, c.listeners...)
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}

func indexOf(lists []models.List, id string) (int, bool) {
	for i, l := range lists {
		if l.ID == id {
			return i, true
		}
	}
	return -1, false
}
