// Package presentation is the list synchronization engine.
//
// An [Engine] exposes one collection of lists that mixes local drafts with persisted
// lists cached from the remote store. Every mutation is routed at call time: drafts are
// edited in the [drafts.Store]; persisted lists are edited optimistically in the
// [cache.ListCache] and written back by the [flush.Scheduler] after a quiet period.
// A list id is never both a draft and cached.
package presentation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlist/internal/cache"
	"github.com/desertthunder/setlist/internal/drafts"
	"github.com/desertthunder/setlist/internal/flush"
	"github.com/desertthunder/setlist/internal/identity"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/ordering"
	"github.com/desertthunder/setlist/internal/services"
	"github.com/desertthunder/setlist/internal/shared"
)

// errUnchanged marks a mutation that left the list as it was.
var errUnchanged = errors.New("unchanged")

// Options configures an [Engine].
type Options struct {
	Logger       *log.Logger
	FlushDelay   time.Duration
	WriteTimeout time.Duration
	FetchTimeout time.Duration
	DraftsPrefix string
}

// Engine is the public API over drafts and persisted lists of the current identity scope.
type Engine struct {
	remote   services.RemoteStore
	identity identity.Provider
	drafts   *drafts.Store
	cache    *cache.ListCache
	flush    *flush.Scheduler
	logger   *log.Logger

	mu        sync.Mutex
	synced    bool
	scope     models.Scope
	ready     bool
	active    string
	promoting map[string]bool // draft ids with a CreateList in flight

	subsMu sync.Mutex
	subs   []chan Event
	closed bool
}

// New wires an engine over remote, with drafts mirrored to kv and scopes resolved from provider.
//
// When provider can notify changes (like [identity.Session]) the engine follows them;
// otherwise call [Engine.SyncIdentity] after the principal changes.
func New(remote services.RemoteStore, kv drafts.KeyValueStore, provider identity.Provider, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	e := &Engine{
		remote:    remote,
		identity:  provider,
		logger:    shared.WithLogger(opts.Logger, "component", "engine"),
		promoting: make(map[string]bool),
	}

	e.drafts = drafts.NewStore(kv, drafts.Options{Prefix: opts.DraftsPrefix, Logger: opts.Logger})
	e.cache = cache.New(remote, cache.Options{Logger: opts.Logger, FetchTimeout: opts.FetchTimeout})
	e.flush = flush.New(remote, e.cache, flush.Options{
		Delay:        opts.FlushDelay,
		WriteTimeout: opts.WriteTimeout,
		Logger:       opts.Logger,
		IsDraft:      e.drafts.Has,
		Enabled:      e.cache.Enabled,
		OnResult:     e.flushed,
	})
	e.cache.SetRetain(e.flush.Pending)
	e.cache.OnChange(func() { e.emit(Event{Kind: ListsChanged}) })

	e.SyncIdentity()

	if n, ok := provider.(interface{ OnChange(identity.Listener) }); ok {
		n.OnChange(func(models.Scope, bool) { e.SyncIdentity() })
	}
	return e
}

// SyncIdentity re-resolves the identity scope. A changed scope cancels pending writes,
// reloads drafts from the new scope's slot and resets the cache, which fetches on the
// next read. Returns true when anything changed.
func (e *Engine) SyncIdentity() bool {
	scope, ready := identity.Current(e.identity)

	e.mu.Lock()
	if e.synced && scope == e.scope && ready == e.ready {
		e.mu.Unlock()
		return false
	}

	if !e.synced || scope != e.scope {
		e.flush.Dispose()
		e.drafts.Load(scope)
		e.active = ""
	}
	e.synced = true
	e.scope = scope
	e.ready = ready
	e.cache.Reset(scope, ready)
	e.mu.Unlock()

	e.logger.Info("identity scope", "scope", scope.Key, "ready", ready)
	e.emit(Event{Kind: ScopeChanged, Message: scope.Key})
	return true
}

// Scope returns the current identity scope.
func (e *Engine) Scope() models.Scope {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scope
}

// Read waits for the cache to load, then returns drafts followed by persisted lists.
func (e *Engine) Read(ctx context.Context) ([]models.List, error) {
	persisted, err := e.cache.Read(ctx)
	return append(e.drafts.All(), persisted...), err
}

// Lists returns drafts followed by persisted lists without blocking.
func (e *Engine) Lists() []models.List {
	return append(e.drafts.All(), e.cache.Snapshot()...)
}

// Get returns the draft or persisted list with id.
func (e *Engine) Get(id string) (models.List, bool) {
	if l, ok := e.drafts.Get(id); ok {
		return l, true
	}
	return e.cache.Get(id)
}

// IsDraft reports whether id is a draft.
func (e *Engine) IsDraft(id string) bool {
	return e.drafts.Has(id)
}

// ActiveID returns the active list, falling back to the first list when the active one
// no longer exists. Empty when there are no lists.
func (e *Engine) ActiveID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeLocked()
}

func (e *Engine) activeLocked() string {
	if e.active != "" && (e.drafts.Has(e.active) || e.cache.Has(e.active)) {
		return e.active
	}
	if all := e.drafts.All(); len(all) > 0 {
		return all[0].ID
	}
	if all := e.cache.Snapshot(); len(all) > 0 {
		return all[0].ID
	}
	return ""
}

// SetActive makes id the active list.
func (e *Engine) SetActive(id string) error {
	e.mu.Lock()
	if !e.drafts.Has(id) && !e.cache.Has(id) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", shared.ErrListNotFound, id)
	}
	e.active = id
	e.mu.Unlock()

	e.emit(Event{Kind: ActiveChanged, ListID: id})
	return nil
}

// Revalidate refetches persisted lists in the background.
func (e *Engine) Revalidate() {
	e.cache.Invalidate()
}

// HandleRemoteChange refetches when another client changed a list of scope.
func (e *Engine) HandleRemoteChange(scope models.Scope) {
	if scope.Key == e.Scope().Key {
		e.cache.Invalidate()
	}
}

// Create adds an empty draft named name and makes it active.
func (e *Engine) Create(name string) (models.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.List{}, fmt.Errorf("%w: list name is required", shared.ErrInvalidInput)
	}

	list := models.List{ID: shared.GenerateID(), Name: name, Songs: []models.SongItem{}, Cards: []models.CardItem{}}

	e.mu.Lock()
	if err := e.drafts.Add(list); err != nil {
		e.mu.Unlock()
		return models.List{}, err
	}
	e.active = list.ID
	e.mu.Unlock()

	e.logger.Info("draft created", "id", list.ID, "name", name)
	e.emit(Event{Kind: ListCreated, ListID: list.ID, Message: name})
	return list, nil
}

// Rename sets the name of list id.
func (e *Engine) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: list name is required", shared.ErrInvalidInput)
	}

	return e.mutate(id, func(l models.List) (models.List, error) {
		if l.Name == name {
			return l, errUnchanged
		}
		l.Name = name
		return l, nil
	})
}

// AddItem inserts item into list id at position order, shifting later items.
//
// Orders outside 1..N+1 append. Adding an item already in the list changes nothing
// and returns [shared.ErrDuplicateItem].
func (e *Engine) AddItem(id string, item models.OrderedItem, order int) error {
	return e.mutate(id, func(l models.List) (models.List, error) {
		songs, cards, err := ordering.Insert(l.Songs, l.Cards, item, order)
		if err != nil {
			return l, err
		}
		l.Songs, l.Cards = songs, cards
		return l, nil
	})
}

// RemoveItem removes itemID from list id and closes the gap in orders.
func (e *Engine) RemoveItem(id, itemID string) error {
	return e.mutate(id, func(l models.List) (models.List, error) {
		songs, cards, ok := ordering.Remove(l.Songs, l.Cards, itemID)
		if !ok {
			return l, errUnchanged
		}
		l.Songs, l.Cards = songs, cards
		return l, nil
	})
}

// Reorder re-derives every item order of list id from its position in orderedIDs.
//
// Items missing from orderedIDs are removed from the list; their ids are logged and
// reported in a [ReorderPruned] event.
func (e *Engine) Reorder(id string, orderedIDs []string) error {
	var dropped []string
	err := e.mutate(id, func(l models.List) (models.List, error) {
		songs, cards, d := ordering.ApplyPermutation(ordering.CombineAndSort(l.Songs, l.Cards), orderedIDs)
		next := l
		next.Songs, next.Cards = songs, cards
		if len(d) == 0 && sameContent(l, next) {
			return l, errUnchanged
		}
		dropped = d
		return next, nil
	})

	if len(dropped) > 0 {
		e.logger.Warn("reorder dropped items", "id", id, "dropped", dropped)
		e.emit(Event{Kind: ReorderPruned, ListID: id, Dropped: dropped, Message: fmt.Sprintf("%d item(s) removed", len(dropped))})
	}
	return err
}

// mutate routes fn to the draft store or the cache, deciding per call.
//
// Missing ids are a no-op. Persisted edits schedule a flush.
func (e *Engine) mutate(id string, fn func(models.List) (models.List, error)) error {
	var ferr error
	apply := func(l models.List) models.List {
		next, err := fn(l)
		if err != nil {
			ferr = err
			return l
		}
		return next
	}

	e.mu.Lock()
	if e.drafts.Has(id) {
		e.drafts.Update(id, apply)
		e.mu.Unlock()

		if ferr == nil {
			e.emit(Event{Kind: ListsChanged, ListID: id})
		}
		return ignoreUnchanged(ferr)
	}

	if e.cache.OptimisticUpdate(id, apply) && ferr == nil {
		e.flush.Schedule(id)
	}
	e.mu.Unlock()
	return ignoreUnchanged(ferr)
}

// sameContent reports whether a and b would produce the same remote update.
func sameContent(a, b models.List) bool {
	ua, ub := models.UpdateFromList(a), models.UpdateFromList(b)
	return ua.Name == ub.Name && slices.Equal(ua.Songs, ub.Songs) && slices.Equal(ua.Cards, ub.Cards)
}

func ignoreUnchanged(err error) error {
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

// Delete removes list id. Drafts are dropped locally; persisted lists are deleted
// remotely, and the cache is refetched whether or not that succeeded.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	if e.drafts.Remove(id) {
		e.fixActive(id)
		e.mu.Unlock()

		e.logger.Info("draft deleted", "id", id)
		e.emit(Event{Kind: ListDeleted, ListID: id})
		return nil
	}

	if !e.cache.Has(id) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", shared.ErrListNotFound, id)
	}
	e.flush.Cancel(id)
	e.mu.Unlock()

	err := e.remote.DeleteList(ctx, id)
	if err == nil {
		e.mu.Lock()
		e.cache.Remove(id)
		e.fixActive(id)
		e.mu.Unlock()
	}
	e.cache.Invalidate()

	if err != nil {
		return fmt.Errorf("failed to delete list %s: %w", id, err)
	}

	e.logger.Info("list deleted", "id", id)
	e.emit(Event{Kind: ListDeleted, ListID: id})
	return nil
}

// fixActive moves the active list off a deleted id. Callers hold e.mu.
func (e *Engine) fixActive(deleted string) {
	if e.active == deleted {
		e.active = ""
		e.active = e.activeLocked()
	}
}

// Sync writes every scheduled flush now and waits for it and for pending draft writes.
func (e *Engine) Sync(ctx context.Context) error {
	err := e.flush.FlushPending(ctx)
	e.drafts.Flush()
	return err
}

// Close cancels scheduled writes, stops background work and closes subscriber channels.
func (e *Engine) Close() error {
	e.flush.Close()
	e.cache.Close()
	err := e.drafts.Close()
	e.closeSubscribers()
	return err
}

func (e *Engine) flushed(id string, err error) {
	if err != nil {
		e.emit(Event{Kind: FlushFailed, ListID: id, Err: err, Message: err.Error()})
		return
	}
	e.emit(Event{Kind: Flushed, ListID: id})
}
