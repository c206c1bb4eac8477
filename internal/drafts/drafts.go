// Package drafts holds unsaved lists on the client.
//
// Drafts live in memory and are mirrored to one slot of a durable [KeyValueStore] per
// identity scope. Mutations are synchronous; the mirror write happens on a background
// writer that only ever persists the latest snapshot.
package drafts

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
)

// DefaultPrefix namespaces draft slots in the durable store.
const DefaultPrefix = "drafts:"

// KeyValueStore is the durable keyed store drafts are mirrored to.
type KeyValueStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// Options configures a [Store].
type Options struct {
	Prefix string
	Logger *log.Logger
}

type snapshot struct {
	key   string
	value string
}

// Store is the draft store of one scope at a time.
type Store struct {
	kv     KeyValueStore
	prefix string
	logger *log.Logger

	mu    sync.Mutex
	cond  *sync.Cond
	scope models.Scope
	lists []models.List

	pending *snapshot
	queued  uint64
	written uint64
	closed  bool
	once    sync.Once
	wake    chan struct{}
	done    chan struct{}
	exited  chan struct{}
}

// NewStore creates a store backed by kv and starts its background writer.
//
// The store starts empty in the anonymous scope; call [Store.Load] to read a slot.
func NewStore(kv KeyValueStore, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	s := &Store{
		kv:     kv,
		prefix: opts.Prefix,
		logger: shared.WithLogger(opts.Logger, "component", "drafts"),
		scope:  models.AnonymousScope(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	go s.writer()
	return s
}

// Key returns the durable slot key for scope.
func (s *Store) Key(scope models.Scope) string {
	return s.prefix + scope.String()
}

// Load switches the store to scope and replaces its contents with that scope's slot.
//
// Corrupt or structurally invalid data is discarded; Load never fails.
func (s *Store) Load(scope models.Scope) []models.List {
	s.Flush()

	key := s.Key(scope)
	lists := []models.List{}

	raw, ok, err := s.kv.Get(key)
	switch {
	case err != nil:
		s.logger.Warn("failed to read drafts", "key", key, "error", err)
	case ok:
		lists = decode(raw, s.logger.With("key", key))
	}

	s.mu.Lock()
	s.scope = scope
	s.lists = lists
	out := cloneAll(lists)
	s.mu.Unlock()

	s.logger.Debug("drafts loaded", "scope", scope.Key, "count", len(out))
	return out
}

// Scope returns the scope currently loaded.
func (s *Store) Scope() models.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// All returns copies of every draft, newest first.
func (s *Store) All() []models.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.lists)
}

// Get returns a copy of the draft with id.
func (s *Store) Get(id string) (models.List, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		return s.lists[i].Clone(), true
	}
	return models.List{}, false
}

// Has reports whether id is a draft in the current scope.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index(id) >= 0
}

// Add prepends list as a new draft.
func (s *Store) Add(list models.List) error {
	if err := list.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index(list.ID) >= 0 {
		return fmt.Errorf("%w: draft %s already exists", shared.ErrInvalidInput, list.ID)
	}

	list = list.Clone()
	list.Persisted = false
	s.lists = append([]models.List{list}, s.lists...)
	s.persist()
	return nil
}

// Update replaces the draft with id by fn applied to a copy of it.
//
// Returns false without calling fn when no draft has that id.
func (s *Store) Update(id string, fn func(models.List) models.List) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return false
	}

	next := fn(s.lists[i].Clone())
	next.ID = id
	next.Persisted = false
	s.lists[i] = next
	s.persist()
	return true
}

// Remove deletes the draft with id. Returns false when there is none.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return false
	}

	s.lists = append(s.lists[:i:i], s.lists[i+1:]...)
	s.persist()
	return true
}

// Flush blocks until every mutation made so far has been written to the durable store.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.queued
	for s.written < target && !s.closed {
		s.cond.Wait()
	}
}

// Close writes any pending snapshot and stops the background writer.
func (s *Store) Close() error {
	s.once.Do(func() { close(s.done) })
	<-s.exited
	return nil
}

func (s *Store) index(id string) int {
	for i, l := range s.lists {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// persist queues the current contents for the writer. Callers hold s.mu.
func (s *Store) persist() {
	data, err := json.Marshal(s.lists)
	if err != nil {
		s.logger.Error("failed to encode drafts", "error", err)
		return
	}

	s.pending = &snapshot{key: s.Key(s.scope), value: string(data)}
	s.queued++

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) writer() {
	defer close(s.exited)

	for {
		select {
		case <-s.wake:
			s.writePending()
		case <-s.done:
			s.writePending()
			s.mu.Lock()
			s.closed = true
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}
	}
}

func (s *Store) writePending() {
	s.mu.Lock()
	snap := s.pending
	target := s.queued
	s.pending = nil
	s.mu.Unlock()

	if snap != nil {
		if err := s.kv.Set(snap.key, snap.value); err != nil {
			s.logger.Warn("failed to persist drafts", "key", snap.key, "error", err)
		}
	}

	s.mu.Lock()
	s.written = target
	s.cond.Broadcast()
	s.mu.Unlock()
}

func cloneAll(lists []models.List) []models.List {
	out := make([]models.List, 0, len(lists))
	for _, l := range lists {
		out = append(out, l.Clone())
	}
	return out
}
