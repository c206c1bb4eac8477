// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
)

// MemoryKV is an in-memory durable keyed store with injectable failures.
type MemoryKV struct {
	mu     sync.Mutex
	data   map[string]string
	sets   int
	GetErr error
	SetErr error
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.SetErr != nil {
		return m.SetErr
	}
	m.data[key] = value
	return nil
}

// Put seeds a raw value, bypassing failure injection.
func (m *MemoryKV) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// Raw returns the stored value for key.
func (m *MemoryKV) Raw(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

// Sets returns how many times Set was called.
func (m *MemoryKV) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

// MockCatalog is a read-only song and card catalog.
type MockCatalog struct {
	mu    sync.Mutex
	songs map[string]models.Song
	cards map[string]models.Card
}

func NewMockCatalog() *MockCatalog {
	return &MockCatalog{songs: make(map[string]models.Song), cards: make(map[string]models.Card)}
}

func (c *MockCatalog) AddSong(s models.Song) models.Song {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.songs[s.ID] = s
	return s
}

func (c *MockCatalog) AddCard(card models.Card) models.Card {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cards[card.ID] = card
	return card
}

func (c *MockCatalog) Songs(ctx context.Context) ([]models.Song, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Song, 0, len(c.songs))
	for _, s := range c.songs {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b models.Song) int { return compare(a.ID, b.ID) })
	return out, nil
}

func (c *MockCatalog) Song(ctx context.Context, id string) (*models.Song, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.songs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrSongNotFound, id)
	}
	return &s, nil
}

func (c *MockCatalog) Cards(ctx context.Context) ([]models.Card, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Card, 0, len(c.cards))
	for _, card := range c.cards {
		out = append(out, card)
	}
	slices.SortFunc(out, func(a, b models.Card) int { return compare(a.ID, b.ID) })
	return out, nil
}

func (c *MockCatalog) Card(ctx context.Context, id string) (*models.Card, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	card, ok := c.cards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrCardNotFound, id)
	}
	return &card, nil
}

func compare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// UpdateCall records one UpdateList request.
type UpdateCall struct {
	ID     string
	Update models.ListUpdate
}

// MockRemote is an in-memory remote store that records every write.
//
// Hooks run before the corresponding call takes effect and may block to hold a request in flight.
type MockRemote struct {
	Catalog *MockCatalog

	mu      sync.Mutex
	lists   map[string][]models.List
	owner   map[string]string
	updates []UpdateCall
	creates []models.ListUpdate
	deletes []string
	fetches int
	nextID  int

	FailList   error
	FailCreate error
	FailUpdate error
	FailDelete error

	BeforeCreate func(name string)
	BeforeUpdate func(id string)
}

func NewMockRemote(catalog *MockCatalog) *MockRemote {
	if catalog == nil {
		catalog = NewMockCatalog()
	}
	return &MockRemote{
		Catalog: catalog,
		lists:   make(map[string][]models.List),
		owner:   make(map[string]string),
	}
}

// Seed stores list under scope as server truth.
func (r *MockRemote) Seed(scope models.Scope, list models.List) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list = list.Clone()
	list.Persisted = true
	r.lists[scope.Key] = append(r.lists[scope.Key], list)
	r.owner[list.ID] = scope.Key
}

func (r *MockRemote) ListAllLists(ctx context.Context, scope models.Scope) ([]models.List, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	if r.FailList != nil {
		return nil, r.FailList
	}
	out := make([]models.List, 0, len(r.lists[scope.Key]))
	for _, l := range r.lists[scope.Key] {
		out = append(out, l.Clone())
	}
	return out, nil
}

func (r *MockRemote) CreateList(ctx context.Context, name string, scope models.Scope, items models.ListUpdate) (string, error) {
	if r.BeforeCreate != nil {
		r.BeforeCreate(name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	items.Name = name
	r.creates = append(r.creates, items)
	if r.FailCreate != nil {
		return "", r.FailCreate
	}

	r.nextID++
	id := fmt.Sprintf("list-%d", r.nextID)
	list, err := r.resolve(id, items)
	if err != nil {
		return "", err
	}
	r.lists[scope.Key] = append(r.lists[scope.Key], list)
	r.owner[id] = scope.Key
	return id, nil
}

func (r *MockRemote) UpdateList(ctx context.Context, id string, update models.ListUpdate) error {
	if r.BeforeUpdate != nil {
		r.BeforeUpdate(id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, UpdateCall{ID: id, Update: update})
	if r.FailUpdate != nil {
		return r.FailUpdate
	}

	scope, ok := r.owner[id]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrListNotFound, id)
	}
	list, err := r.resolve(id, update)
	if err != nil {
		return err
	}
	for i, l := range r.lists[scope] {
		if l.ID == id {
			r.lists[scope][i] = list
		}
	}
	return nil
}

func (r *MockRemote) DeleteList(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, id)
	if r.FailDelete != nil {
		return r.FailDelete
	}

	scope, ok := r.owner[id]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrListNotFound, id)
	}
	r.lists[scope] = slices.DeleteFunc(r.lists[scope], func(l models.List) bool { return l.ID == id })
	delete(r.owner, id)
	return nil
}

// resolve joins update against the catalog. Callers hold r.mu.
func (r *MockRemote) resolve(id string, update models.ListUpdate) (models.List, error) {
	list := models.List{ID: id, Name: update.Name, Persisted: true, Songs: []models.SongItem{}, Cards: []models.CardItem{}}
	for _, o := range update.Songs {
		s, err := r.Catalog.Song(context.Background(), o.ID)
		if err != nil {
			return models.List{}, err
		}
		list.Songs = append(list.Songs, models.SongItem{Order: o.Order, Song: *s})
	}
	for _, o := range update.Cards {
		c, err := r.Catalog.Card(context.Background(), o.ID)
		if err != nil {
			return models.List{}, err
		}
		list.Cards = append(list.Cards, models.CardItem{Order: o.Order, Card: *c})
	}
	return list, nil
}

// Updates returns the UpdateList calls made so far.
func (r *MockRemote) Updates() []UpdateCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.updates)
}

// Creates returns the CreateList payloads received so far.
func (r *MockRemote) Creates() []models.ListUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.creates)
}

// Deletes returns the ids passed to DeleteList.
func (r *MockRemote) Deletes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.deletes)
}

// Fetches returns how many times ListAllLists was called.
func (r *MockRemote) Fetches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

// Server returns the server-side copy of the list with id.
func (r *MockRemote) Server(id string) (models.List, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lists[r.owner[id]] {
		if l.ID == id {
			return l.Clone(), true
		}
	}
	return models.List{}, false
}

// SetFailUpdate swaps the UpdateList failure under the lock.
func (r *MockRemote) SetFailUpdate(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailUpdate = err
}

// Eventually polls cond until it holds or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// Settled polls value until it stays unchanged for quiet, then returns it.
//
// Fails the test if value keeps changing past timeout.
func Settled(t *testing.T, timeout, quiet time.Duration, value func() int) int {
	t.Helper()
	deadline := time.Now().Add(timeout)
	last, since := value(), time.Now()
	for time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		if v := value(); v != last {
			last, since = v, time.Now()
			continue
		}
		if time.Since(since) >= quiet {
			return last
		}
	}
	t.Fatalf("value still changing after %v", timeout)
	return last
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
