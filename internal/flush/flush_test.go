package flush

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
	tu "github.com/desertthunder/setlist/internal/testing"
)

const delay = 20 * time.Millisecond

type fakeSource struct {
	mu          sync.Mutex
	lists       map[string]models.List
	invalidated atomic.Int32
}

func newFakeSource(lists ...models.List) *fakeSource {
	src := &fakeSource{lists: make(map[string]models.List)}
	for _, l := range lists {
		src.lists[l.ID] = l
	}
	return src
}

func (f *fakeSource) Get(id string) (models.List, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[id]
	return l.Clone(), ok
}

func (f *fakeSource) Invalidate() { f.invalidated.Add(1) }

func (f *fakeSource) rename(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[id]
	l.Name = name
	f.lists[id] = l
}

func setup(t *testing.T, opts Options) (*Scheduler, *fakeSource, *tu.MockRemote) {
	t.Helper()

	catalog := tu.NewMockCatalog()
	catalog.AddSong(models.Song{ID: "s1"})
	remote := tu.NewMockRemote(catalog)
	remote.Seed(models.Scope{Key: "user-a", UserID: "a"}, models.List{ID: "l1", Name: "Sunday"})

	src := newFakeSource(models.List{
		ID:    "l1",
		Name:  "Sunday",
		Songs: []models.SongItem{{Order: 1, Song: models.Song{ID: "s1"}}},
	})

	if opts.Delay == 0 {
		opts.Delay = delay
	}
	opts.Logger = shared.NewLogger(io.Discard)
	s := New(remote, src, opts)
	t.Cleanup(s.Close)
	return s, src, remote
}

func TestScheduler(t *testing.T) {
	t.Run("burst coalesces into one write of the latest state", func(t *testing.T) {
		s, src, remote := setup(t, Options{Delay: time.Hour})

		src.rename("l1", "First")
		s.Schedule("l1")
		src.rename("l1", "Second")
		s.Schedule("l1")

		if got := s.State("l1"); got != Scheduled {
			t.Fatalf("expected scheduled, got %v", got)
		}
		if n := len(remote.Updates()); n != 0 {
			t.Fatalf("nothing should be written inside the window, got %d", n)
		}

		if err := s.FlushPending(context.Background()); err != nil {
			t.Fatalf("flush pending: %v", err)
		}
		if got := s.State("l1"); got != Idle {
			t.Fatalf("expected idle after flush, got %v", got)
		}

		updates := remote.Updates()
		if len(updates) != 1 {
			t.Fatalf("expected exactly 1 update, got %d", len(updates))
		}
		if updates[0].Update.Name != "Second" {
			t.Errorf("expected latest state, got %q", updates[0].Update.Name)
		}
		if len(updates[0].Update.Songs) != 1 || updates[0].Update.Songs[0].ID != "s1" {
			t.Errorf("expected full item state, got %+v", updates[0].Update)
		}
		if src.invalidated.Load() != 1 {
			t.Errorf("expected one invalidate, got %d", src.invalidated.Load())
		}
	})

	t.Run("failed write still invalidates", func(t *testing.T) {
		var results []error
		var mu sync.Mutex
		s, src, remote := setup(t, Options{OnResult: func(id string, err error) {
			mu.Lock()
			results = append(results, err)
			mu.Unlock()
		}})
		remote.SetFailUpdate(errors.New("503"))

		s.Schedule("l1")
		tu.Eventually(t, time.Second, func() bool { return src.invalidated.Load() == 1 }, "cache should be invalidated")

		if s.State("l1") != Idle {
			t.Errorf("expected idle after failure, got %v", s.State("l1"))
		}
		mu.Lock()
		defer mu.Unlock()
		if len(results) != 1 || results[0] == nil {
			t.Errorf("expected one failed result, got %v", results)
		}
	})

	t.Run("drafts and disabled identities are ignored", func(t *testing.T) {
		s, _, _ := setup(t, Options{IsDraft: func(id string) bool { return id == "l1" }})
		s.Schedule("l1")
		if s.State("l1") != Idle {
			t.Error("drafts must never be scheduled")
		}

		s2, _, _ := setup(t, Options{Enabled: func() bool { return false }})
		s2.Schedule("l1")
		if s2.State("l1") != Idle {
			t.Error("nothing is scheduled while disabled")
		}
	})

	t.Run("edit during an in-flight write re-arms after it resolves", func(t *testing.T) {
		s, src, remote := setup(t, Options{})
		release := make(chan struct{})
		entered := make(chan struct{}, 2)
		remote.BeforeUpdate = func(id string) {
			entered <- struct{}{}
			<-release
		}

		s.Schedule("l1")
		<-entered
		if got := s.State("l1"); got != InFlight {
			t.Fatalf("expected in flight, got %v", got)
		}

		src.rename("l1", "Later")
		s.Schedule("l1")
		if got := s.State("l1"); got != InFlight {
			t.Errorf("scheduling during a write must not start another, got %v", got)
		}

		release <- struct{}{}
		<-entered
		release <- struct{}{}

		tu.Eventually(t, time.Second, func() bool { return len(remote.Updates()) == 2 && s.State("l1") == Idle }, "second write should fire")
		if got := remote.Updates()[1].Update.Name; got != "Later" {
			t.Errorf("expected second write to carry the later edit, got %q", got)
		}
	})

	t.Run("Dispose cancels scheduled writes", func(t *testing.T) {
		s, _, remote := setup(t, Options{})
		s.Schedule("l1")
		s.Dispose()

		time.Sleep(3 * delay)
		if n := len(remote.Updates()); n != 0 {
			t.Errorf("expected no writes after dispose, got %d", n)
		}
		if s.Pending("l1") {
			t.Error("disposed id should not be pending")
		}
	})

	t.Run("list missing from cache writes nothing", func(t *testing.T) {
		s, src, remote := setup(t, Options{})
		s.Schedule("gone")

		tu.Eventually(t, time.Second, func() bool { return s.State("gone") == Idle }, "flush should resolve")
		if n := len(remote.Updates()); n != 0 {
			t.Errorf("expected no writes, got %d", n)
		}
		if src.invalidated.Load() != 1 {
			t.Errorf("expected invalidate after resolve, got %d", src.invalidated.Load())
		}
	})

	t.Run("FlushPending writes immediately", func(t *testing.T) {
		s, _, remote := setup(t, Options{Delay: time.Hour})
		s.Schedule("l1")

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.FlushPending(ctx); err != nil {
			t.Fatalf("FlushPending() error = %v", err)
		}
		if n := len(remote.Updates()); n != 1 {
			t.Errorf("expected 1 write, got %d", n)
		}
		if s.Pending("l1") {
			t.Error("nothing should be pending after FlushPending")
		}
	})

	t.Run("Close rejects further scheduling", func(t *testing.T) {
		s, _, _ := setup(t, Options{})
		s.Close()
		s.Schedule("l1")
		if s.Pending("l1") {
			t.Error("closed scheduler should not schedule")
		}
	})
}

func TestSchedulerCancel(t *testing.T) {
	s, _, remote := setup(t, Options{})
	s.Schedule("l1")
	s.Cancel("l1")
	s.Cancel("unknown")

	time.Sleep(3 * delay)
	if n := len(remote.Updates()); n != 0 {
		t.Errorf("expected no writes after cancel, got %d", n)
	}
}
