package presentation

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/setlist/internal/identity"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/ordering"
	"github.com/desertthunder/setlist/internal/shared"
	tu "github.com/desertthunder/setlist/internal/testing"
)

const delay = 20 * time.Millisecond

var (
	alice      = identity.Principal{ID: "alice"}
	bob        = identity.Principal{ID: "bob"}
	aliceScope = identity.ResolveScope(alice)
)

type fixture struct {
	engine  *Engine
	remote  *tu.MockRemote
	kv      *tu.MemoryKV
	session *identity.Session
	catalog *tu.MockCatalog
}

func setup(t *testing.T, principal identity.Principal, seed ...models.List) *fixture {
	t.Helper()

	catalog := tu.NewMockCatalog()
	for _, id := range []string{"s1", "s2", "s3"} {
		catalog.AddSong(models.Song{ID: id, Title: "Song " + id, Verses: []string{"verse"}})
	}
	for _, id := range []string{"c1", "c2"} {
		catalog.AddCard(models.Card{ID: id, Name: "Card " + id, Type: "image"})
	}

	remote := tu.NewMockRemote(catalog)
	for _, l := range seed {
		remote.Seed(identity.ResolveScope(principal), l)
	}

	kv := tu.NewMemoryKV()
	session := identity.NewSession(principal, true)
	e := New(remote, kv, session, Options{Logger: shared.NewLogger(io.Discard), FlushDelay: delay})
	t.Cleanup(func() { e.Close() })

	return &fixture{engine: e, remote: remote, kv: kv, session: session, catalog: catalog}
}

func (f *fixture) song(t *testing.T, id string) models.OrderedItem {
	t.Helper()
	s, err := f.catalog.Song(context.Background(), id)
	if err != nil {
		t.Fatalf("unknown song %s", id)
	}
	return models.NewSongItem(*s, 0)
}

func (f *fixture) card(t *testing.T, id string) models.OrderedItem {
	t.Helper()
	c, err := f.catalog.Card(context.Background(), id)
	if err != nil {
		t.Fatalf("unknown card %s", id)
	}
	return models.NewCardItem(*c, 0)
}

func (f *fixture) read(t *testing.T) []models.List {
	t.Helper()
	lists, err := f.engine.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	return lists
}

func sunday() models.List {
	return models.List{
		ID:    "l1",
		Name:  "Sunday",
		Songs: []models.SongItem{{Order: 1, Song: models.Song{ID: "s1", Title: "Song s1"}}},
		Cards: []models.CardItem{{Order: 2, Card: models.Card{ID: "c1", Name: "Card c1"}}},
	}
}

func assertDense(t *testing.T, l models.List) {
	t.Helper()
	if err := ordering.Validate(l.Songs, l.Cards); err != nil {
		t.Errorf("list %s violates the permutation invariant: %v", l.ID, err)
	}
}

func assertExclusive(t *testing.T, e *Engine) {
	t.Helper()
	for _, l := range e.Lists() {
		if e.drafts.Has(l.ID) && e.cache.Has(l.ID) {
			t.Errorf("list %s is both a draft and cached", l.ID)
		}
	}
}

func TestScenarios(t *testing.T) {
	t.Run("draft edits and reorder renumber items", func(t *testing.T) {
		f := setup(t, identity.Principal{})
		e := f.engine

		draft, err := e.Create("Sunday")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := e.AddItem(draft.ID, f.song(t, "s1"), 1); err != nil {
			t.Fatalf("AddItem() error = %v", err)
		}
		if err := e.AddItem(draft.ID, f.card(t, "c1"), 2); err != nil {
			t.Fatalf("AddItem() error = %v", err)
		}
		if err := e.Reorder(draft.ID, []string{"c1", "s1"}); err != nil {
			t.Fatalf("Reorder() error = %v", err)
		}

		got, ok := e.Get(draft.ID)
		if !ok {
			t.Fatal("draft disappeared")
		}
		if got.Cards[0].Order != 1 || got.Songs[0].Order != 2 {
			t.Errorf("expected card=1 song=2, got card=%d song=%d", got.Cards[0].Order, got.Songs[0].Order)
		}
		assertDense(t, got)

		time.Sleep(3 * delay)
		if n := len(f.remote.Updates()) + len(f.remote.Creates()); n != 0 {
			t.Errorf("draft edits must not reach the remote store, got %d calls", n)
		}
	})

	t.Run("burst of edits flushes once with the latest state", func(t *testing.T) {
		f := setup(t, alice, sunday())
		e := f.engine
		f.read(t)

		if err := e.Rename("l1", "First"); err != nil {
			t.Fatalf("Rename() error = %v", err)
		}
		if err := e.Reorder("l1", []string{"c1", "s1"}); err != nil {
			t.Fatalf("Reorder() error = %v", err)
		}

		got, _ := e.Get("l1")
		if got.Name != "First" || got.Cards[0].Order != 1 {
			t.Errorf("optimistic edits should be visible immediately, got %+v", got)
		}

		tu.Eventually(t, time.Second, func() bool { return len(f.remote.Updates()) == 1 }, "one write should fire")
		time.Sleep(3 * delay)

		updates := f.remote.Updates()
		if len(updates) != 1 {
			t.Fatalf("expected exactly 1 update, got %d", len(updates))
		}
		u := updates[0].Update
		if u.Name != "First" {
			t.Errorf("expected name First, got %s", u.Name)
		}
		if u.Cards[0] != (models.ItemOrder{ID: "c1", Order: 1}) || u.Songs[0] != (models.ItemOrder{ID: "s1", Order: 2}) {
			t.Errorf("expected the second mutation's ordering, got %+v", u)
		}
	})

	t.Run("failed write reconciles with server truth", func(t *testing.T) {
		f := setup(t, alice, sunday())
		e := f.engine
		f.read(t)
		f.remote.SetFailUpdate(errors.New("503 service unavailable"))
		events := e.Subscribe()

		if err := e.Rename("l1", "Doomed"); err != nil {
			t.Fatalf("Rename() error = %v", err)
		}

		tu.Eventually(t, time.Second, func() bool {
			got, _ := e.Get("l1")
			return len(f.remote.Updates()) == 1 && got.Name == "Sunday"
		}, "cache should fall back to the server's state")

		lists := f.read(t)
		if lists[0].Name != "Sunday" {
			t.Errorf("Read() should reflect server truth, got %s", lists[0].Name)
		}
		if !waitFor(events, FlushFailed) {
			t.Error("expected a FlushFailed event")
		}
	})

	t.Run("promote a draft with three items", func(t *testing.T) {
		f := setup(t, alice)
		e := f.engine
		f.read(t)

		draft, _ := e.Create("Evening")
		_ = e.AddItem(draft.ID, f.song(t, "s1"), 0)
		_ = e.AddItem(draft.ID, f.card(t, "c1"), 0)
		_ = e.AddItem(draft.ID, f.song(t, "s2"), 1)
		before, _ := e.Get(draft.ID)

		id, err := e.Promote(context.Background(), draft.ID)
		if err != nil {
			t.Fatalf("Promote() error = %v", err)
		}

		if e.IsDraft(draft.ID) {
			t.Error("draft should be removed after promotion")
		}
		got, ok := e.cache.Get(id)
		if !ok {
			t.Fatalf("promoted list %s not cached", id)
		}
		if got.Len() != 3 {
			t.Errorf("expected 3 items, got %d", got.Len())
		}
		want := ordering.IDs(ordering.CombineAndSort(before.Songs, before.Cards))
		if seq := ordering.IDs(ordering.CombineAndSort(got.Songs, got.Cards)); !slices.Equal(seq, want) {
			t.Errorf("ordering changed: got %v, want %v", seq, want)
		}
		if e.ActiveID() != id {
			t.Errorf("promoted list should be active, got %s", e.ActiveID())
		}
		if n := len(f.remote.Creates()); n != 1 {
			t.Errorf("expected one create call, got %d", n)
		}
		assertExclusive(t, e)

		tu.Eventually(t, time.Second, func() bool { return f.remote.Fetches() >= 2 }, "promotion should refetch")
		if _, ok := e.Get(id); !ok {
			t.Error("promoted list lost after refetch")
		}
	})

	t.Run("switching scope isolates drafts", func(t *testing.T) {
		f := setup(t, alice)
		e := f.engine

		a, _ := e.Create("Alice's")
		f.session.SignIn(bob)

		if e.Scope().Key != "user-bob" {
			t.Fatalf("expected bob's scope, got %s", e.Scope().Key)
		}
		if _, ok := e.Get(a.ID); ok {
			t.Error("alice's draft is visible to bob")
		}
		if n := len(e.Lists()); n != 0 {
			t.Errorf("bob should start with no lists, got %d", n)
		}
		b, _ := e.Create("Bob's")

		f.session.SignIn(alice)
		if _, ok := e.Get(a.ID); !ok {
			t.Error("alice's draft should load again")
		}
		if _, ok := e.Get(b.ID); ok {
			t.Error("bob's draft leaked into alice's scope")
		}
	})
}

func TestRouting(t *testing.T) {
	t.Run("missing ids are no-ops", func(t *testing.T) {
		f := setup(t, alice, sunday())
		e := f.engine
		f.read(t)

		if err := e.Rename("nope", "x"); err != nil {
			t.Errorf("Rename() error = %v", err)
		}
		if err := e.RemoveItem("nope", "s1"); err != nil {
			t.Errorf("RemoveItem() error = %v", err)
		}
		if err := e.Reorder("nope", nil); err != nil {
			t.Errorf("Reorder() error = %v", err)
		}
		time.Sleep(3 * delay)
		if n := len(f.remote.Updates()); n != 0 {
			t.Errorf("expected no writes, got %d", n)
		}
	})

	t.Run("invalid input is rejected synchronously", func(t *testing.T) {
		f := setup(t, alice, sunday())
		e := f.engine
		f.read(t)

		if err := e.Rename("l1", "  "); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := e.Create(""); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := e.AddItem("l1", f.song(t, "s1"), 1); !errors.Is(err, shared.ErrDuplicateItem) {
			t.Errorf("expected ErrDuplicateItem, got %v", err)
		}
		time.Sleep(3 * delay)
		if n := len(f.remote.Updates()); n != 0 {
			t.Errorf("rejected edits must not be flushed, got %d writes", n)
		}
	})

	t.Run("permutation invariant holds across edits", func(t *testing.T) {
		f := setup(t, alice, sunday())
		e := f.engine
		f.read(t)

		steps := []func() error{
			func() error { return e.AddItem("l1", f.song(t, "s2"), 1) },
			func() error { return e.AddItem("l1", f.card(t, "c2"), 99) },
			func() error { return e.RemoveItem("l1", "s1") },
			func() error { return e.Reorder("l1", []string{"c2", "c1", "s2"}) },
			func() error { return e.AddItem("l1", f.song(t, "s3"), 2) },
		}
		for i, step := range steps {
			if err := step(); err != nil {
				t.Fatalf("step %d error = %v", i, err)
			}
			got, _ := e.Get("l1")
			assertDense(t, got)
		}

		got, _ := e.Get("l1")
		seq := ordering.IDs(ordering.CombineAndSort(got.Songs, got.Cards))
		if want := []string{"c2", "s3", "c1", "s2"}; !slices.Equal(seq, want) {
			t.Errorf("sequence = %v, want %v", seq, want)
		}
	})

	t.Run("reorder that omits items prunes them and reports it", func(t *testing.T) {
		f := setup(t, alice, sunday())
		e := f.engine
		f.read(t)
		events := e.Subscribe()

		if err := e.Reorder("l1", []string{"c1"}); err != nil {
			t.Fatalf("Reorder() error = %v", err)
		}

		got, _ := e.Get("l1")
		if got.Len() != 1 || got.Cards[0].Order != 1 {
			t.Errorf("expected only c1 at order 1, got %+v", got)
		}

		deadline := time.After(time.Second)
		for {
			select {
			case ev := <-events:
				if ev.Kind == ReorderPruned {
					if !slices.Equal(ev.Dropped, []string{"s1"}) {
						t.Errorf("dropped = %v, want [s1]", ev.Dropped)
					}
					return
				}
			case <-deadline:
				t.Fatal("expected a ReorderPruned event")
			}
		}
	})

	t.Run("anonymous scope never fetches or flushes", func(t *testing.T) {
		f := setup(t, identity.Principal{})
		e := f.engine
		draft, _ := e.Create("Local")
		_ = e.Rename(draft.ID, "Still local")

		time.Sleep(3 * delay)
		if f.remote.Fetches() != 0 || len(f.remote.Updates()) != 0 {
			t.Errorf("anonymous scope touched the remote store: %d fetches, %d updates", f.remote.Fetches(), len(f.remote.Updates()))
		}
	})

	t.Run("a new engine fetches once on first read", func(t *testing.T) {
		f := setup(t, alice, sunday())
		f.read(t)
		time.Sleep(3 * delay)
		if n := f.remote.Fetches(); n != 1 {
			t.Errorf("expected 1 fetch, got %d", n)
		}
	})

	t.Run("remote change notifications refetch", func(t *testing.T) {
		f := setup(t, alice, sunday())
		e := f.engine
		f.read(t)
		before := tu.Settled(t, time.Second, 3*delay, f.remote.Fetches)

		e.HandleRemoteChange(models.Scope{Key: "user-someone-else", UserID: "x"})
		time.Sleep(3 * delay)
		if f.remote.Fetches() != before {
			t.Error("changes for other scopes must be ignored")
		}

		e.HandleRemoteChange(aliceScope)
		tu.Eventually(t, time.Second, func() bool { return f.remote.Fetches() > before }, "should refetch")
	})
}

func TestPromote(t *testing.T) {
	t.Run("requires an authenticated scope", func(t *testing.T) {
		f := setup(t, identity.Principal{})
		draft, _ := f.engine.Create("Local")

		if _, err := f.engine.Promote(context.Background(), draft.ID); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if !f.engine.IsDraft(draft.ID) {
			t.Error("draft should be untouched")
		}
	})

	t.Run("unknown draft fails fast", func(t *testing.T) {
		f := setup(t, alice)
		if _, err := f.engine.Promote(context.Background(), "nope"); !errors.Is(err, shared.ErrDraftNotFound) {
			t.Errorf("expected ErrDraftNotFound, got %v", err)
		}
		if n := len(f.remote.Creates()); n != 0 {
			t.Errorf("expected no remote call, got %d", n)
		}
	})

	t.Run("remote failure leaves the draft untouched", func(t *testing.T) {
		f := setup(t, alice)
		f.remote.FailCreate = errors.New("boom")
		draft, _ := f.engine.Create("Evening")
		_ = f.engine.AddItem(draft.ID, f.song(t, "s1"), 1)

		if _, err := f.engine.Promote(context.Background(), draft.ID); err == nil {
			t.Fatal("expected promote to fail")
		}
		got, ok := f.engine.Get(draft.ID)
		if !ok || !f.engine.IsDraft(draft.ID) || got.Len() != 1 {
			t.Errorf("draft should be unchanged, got %+v", got)
		}

		f.remote.FailCreate = nil
		if _, err := f.engine.Promote(context.Background(), draft.ID); err != nil {
			t.Errorf("retrying after a failure should succeed, got %v", err)
		}
	})

	t.Run("a draft already being saved cannot be saved again", func(t *testing.T) {
		f := setup(t, alice)
		e := f.engine
		f.read(t)
		draft, _ := e.Create("Evening")

		entered := make(chan struct{}, 2)
		release := make(chan struct{})
		f.remote.BeforeCreate = func(string) {
			entered <- struct{}{}
			<-release
		}

		errs := make(chan error, 1)
		go func() {
			_, err := e.Promote(context.Background(), draft.ID)
			errs <- err
		}()
		<-entered

		if _, err := e.Promote(context.Background(), draft.ID); !errors.Is(err, shared.ErrPromoting) {
			t.Errorf("expected ErrPromoting, got %v", err)
		}

		close(release)
		if err := <-errs; err != nil {
			t.Fatalf("first Promote() error = %v", err)
		}
		if n := len(f.remote.Creates()); n != 1 {
			t.Errorf("expected exactly 1 create, got %d", n)
		}
		if _, err := e.Promote(context.Background(), draft.ID); !errors.Is(err, shared.ErrDraftNotFound) {
			t.Errorf("a promoted draft is gone, expected ErrDraftNotFound, got %v", err)
		}

		persisted := 0
		for _, l := range e.Lists() {
			if l.Name == "Evening" {
				persisted++
			}
		}
		if persisted != 1 {
			t.Errorf("expected one Evening list, got %d", persisted)
		}
	})

	t.Run("edits during promotion carry over", func(t *testing.T) {
		f := setup(t, alice)
		e := f.engine
		f.read(t)
		draft, _ := e.Create("Evening")
		_ = e.AddItem(draft.ID, f.song(t, "s1"), 1)

		entered := make(chan struct{})
		release := make(chan struct{})
		f.remote.BeforeCreate = func(string) {
			close(entered)
			<-release
		}

		done := make(chan string)
		go func() {
			id, err := e.Promote(context.Background(), draft.ID)
			if err != nil {
				t.Errorf("Promote() error = %v", err)
			}
			done <- id
		}()

		<-entered
		if err := e.Rename(draft.ID, "Evening (edited)"); err != nil {
			t.Fatalf("Rename() error = %v", err)
		}
		close(release)
		id := <-done

		got, _ := e.Get(id)
		if got.Name != "Evening (edited)" {
			t.Errorf("expected edit to carry over, got %s", got.Name)
		}
		tu.Eventually(t, time.Second, func() bool {
			u := f.remote.Updates()
			return len(u) == 1 && u[0].ID == id && u[0].Update.Name == "Evening (edited)"
		}, "carried-over edit should be flushed")
	})
}

func TestDelete(t *testing.T) {
	t.Run("draft is removed locally", func(t *testing.T) {
		f := setup(t, alice)
		draft, _ := f.engine.Create("Scratch")

		if err := f.engine.Delete(context.Background(), draft.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if f.engine.IsDraft(draft.ID) {
			t.Error("draft should be gone")
		}
		if n := len(f.remote.Deletes()); n != 0 {
			t.Errorf("deleting a draft must not call the remote store, got %d", n)
		}
	})

	t.Run("persisted list is deleted remotely", func(t *testing.T) {
		f := setup(t, alice, sunday())
		e := f.engine
		f.read(t)
		_ = e.SetActive("l1")

		if err := e.Delete(context.Background(), "l1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, ok := e.Get("l1"); ok {
			t.Error("deleted list still cached")
		}
		if e.ActiveID() == "l1" {
			t.Error("active list should move off a deleted list")
		}
		if _, ok := f.remote.Server("l1"); ok {
			t.Error("list still exists on the server")
		}
	})

	t.Run("remote failure is returned", func(t *testing.T) {
		f := setup(t, alice, sunday())
		e := f.engine
		f.read(t)
		f.remote.FailDelete = errors.New("forbidden")

		if err := e.Delete(context.Background(), "l1"); err == nil {
			t.Fatal("expected delete to fail")
		}
		tu.Eventually(t, time.Second, func() bool { return f.remote.Fetches() >= 2 }, "failed delete should refetch")
		if _, ok := e.Get("l1"); !ok {
			t.Error("list should survive a failed delete")
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		f := setup(t, alice)
		if err := f.engine.Delete(context.Background(), "nope"); !errors.Is(err, shared.ErrListNotFound) {
			t.Errorf("expected ErrListNotFound, got %v", err)
		}
	})
}

func TestActive(t *testing.T) {
	f := setup(t, alice, sunday())
	e := f.engine
	f.read(t)

	if got := e.ActiveID(); got != "l1" {
		t.Errorf("expected fallback to first list, got %q", got)
	}

	draft, _ := e.Create("New")
	if got := e.ActiveID(); got != draft.ID {
		t.Errorf("created draft should be active, got %q", got)
	}

	if err := e.SetActive("missing"); !errors.Is(err, shared.ErrListNotFound) {
		t.Errorf("expected ErrListNotFound, got %v", err)
	}
	if err := e.SetActive("l1"); err != nil {
		t.Errorf("SetActive() error = %v", err)
	}
	lists := e.Lists()
	if len(lists) != 2 || lists[0].ID != draft.ID {
		t.Errorf("expected drafts before persisted lists, got %+v", lists)
	}
}

func TestSync(t *testing.T) {
	catalog := tu.NewMockCatalog()
	remote := tu.NewMockRemote(catalog)
	remote.Seed(aliceScope, models.List{ID: "l1", Name: "Sunday"})
	kv := tu.NewMemoryKV()

	e := New(remote, kv, identity.NewSession(alice, true), Options{Logger: shared.NewLogger(io.Discard), FlushDelay: time.Hour})
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := e.Read(ctx); err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	draft, _ := e.Create("Local")
	_ = e.Rename("l1", "Renamed")

	if err := e.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if u := remote.Updates(); len(u) != 1 || u[0].Update.Name != "Renamed" {
		t.Errorf("expected the scheduled write to fire, got %+v", u)
	}
	if raw := kv.Raw(e.drafts.Key(aliceScope)); !strings.Contains(raw, draft.ID) {
		t.Errorf("expected draft to be persisted, got %q", raw)
	}
}

func waitFor(events <-chan Event, kind EventKind) bool {
	deadline := time.After(time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if ev.Kind == kind {
				return true
			}
		case <-deadline:
			return false
		}
	}
}
