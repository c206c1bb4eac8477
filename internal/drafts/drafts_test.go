package drafts

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/ordering"
	"github.com/desertthunder/setlist/internal/shared"
	tu "github.com/desertthunder/setlist/internal/testing"
)

var (
	alice = models.Scope{Key: "user-alice", UserID: "alice"}
	bob   = models.Scope{Key: "user-bob", UserID: "bob"}
)

func newTestStore(t *testing.T, kv KeyValueStore) *Store {
	t.Helper()
	s := NewStore(kv, Options{Logger: shared.NewLogger(io.Discard)})
	t.Cleanup(func() { s.Close() })
	return s
}

func draft(id, name string) models.List {
	return models.List{ID: id, Name: name, Songs: []models.SongItem{}, Cards: []models.CardItem{}}
}

func TestStore(t *testing.T) {
	t.Run("Add prepends and persists", func(t *testing.T) {
		kv := tu.NewMemoryKV()
		s := newTestStore(t, kv)
		s.Load(alice)

		if err := s.Add(draft("d1", "First")); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		if err := s.Add(draft("d2", "Second")); err != nil {
			t.Fatalf("Add() error = %v", err)
		}

		all := s.All()
		if len(all) != 2 || all[0].ID != "d2" || all[1].ID != "d1" {
			t.Fatalf("expected newest first, got %+v", all)
		}

		s.Flush()
		var stored []models.List
		if err := json.Unmarshal([]byte(kv.Raw("drafts:user-alice")), &stored); err != nil {
			t.Fatalf("stored drafts are not valid JSON: %v", err)
		}
		if len(stored) != 2 {
			t.Errorf("expected 2 stored drafts, got %d", len(stored))
		}
	})

	t.Run("Add rejects duplicates and invalid lists", func(t *testing.T) {
		s := newTestStore(t, tu.NewMemoryKV())
		if err := s.Add(draft("d1", "First")); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		if err := s.Add(draft("d1", "Again")); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for duplicate, got %v", err)
		}
		if err := s.Add(draft("d2", "  ")); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for blank name, got %v", err)
		}
	})

	t.Run("Update and Remove", func(t *testing.T) {
		s := newTestStore(t, tu.NewMemoryKV())
		_ = s.Add(draft("d1", "First"))

		ok := s.Update("d1", func(l models.List) models.List {
			l.Name = "Renamed"
			l.ID = "hijacked"
			return l
		})
		if !ok {
			t.Fatal("Update() should report true for an existing draft")
		}

		got, _ := s.Get("d1")
		if got.Name != "Renamed" {
			t.Errorf("expected Renamed, got %s", got.Name)
		}
		if s.Has("hijacked") {
			t.Error("Update must not change the draft id")
		}

		called := false
		if s.Update("missing", func(l models.List) models.List { called = true; return l }) {
			t.Error("Update() on a missing id should report false")
		}
		if called {
			t.Error("Update() should not call fn for a missing id")
		}

		if !s.Remove("d1") || s.Has("d1") {
			t.Error("Remove() should delete the draft")
		}
		if s.Remove("d1") {
			t.Error("Remove() on a missing id should report false")
		}
	})

	t.Run("returned lists are copies", func(t *testing.T) {
		s := newTestStore(t, tu.NewMemoryKV())
		l := draft("d1", "First")
		l.Songs = []models.SongItem{{Order: 1, Song: models.Song{ID: "s1"}}}
		_ = s.Add(l)

		got, _ := s.Get("d1")
		got.Songs[0].Order = 99

		again, _ := s.Get("d1")
		if again.Songs[0].Order != 1 {
			t.Error("mutating a returned draft leaked into the store")
		}
	})

	t.Run("scopes are isolated", func(t *testing.T) {
		kv := tu.NewMemoryKV()
		s := newTestStore(t, kv)

		s.Load(alice)
		_ = s.Add(draft("a1", "Alice's"))

		if got := s.Load(bob); len(got) != 0 {
			t.Fatalf("bob should start empty, got %+v", got)
		}
		if s.Has("a1") {
			t.Error("alice's draft leaked into bob's scope")
		}
		_ = s.Add(draft("b1", "Bob's"))

		got := s.Load(alice)
		if len(got) != 1 || got[0].ID != "a1" {
			t.Errorf("expected alice's draft after reload, got %+v", got)
		}
		if s.Scope() != alice {
			t.Errorf("expected scope %v, got %v", alice, s.Scope())
		}
	})

	t.Run("write failures do not block mutations", func(t *testing.T) {
		kv := tu.NewMemoryKV()
		kv.SetErr = errors.New("disk full")
		s := newTestStore(t, kv)

		if err := s.Add(draft("d1", "First")); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		s.Flush()
		if !s.Has("d1") {
			t.Error("in-memory draft should survive a failed write")
		}
		if kv.Sets() == 0 {
			t.Error("expected a write attempt")
		}
	})

	t.Run("Close writes the last snapshot", func(t *testing.T) {
		kv := tu.NewMemoryKV()
		s := NewStore(kv, Options{Prefix: "test:", Logger: shared.NewLogger(io.Discard)})
		_ = s.Add(draft("d1", "First"))
		_ = s.Close()

		if kv.Raw("test:anon") == "" {
			t.Error("expected drafts to be written before Close returns")
		}
	})
}

func TestLoad(t *testing.T) {
	tc := []struct {
		name  string
		raw   string
		want  []string
		check func(t *testing.T, lists []models.List)
	}{
		{name: "not json", raw: "{oops", want: []string{}},
		{name: "not an array", raw: `{"id":"d1","name":"x"}`, want: []string{}},
		{name: "empty", raw: "", want: []string{}},
		{
			name: "invalid entries are discarded",
			raw:  `[{"id":"d1","name":"ok"},{"name":"no id"},42,{"id":"d1","name":"dup"},{"id":"d2","name":""}]`,
			want: []string{"d1"},
		},
		{
			name: "broken orders are renumbered",
			raw:  `[{"id":"d1","name":"x","songs":[{"order":5,"song":{"id":"s1"}},{"order":5,"song":{"id":"s2"}}],"cards":[{"order":2,"card":{"id":"c1"}}]}]`,
			want: []string{"d1"},
			check: func(t *testing.T, lists []models.List) {
				if err := ordering.Validate(lists[0].Songs, lists[0].Cards); err != nil {
					t.Errorf("expected dense orders, got %v", err)
				}
				got := ordering.IDs(ordering.CombineAndSort(lists[0].Songs, lists[0].Cards))
				want := []string{"c1", "s1", "s2"}
				for i := range want {
					if got[i] != want[i] {
						t.Errorf("sequence = %v, want %v", got, want)
						break
					}
				}
			},
		},
		{
			name: "items without ids and duplicate items are dropped",
			raw:  `[{"id":"d1","name":"x","songs":[{"order":1,"song":{"id":"s1"}},{"order":2,"song":{}}],"cards":[{"order":3,"card":{"id":"s1"}}]}]`,
			want: []string{"d1"},
			check: func(t *testing.T, lists []models.List) {
				if n := lists[0].Len(); n != 1 {
					t.Errorf("expected 1 item, got %d", n)
				}
			},
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			kv := tu.NewMemoryKV()
			kv.Put("drafts:user-alice", tt.raw)
			s := newTestStore(t, kv)

			lists := s.Load(alice)
			if len(lists) != len(tt.want) {
				t.Fatalf("Load() returned %d lists, want %d", len(lists), len(tt.want))
			}
			for i, id := range tt.want {
				if lists[i].ID != id {
					t.Errorf("list %d = %s, want %s", i, lists[i].ID, id)
				}
				if lists[i].Persisted {
					t.Errorf("draft %s should not be marked persisted", id)
				}
			}
			if tt.check != nil {
				tt.check(t, lists)
			}
		})
	}

	t.Run("read error yields empty", func(t *testing.T) {
		kv := tu.NewMemoryKV()
		kv.Put("drafts:user-alice", `[{"id":"d1","name":"x"}]`)
		kv.GetErr = errors.New("locked")
		s := newTestStore(t, kv)

		if got := s.Load(alice); len(got) != 0 {
			t.Errorf("expected empty drafts on read error, got %+v", got)
		}
	})
}
