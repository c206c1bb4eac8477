// Package flush debounces writes of persisted lists to the remote store.
//
// Each list id moves through Idle -> Scheduled -> InFlight -> Idle. A burst of edits
// re-arms one timer; when it fires the scheduler writes the list's current cached state
// in a single full-replacement update, then invalidates the cache whether or not the
// write succeeded. At most one write per id is in flight; edits that arrive meanwhile
// re-arm the timer once it resolves.
package flush

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
)

// DefaultDelay is the quiet window before a write fires.
const DefaultDelay = 5 * time.Second

// Writer issues full-replacement list updates.
type Writer interface {
	UpdateList(ctx context.Context, id string, update models.ListUpdate) error
}

// Source is the cache the scheduler reads from and invalidates.
type Source interface {
	Get(id string) (models.List, bool)
	Invalidate()
}

// State is the flush state of one list id.
type State int

const (
	Idle State = iota
	Scheduled
	InFlight
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	case InFlight:
		return "in_flight"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a [Scheduler].
type Options struct {
	Delay        time.Duration
	WriteTimeout time.Duration
	Logger       *log.Logger
	// IsDraft reports ids that must never be flushed.
	IsDraft func(id string) bool
	// Enabled gates scheduling on a ready, authenticated identity.
	Enabled func() bool
	// OnResult runs after every write resolves.
	OnResult func(id string, err error)
}

type entry struct {
	state State
	seq   uint64
	timer *time.Timer
	rerun bool
	done  chan struct{}
}

// Scheduler owns one debounce timer per list id.
type Scheduler struct {
	writer Writer
	source Source
	opts   Options
	logger *log.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// New creates a scheduler writing through w and reading from src.
func New(w Writer, src Source, opts Options) *Scheduler {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Scheduler{
		writer:  w,
		source:  src,
		opts:    opts,
		logger:  shared.WithLogger(opts.Logger, "component", "flush"),
		entries: make(map[string]*entry),
	}
}

// Schedule arms, or re-arms, the write of id.
//
// Drafts are ignored, as is every id while the identity is not ready and authenticated.
func (s *Scheduler) Schedule(id string) {
	if s.opts.IsDraft != nil && s.opts.IsDraft(id) {
		return
	}
	if s.opts.Enabled != nil && !s.opts.Enabled() {
		s.logger.Debug("flush disabled", "id", id)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}

	switch e.state {
	case Idle:
		s.arm(id, e)
	case Scheduled:
		e.timer.Stop()
		s.arm(id, e)
	case InFlight:
		e.rerun = true
	}
}

// State returns the current state of id.
func (s *Scheduler) State(id string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.state
	}
	return Idle
}

// Pending reports whether id has a write scheduled or in flight.
func (s *Scheduler) Pending(id string) bool {
	return s.State(id) != Idle
}

// Dispose cancels every scheduled write. Writes already in flight run to completion
// but are not re-armed.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if e.state == Scheduled {
			e.timer.Stop()
		}
		e.rerun = false
		delete(s.entries, id)
	}
}

// Cancel drops the scheduled write of id. A write already in flight completes but is
// not re-armed.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	if e.state == Scheduled {
		e.timer.Stop()
	}
	e.rerun = false
	delete(s.entries, id)
}

// Close disposes the scheduler and rejects further scheduling.
func (s *Scheduler) Close() {
	s.Dispose()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// FlushPending fires every scheduled write now and waits until no write is scheduled
// or in flight.
func (s *Scheduler) FlushPending(ctx context.Context) error {
	type due struct {
		id  string
		seq uint64
	}

	for {
		var fire []due
		var waits []chan struct{}

		s.mu.Lock()
		for id, e := range s.entries {
			switch e.state {
			case Scheduled:
				e.timer.Stop()
				fire = append(fire, due{id: id, seq: e.seq})
			case InFlight:
				waits = append(waits, e.done)
			}
		}
		s.mu.Unlock()

		if len(fire) == 0 && len(waits) == 0 {
			return nil
		}

		for _, d := range fire {
			s.fire(d.id, d.seq)
		}

		for _, done := range waits {
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// arm starts a fresh debounce window for e. Callers hold s.mu.
func (s *Scheduler) arm(id string, e *entry) {
	e.state = Scheduled
	e.seq++
	seq := e.seq
	e.timer = time.AfterFunc(s.opts.Delay, func() { s.fire(id, seq) })
	s.logger.Debug("flush scheduled", "id", id, "delay", s.opts.Delay)
}

func (s *Scheduler) fire(id string, seq uint64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.state != Scheduled || e.seq != seq {
		s.mu.Unlock()
		return
	}
	e.state = InFlight
	e.rerun = false
	e.done = make(chan struct{})
	s.mu.Unlock()

	err := s.write(id)

	s.mu.Lock()
	close(e.done)
	current := s.entries[id] == e
	if current && e.rerun && !s.closed {
		e.rerun = false
		s.arm(id, e)
	} else {
		e.state = Idle
		if current {
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("flush failed", "id", id, "error", err)
	} else {
		s.logger.Debug("flush complete", "id", id)
	}

	s.source.Invalidate()
	if s.opts.OnResult != nil {
		s.opts.OnResult(id, err)
	}
}

// write sends the list's current cached state. A list no longer cached writes nothing.
func (s *Scheduler) write(id string) error {
	list, ok := s.source.Get(id)
	if !ok {
		s.logger.Debug("list no longer cached", "id", id)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	defer cancel()

	if err := s.writer.UpdateList(ctx, id, models.UpdateFromList(list)); err != nil {
		return fmt.Errorf("failed to update list %s: %w", id, err)
	}
	return nil
}
