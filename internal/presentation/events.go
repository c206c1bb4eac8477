package presentation

// Event reports a change to the lists exposed by an [Engine].
//
// Used to push updates to the CLI or UI layer without polling.
type Event struct {
	Kind    EventKind // What happened
	ListID  string    // Affected list, if any
	Message string    // Human-readable message for display
	Dropped []string  // Item ids pruned by a reorder
	Err     error     // Failure behind a *Failed event
}

// Event kind enumeration
type EventKind int

const (
	ListsChanged EventKind = iota
	ActiveChanged
	ScopeChanged
	ListCreated
	ListDeleted
	ListPromoted
	ReorderPruned
	Flushed
	FlushFailed
)

func (k EventKind) String() string {
	switch k {
	case ListsChanged:
		return "lists_changed"
	case ActiveChanged:
		return "active_changed"
	case ScopeChanged:
		return "scope_changed"
	case ListCreated:
		return "list_created"
	case ListDeleted:
		return "list_deleted"
	case ListPromoted:
		return "list_promoted"
	case ReorderPruned:
		return "reorder_pruned"
	case Flushed:
		return "flushed"
	case FlushFailed:
		return "flush_failed"
	default:
		return "unknown"
	}
}

// subscriberBuffer bounds each subscriber channel; events beyond it are dropped.
const subscriberBuffer = 64

// Subscribe returns a channel receiving every subsequent event.
//
// Sends never block: a subscriber that falls behind misses events. The channel is
// closed by [Engine.Close].
func (e *Engine) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	if e.closed {
		close(ch)
		return ch
	}
	e.subs = append(e.subs, ch)
	return ch
}

func (e *Engine) emit(ev Event) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *Engine) closeSubscribers() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
	e.closed = true
}
