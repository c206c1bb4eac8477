// Package identity resolves the storage scope of the current principal.
//
// Drafts and cached lists are partitioned by [models.Scope]. A scope is a comparable value
// derived only from the principal id, so re-resolving an unchanged principal yields an
// equal scope and never triggers a reload.
package identity

import (
	"strings"
	"sync"

	"github.com/desertthunder/setlist/internal/models"
)

// Principal is the authenticated user, if any. The zero value is anonymous.
type Principal struct {
	ID    string
	Email string
}

// Anonymous reports whether no user is signed in.
func (p Principal) Anonymous() bool {
	return strings.TrimSpace(p.ID) == ""
}

// Provider exposes the current principal and whether authentication has settled.
//
// The engine neither fetches nor flushes before ready is true.
type Provider interface {
	Principal() (p Principal, ready bool)
}

// ResolveScope maps a principal to its storage scope.
func ResolveScope(p Principal) models.Scope {
	if p.Anonymous() {
		return models.AnonymousScope()
	}
	id := strings.TrimSpace(p.ID)
	return models.Scope{Key: "user-" + id, UserID: id}
}

// Current resolves the scope of provider along with its ready flag.
func Current(provider Provider) (models.Scope, bool) {
	p, ready := provider.Principal()
	return ResolveScope(p), ready
}

// Listener is called with the new scope after the principal or ready flag changes.
type Listener func(scope models.Scope, ready bool)

// Session is an in-process [Provider] whose principal changes on sign in and sign out.
type Session struct {
	mu        sync.Mutex
	principal Principal
	ready     bool
	listeners []Listener
}

// NewSession creates a session for principal. An anonymous principal is allowed.
func NewSession(principal Principal, ready bool) *Session {
	return &Session{principal: principal, ready: ready}
}

// Principal implements [Provider].
func (s *Session) Principal() (Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal, s.ready
}

// OnChange registers fn to run after every change. Listeners run on the caller's goroutine.
func (s *Session) OnChange(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SignIn switches to principal and marks the session ready.
func (s *Session) SignIn(principal Principal) {
	s.set(principal, true)
}

// SignOut clears the principal. The session stays ready.
func (s *Session) SignOut() {
	s.set(Principal{}, true)
}

// MarkReady settles the current principal.
func (s *Session) MarkReady() {
	s.mu.Lock()
	p := s.principal
	s.mu.Unlock()
	s.set(p, true)
}

func (s *Session) set(principal Principal, ready bool) {
	s.mu.Lock()
	before := ResolveScope(s.principal)
	wasReady := s.ready
	s.principal = principal
	s.ready = ready
	after := ResolveScope(principal)
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if before == after && wasReady == ready {
		return
	}
	for _, fn := range listeners {
		fn(after, ready)
	}
}
