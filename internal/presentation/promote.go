package presentation

import (
	"context"
	"fmt"

	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
)

// Promote persists draft draftID with one CreateList call and returns the new list id,
// which becomes the active list.
//
// The draft is removed only after the remote store accepts it; on failure it is left
// untouched. A second call for a draft that is still being saved fails with
// [shared.ErrPromoting]. Edits made to the draft while the call was in flight are carried over to
// the persisted list and flushed.
func (e *Engine) Promote(ctx context.Context, draftID string) (string, error) {
	e.mu.Lock()
	scope, ready := e.scope, e.ready
	if !ready || !scope.Authenticated() {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: sign in to save %s", shared.ErrNotAuthenticated, draftID)
	}
	draft, ok := e.drafts.Get(draftID)
	if !ok {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s", shared.ErrDraftNotFound, draftID)
	}
	if e.promoting[draftID] {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s", shared.ErrPromoting, draftID)
	}
	e.promoting[draftID] = true
	e.mu.Unlock()

	e.logger.Info("promoting draft", "id", draftID, "name", draft.Name, "items", draft.Len())
	id, err := e.remote.CreateList(ctx, draft.Name, scope, models.UpdateFromList(draft))

	e.mu.Lock()
	delete(e.promoting, draftID)
	if err != nil {
		e.mu.Unlock()
		return "", fmt.Errorf("failed to promote draft %s: %w", draftID, err)
	}

	if e.scope != scope {
		e.mu.Unlock()
		e.logger.Warn("scope changed while promoting", "draft", draftID, "id", id)
		return id, fmt.Errorf("%w: draft %s was saved as %s", shared.ErrScopeChanged, draftID, id)
	}

	latest, stillDraft := e.drafts.Get(draftID)
	e.drafts.Remove(draftID)

	persisted := draft.Clone()
	persisted.ID = id
	persisted.Persisted = true
	e.cache.Insert(persisted)

	if stillDraft && !sameContent(draft, latest) {
		e.cache.OptimisticUpdate(id, func(l models.List) models.List {
			l.Name, l.Songs, l.Cards = latest.Name, latest.Songs, latest.Cards
			return l
		})
		e.flush.Schedule(id)
	}

	e.active = id
	e.mu.Unlock()

	e.cache.Invalidate()
	e.logger.Info("draft promoted", "draft", draftID, "id", id)
	e.emit(Event{Kind: ListPromoted, ListID: id, Message: draftID})
	return id, nil
}
