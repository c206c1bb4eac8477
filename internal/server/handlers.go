package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/services"
	"github.com/desertthunder/setlist/internal/shared"
)

// maxBody caps request payloads.
const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps shared sentinels to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrListNotFound),
		errors.Is(err, shared.ErrSongNotFound),
		errors.Is(err, shared.ErrCardNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidOrder),
		errors.Is(err, shared.ErrDuplicateItem),
		errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// scopeFrom reads the scope and user query parameters.
func scopeFrom(r *http.Request) models.Scope {
	return models.Scope{
		Key:    strings.TrimSpace(r.URL.Query().Get("scope")),
		UserID: strings.TrimSpace(r.URL.Query().Get("user")),
	}
}

// ListHandler serves list reads and full-replacement writes for a [services.RemoteStore].
type ListHandler struct {
	store  services.RemoteStore
	logger *log.Logger
}

// NewListHandler creates a handler over store.
func NewListHandler(store services.RemoteStore, logger *log.Logger) *ListHandler {
	return &ListHandler{store: store, logger: shared.WithLogger(logger, "handler", "lists")}
}

// Routes returns the HTTP routes this handler serves.
func (h *ListHandler) Routes() []string {
	return []string{
		"GET /api/lists",
		"POST /api/lists",
		"PUT /api/lists/{id}",
		"DELETE /api/lists/{id}",
	}
}

// ServeHTTP dispatches on method.
func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	case http.MethodPut:
		h.update(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ListHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	// Unknown catalog ids in a list payload are a bad request, not a missing list.
	if errors.Is(err, shared.ErrSongNotFound) || errors.Is(err, shared.ErrCardNotFound) {
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func (h *ListHandler) list(w http.ResponseWriter, r *http.Request) {
	lists, err := h.store.ListAllLists(r.Context(), scopeFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func decodeUpdate(w http.ResponseWriter, r *http.Request) (models.ListUpdate, error) {
	var u models.ListUpdate
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		return u, errors.Join(shared.ErrInvalidInput, err)
	}
	if u.Songs == nil {
		u.Songs = []models.ItemOrder{}
	}
	if u.Cards == nil {
		u.Cards = []models.ItemOrder{}
	}
	return u, nil
}

func (h *ListHandler) create(w http.ResponseWriter, r *http.Request) {
	u, err := decodeUpdate(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	id, err := h.store.CreateList(r.Context(), u.Name, scopeFrom(r), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *ListHandler) update(w http.ResponseWriter, r *http.Request) {
	u, err := decodeUpdate(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.store.UpdateList(r.Context(), r.PathValue("id"), u); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteList(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CatalogHandler serves the read-only song and card catalog.
type CatalogHandler struct {
	catalog services.Catalog
	logger  *log.Logger
}

// NewCatalogHandler creates a handler over catalog.
func NewCatalogHandler(catalog services.Catalog, logger *log.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: shared.WithLogger(logger, "handler", "catalog")}
}

// Routes returns the HTTP routes this handler serves.
func (h *CatalogHandler) Routes() []string {
	return []string{
		"GET /api/songs",
		"GET /api/songs/{id}",
		"GET /api/cards",
		"GET /api/cards/{id}",
	}
}

// ServeHTTP dispatches on the collection named in the path.
func (h *CatalogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var (
		v   any
		err error
	)
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/songs") && id == "":
		v, err = h.catalog.Songs(ctx)
	case strings.HasPrefix(r.URL.Path, "/api/songs"):
		v, err = h.catalog.Song(ctx, id)
	case id == "":
		v, err = h.catalog.Cards(ctx)
	default:
		v, err = h.catalog.Card(ctx, id)
	}

	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("catalog read failed", "path", r.URL.Path, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}
