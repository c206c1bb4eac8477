// HTTP client for a remote list server
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
	"golang.org/x/time/rate"
)

// APIOptions configures an [APIService].
type APIOptions struct {
	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64
	Burst     int
	Timeout   time.Duration
	Logger    *log.Logger
}

// APIService is a [Backend] that talks to a list server over HTTP.
type APIService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewAPIService creates a new API service instance for the list server at baseURL.
func NewAPIService(baseURL string, client *http.Client, opts APIOptions) *APIService {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if client == nil {
		client = http.DefaultClient
		if opts.Timeout > 0 {
			client = &http.Client{Timeout: opts.Timeout}
		}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := max(opts.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &APIService{
		baseURL:    baseURL,
		httpClient: client,
		limiter:    limiter,
		logger:     shared.WithLogger(opts.Logger, "component", "api"),
	}
}

// BaseURL returns the server address requests are sent to.
func (a *APIService) BaseURL() string {
	return a.baseURL
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// errorBody is the JSON error payload returned by the list server.
type errorBody struct {
	Error string `json:"error"`
}

type createdBody struct {
	ID string `json:"id"`
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPost, path, data)
}

// Put performs a PUT request with the given JSON data and returns the raw response.
func (a *APIService) Put(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPut, path, data)
}

// Delete performs a DELETE request and returns the raw response.
func (a *APIService) Delete(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodDelete, path, nil)
}

func (a *APIService) do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	a.logger.Debug("request", "method", method, "path", path)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}

	var jsonData any
	if err := json.Unmarshal(respBody, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// check maps an error status to a shared sentinel; notFound is used for 404.
func (r *APIResponse) check(notFound error, what string) error {
	if r.StatusCode < 400 {
		return nil
	}

	msg := http.StatusText(r.StatusCode)
	var eb errorBody
	if err := json.Unmarshal(r.Body, &eb); err == nil && eb.Error != "" {
		msg = eb.Error
	}

	switch r.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", notFound, what)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", shared.ErrNotAuthenticated, msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", shared.ErrInvalidInput, msg)
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", shared.ErrServiceUnavailable, msg)
	default:
		return fmt.Errorf("%w: %d %s", shared.ErrAPIRequest, r.StatusCode, msg)
	}
}

func (a *APIService) fetch(ctx context.Context, path string, notFound error, what string, out any) error {
	resp, err := a.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := resp.check(notFound, what); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", what, err)
	}
	return nil
}

func scopeQuery(scope models.Scope) string {
	q := url.Values{}
	q.Set("scope", scope.Key)
	if scope.UserID != "" {
		q.Set("user", scope.UserID)
	}
	return q.Encode()
}

// ListAllLists returns every list of scope, newest first.
func (a *APIService) ListAllLists(ctx context.Context, scope models.Scope) ([]models.List, error) {
	var lists []models.List
	if err := a.fetch(ctx, "/api/lists?"+scopeQuery(scope), shared.ErrListNotFound, "lists", &lists); err != nil {
		return nil, err
	}
	for i := range lists {
		lists[i].Persisted = true
	}
	return lists, nil
}

// CreateList persists a new list and returns its server-assigned id.
func (a *APIService) CreateList(ctx context.Context, name string, scope models.Scope, items models.ListUpdate) (string, error) {
	items.Name = name
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}

	resp, err := a.Post(ctx, "/api/lists?"+scopeQuery(scope), data)
	if err != nil {
		return "", err
	}
	if err := resp.check(shared.ErrListNotFound, name); err != nil {
		return "", err
	}

	var created createdBody
	if err := json.Unmarshal(resp.Body, &created); err != nil || created.ID == "" {
		return "", fmt.Errorf("%w: create response carried no id", shared.ErrAPIRequest)
	}
	return created.ID, nil
}

// UpdateList replaces the name and every item order of list id.
func (a *APIService) UpdateList(ctx context.Context, id string, update models.ListUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to encode list: %w", err)
	}

	resp, err := a.Put(ctx, "/api/lists/"+url.PathEscape(id), data)
	if err != nil {
		return err
	}
	return resp.check(shared.ErrListNotFound, id)
}

// DeleteList removes list id.
func (a *APIService) DeleteList(ctx context.Context, id string) error {
	resp, err := a.Delete(ctx, "/api/lists/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	return resp.check(shared.ErrListNotFound, id)
}

// Songs returns the song catalog.
func (a *APIService) Songs(ctx context.Context) ([]models.Song, error) {
	var songs []models.Song
	if err := a.fetch(ctx, "/api/songs", shared.ErrSongNotFound, "songs", &songs); err != nil {
		return nil, err
	}
	return songs, nil
}

// Song returns one catalog song.
func (a *APIService) Song(ctx context.Context, id string) (*models.Song, error) {
	var song models.Song
	if err := a.fetch(ctx, "/api/songs/"+url.PathEscape(id), shared.ErrSongNotFound, id, &song); err != nil {
		return nil, err
	}
	return &song, nil
}

// Cards returns the card catalog.
func (a *APIService) Cards(ctx context.Context) ([]models.Card, error) {
	var cards []models.Card
	if err := a.fetch(ctx, "/api/cards", shared.ErrCardNotFound, "cards", &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// Card returns one catalog card.
func (a *APIService) Card(ctx context.Context, id string) (*models.Card, error) {
	var card models.Card
	if err := a.fetch(ctx, "/api/cards/"+url.PathEscape(id), shared.ErrCardNotFound, id, &card); err != nil {
		return nil, err
	}
	return &card, nil
}
