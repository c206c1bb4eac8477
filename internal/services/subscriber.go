package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/shared"
	"github.com/gorilla/websocket"
)

// ChangeNotice is pushed to subscribers after a list of Scope changed.
type ChangeNotice struct {
	Type  string `json:"type"`
	Scope string `json:"scope"`
	ID    string `json:"id,omitempty"`
}

// NoticeListsChanged is the [ChangeNotice] type for list writes.
const NoticeListsChanged = "lists"

// SubscriberOptions configures a [Subscriber].
type SubscriberOptions struct {
	// Retry is the wait between reconnect attempts.
	Retry  time.Duration
	Logger *log.Logger
	Dialer *websocket.Dialer
}

// Subscriber follows a list server's change feed for one scope and reconnects when
// the connection drops.
type Subscriber struct {
	baseURL string
	opts    SubscriberOptions
	logger  *log.Logger
}

// NewSubscriber creates a subscriber for the server at baseURL (http or https).
func NewSubscriber(baseURL string, opts SubscriberOptions) *Subscriber {
	if opts.Retry <= 0 {
		opts.Retry = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Subscriber{
		baseURL: baseURL,
		opts:    opts,
		logger:  shared.WithLogger(opts.Logger, "component", "subscriber"),
	}
}

// EventsURL returns the websocket address of the change feed for scope.
func (s *Subscriber) EventsURL(scope models.Scope) (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: server url %q", shared.ErrInvalidConfig, s.baseURL)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u = u.JoinPath("api", "events")
	u.RawQuery = scopeQuery(scope)
	return u.String(), nil
}

// Run delivers every notice for scope to fn until ctx is done, redialing after failures.
func (s *Subscriber) Run(ctx context.Context, scope models.Scope, fn func(ChangeNotice)) error {
	target, err := s.EventsURL(scope)
	if err != nil {
		return err
	}

	for {
		if err := s.listen(ctx, target, fn); err != nil && ctx.Err() == nil {
			s.logger.Warn("change feed disconnected", "scope", scope.Key, "error", err)
		}

		t := time.NewTimer(s.opts.Retry)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

func (s *Subscriber) listen(ctx context.Context, target string, fn func(ChangeNotice)) error {
	conn, _, err := s.opts.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	s.logger.Debug("change feed connected", "url", target)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("failed to read: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}

		var notice ChangeNotice
		if err := json.Unmarshal(data, &notice); err != nil {
			s.logger.Warn("malformed notice", "error", err)
			continue
		}
		fn(notice)
	}
}
