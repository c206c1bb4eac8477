package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/services"
	"github.com/desertthunder/setlist/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

type subscriber struct {
	scope string
	send  chan services.ChangeNotice
}

// Hub pushes list change notices to websocket subscribers of the affected scope.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		logger:   shared.WithLogger(logger, "component", "hub"),
		clients:  make(map[*subscriber]struct{}),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *Hub) Routes() []string {
	return []string{"GET /api/events"}
}

// ServeHTTP upgrades the request and streams notices for the scope query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	if scope == "" {
		writeError(w, http.StatusBadRequest, "scope is required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade", "error", err)
		return
	}

	sub := &subscriber{scope: scope, send: make(chan services.ChangeNotice, sendBuffer)}
	if !h.register(sub) {
		conn.Close()
		return
	}

	go h.writePump(conn, sub)
	h.readPump(conn, sub)
}

// Broadcast queues n for every subscriber of n.Scope. Slow subscribers miss notices
// rather than block writers.
func (h *Hub) Broadcast(n services.ChangeNotice) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.clients {
		if sub.scope != n.Scope {
			continue
		}
		select {
		case sub.send <- n:
		default:
			h.logger.Debug("subscriber lagging, notice dropped", "scope", sub.scope)
		}
	}
}

// NotifyScope broadcasts a list change for scope. It fits [services.LocalStore.OnChange].
func (h *Hub) NotifyScope(scope models.Scope) {
	h.Broadcast(services.ChangeNotice{Type: services.NoticeListsChanged, Scope: scope.Key})
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.clients {
		close(sub.send)
		delete(h.clients, sub)
	}
}

func (h *Hub) register(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[sub] = struct{}{}
	h.logger.Debug("subscriber connected", "scope", sub.scope)
	return true
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[sub]; ok {
		delete(h.clients, sub)
		close(sub.send)
		h.logger.Debug("subscriber disconnected", "scope", sub.scope)
	}
}

// readPump drains the connection until the peer goes away.
func (h *Hub) readPump(conn *websocket.Conn, sub *subscriber) {
	defer h.unregister(sub)

	conn.SetReadDeadline(time.Now().Add(2 * pingPeriod))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * pingPeriod))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case n, ok := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(n); err != nil {
				h.logger.Debug("failed to write notice", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
