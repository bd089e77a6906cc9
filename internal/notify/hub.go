// Package notify pushes sync events to the websocket connections a user has
// open. A user's open connections are the "view" that keeps their sync
// session alive.
package notify

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LeventeLantos/message-sync/internal/model"
)

type EventType string

const (
	MessageReceived   EventType = "message.received"
	BackfillCompleted EventType = "backfill.completed"
)

type Event struct {
	Type    EventType      `json:"type"`
	Count   int            `json:"count,omitempty"`
	Message *model.Message `json:"message,omitempty"`
	At      time.Time      `json:"at"`
}

const (
	sendBuffer = 32
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type conn struct {
	ws   *websocket.Conn
	send chan Event
}

// presence is what the hub last reported for a user through the presence
// callbacks. Its mutex serializes those callbacks per user.
type presence struct {
	mu     sync.Mutex
	active bool
}

type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[string]map[*conn]struct{}
	presence map[string]*presence

	onFirst func(userID string)
	onLast  func(userID string)
}

// NewHub accepts connections from any origin when allowedOrigins is empty.
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowedOrigins) == 0 || origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
		conns:    make(map[string]map[*conn]struct{}),
		presence: make(map[string]*presence),
	}
}

// OnPresence registers callbacks for a user's first connection opening and
// last connection closing. Callbacks for the same user never overlap.
func (h *Hub) OnPresence(first, last func(userID string)) *Hub {
	h.onFirst = first
	h.onLast = last
	return h
}

// Notify never blocks; events for a connection whose buffer is full are
// dropped.
func (h *Hub) Notify(userID string, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.conns[userID] {
		select {
		case c.send <- ev:
		default:
			slog.Warn("notification dropped", "user_id", userID, "type", ev.Type)
		}
	}
}

func (h *Hub) Connections(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

// Serve upgrades the request and blocks until the connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "user_id", userID, "err", err)
		return
	}

	c := &conn{ws: ws, send: make(chan Event, sendBuffer)}
	h.register(userID, c)
	defer h.unregister(userID, c)

	go c.writeLoop()
	c.readLoop()
}

func (h *Hub) register(userID string, c *conn) {
	h.attach(userID, c)
	slog.Info("websocket connected", "user_id", userID)
	h.reconcile(userID)
}

func (h *Hub) unregister(userID string, c *conn) {
	h.detach(userID, c)
	slog.Info("websocket disconnected", "user_id", userID)
	h.reconcile(userID)
}

func (h *Hub) attach(userID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*conn]struct{})
		h.conns[userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) detach(userID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.conns[userID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
	close(c.send)
}

// reconcile brings the reported presence of userID in line with its current
// connection count. Every attach and detach is followed by a reconcile, so
// whichever runs last sees the final count, regardless of the order in
// which connections of the same user open and close.
func (h *Hub) reconcile(userID string) {
	h.mu.Lock()
	p, ok := h.presence[userID]
	if !ok {
		p = &presence{}
		h.presence[userID] = p
	}
	h.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	online := h.Connections(userID) > 0
	switch {
	case online && !p.active:
		p.active = true
		if h.onFirst != nil {
			h.onFirst(userID)
		}
	case !online && p.active:
		p.active = false
		if h.onLast != nil {
			h.onLast(userID)
		}
	}
}

// readLoop only exists to process control frames and notice the close.
func (c *conn) readLoop() {
	c.ws.SetReadLimit(4096)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "err", err)
			}
			return
		}
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
