package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	return ws
}

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_DeliversEventsAndTracksPresence(t *testing.T) {
	var (
		mu     sync.Mutex
		firsts []string
		lasts  []string
	)

	hub := NewHub(nil).OnPresence(
		func(userID string) {
			mu.Lock()
			defer mu.Unlock()
			firsts = append(firsts, userID)
		},
		func(userID string) {
			mu.Lock()
			defer mu.Unlock()
			lasts = append(lasts, userID)
		},
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "u1")
	}))
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitFor(t, func() bool { return hub.Connections("u1") == 2 }, time.Second)

	hub.Notify("u1", Event{Type: BackfillCompleted, Count: 3})
	hub.Notify("someone-else", Event{Type: BackfillCompleted, Count: 9})

	for _, ws := range []*websocket.Conn{a, b} {
		_ = ws.SetReadDeadline(time.Now().Add(time.Second))
		var ev Event
		if err := ws.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON() error: %v", err)
		}
		if ev.Type != BackfillCompleted || ev.Count != 3 {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.At.IsZero() {
			t.Fatalf("expected event time to be set")
		}
	}

	_ = a.Close()
	waitFor(t, func() bool { return hub.Connections("u1") == 1 }, time.Second)

	mu.Lock()
	if len(lasts) != 0 {
		mu.Unlock()
		t.Fatalf("expected no last-disconnect callback while a connection remains")
	}
	mu.Unlock()

	_ = b.Close()
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lasts) == 1
	}, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(firsts) != 1 || firsts[0] != "u1" {
		t.Fatalf("expected one first-connect callback for u1, got %v", firsts)
	}
	if lasts[0] != "u1" {
		t.Fatalf("expected last-disconnect for u1, got %v", lasts)
	}
}

func TestHub_RejectsUnknownOrigin(t *testing.T) {
	hub := NewHub([]string{"https://admin.example.com"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "u1")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatalf("expected handshake to fail for unknown origin")
	}

	header.Set("Origin", "https://admin.example.com")
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("expected allowed origin to connect, got %v", err)
	}
	_ = ws.Close()
}

func TestHub_NotifyWithoutConnectionsIsNoop(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	hub.Notify("nobody", Event{Type: MessageReceived})

	if n := hub.Connections("nobody"); n != 0 {
		t.Fatalf("expected 0 connections, got %d", n)
	}
}

// sessionTracker mirrors the session manager: starting a running session and
// stopping a stopped one are no-ops.
type sessionTracker struct {
	mu      sync.Mutex
	running map[string]bool
	starts  int
	stops   int
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{running: make(map[string]bool)}
}

func (s *sessionTracker) start(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[userID] {
		return
	}
	s.running[userID] = true
	s.starts++
}

func (s *sessionTracker) stop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running[userID] {
		return
	}
	delete(s.running, userID)
	s.stops++
}

func (s *sessionTracker) isRunning(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[userID]
}

func newConn() *conn {
	return &conn{send: make(chan Event, sendBuffer)}
}

func TestHub_ReconnectKeepsSessionWhenOldTeardownReportsLate(t *testing.T) {
	t.Parallel()

	sessions := newSessionTracker()
	hub := NewHub(nil).OnPresence(sessions.start, sessions.stop)

	old := newConn()
	hub.register("u1", old)
	if !sessions.isRunning("u1") {
		t.Fatalf("expected session after first connection")
	}

	// The tab closes and reopens; the new connection reports presence
	// before the old one gets to report its disconnect.
	hub.detach("u1", old)
	fresh := newConn()
	hub.attach("u1", fresh)
	hub.reconcile("u1")
	hub.reconcile("u1")

	if hub.Connections("u1") != 1 || !sessions.isRunning("u1") {
		t.Fatalf("open view without session: connections=%d running=%v", hub.Connections("u1"), sessions.isRunning("u1"))
	}

	hub.unregister("u1", fresh)
	if sessions.isRunning("u1") {
		t.Fatalf("expected session stopped after the last connection closed")
	}
}

func TestHub_ReconnectAfterTeardownRestartsSession(t *testing.T) {
	t.Parallel()

	sessions := newSessionTracker()
	hub := NewHub(nil).OnPresence(sessions.start, sessions.stop)

	old := newConn()
	hub.register("u1", old)
	hub.unregister("u1", old)

	fresh := newConn()
	hub.register("u1", fresh)

	if !sessions.isRunning("u1") {
		t.Fatalf("expected session running for the new connection")
	}
	if sessions.starts != 2 || sessions.stops != 1 {
		t.Fatalf("expected 2 starts and 1 stop, got %d/%d", sessions.starts, sessions.stops)
	}
}

func TestHub_ConcurrentReconnectsEndConsistent(t *testing.T) {
	t.Parallel()

	sessions := newSessionTracker()
	hub := NewHub(nil).OnPresence(sessions.start, sessions.stop)

	keep := newConn()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newConn()
			hub.register("u1", c)
			hub.unregister("u1", c)
		}()
		if i == 25 {
			hub.register("u1", keep)
		}
	}
	wg.Wait()

	if hub.Connections("u1") != 1 || !sessions.isRunning("u1") {
		t.Fatalf("expected the remaining connection to keep its session, connections=%d running=%v",
			hub.Connections("u1"), sessions.isRunning("u1"))
	}

	hub.unregister("u1", keep)
	if sessions.isRunning("u1") {
		t.Fatalf("expected session stopped once every connection closed")
	}
}
