package syncer

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/LeventeLantos/message-sync/internal/scheduler"
)

type Config struct {
	PollInterval  time.Duration
	Tolerance     time.Duration
	BackfillDelay time.Duration
	MaxPages      int
	PageDelay     time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.BackfillDelay < 0 {
		c.BackfillDelay = DefaultBackfillDelay
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.PageDelay < 0 {
		c.PageDelay = DefaultPageDelay
	}
	return c
}

// Session is the pair of background tasks kept alive for one user.
type Session struct {
	UserID    string
	StartedAt time.Time

	// Poll counts ticks run and ticks skipped because the previous poll was
	// still in flight. BackfillFired is set once the delayed backfill began.
	Poll          scheduler.Stats
	BackfillFired bool

	poll     *scheduler.Scheduler
	backfill *scheduler.Once
}

func (s *Session) stop() {
	s.backfill.Stop()
	s.poll.Stop()
}

// Manager owns at most one session per user.
type Manager struct {
	deps Deps
	cfg  Config

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps Deps, cfg Config) *Manager {
	return &Manager{
		deps:     deps,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// Start begins polling for userID and schedules its backfill. It reports
// false when a session is already running.
func (m *Manager) Start(userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[userID]; ok {
		return false, nil
	}

	poller := NewPoller(m.deps, userID, m.cfg.Tolerance)
	poll, err := scheduler.New(m.cfg.PollInterval, poller.Tick)
	if err != nil {
		return false, fmt.Errorf("create poller: %w", err)
	}

	backfill := NewBackfill(m.deps, userID, m.cfg.MaxPages, m.cfg.PageDelay)
	once, err := scheduler.NewOnce(m.cfg.BackfillDelay, backfill.Execute)
	if err != nil {
		return false, fmt.Errorf("create backfill: %w", err)
	}

	s := &Session{
		UserID:    userID,
		StartedAt: time.Now().UTC(),
		poll:      poll.Named("poll:" + userID),
		backfill:  once.Named("backfill:" + userID),
	}
	m.sessions[userID] = s

	s.poll.Start()
	s.backfill.Start()

	slog.Info("sync session started", "user_id", userID)
	return true, nil
}

// Stop cancels the poller, a pending or running backfill, and waits for
// both to return.
func (m *Manager) Stop(userID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return false
	}

	s.stop()
	slog.Info("sync session stopped", "user_id", userID)
	return true
}

func (m *Manager) IsRunning(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[userID]
	return ok
}

func (m *Manager) Session(userID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return Session{
		UserID:        s.UserID,
		StartedAt:     s.StartedAt,
		Poll:          s.poll.Stats(),
		BackfillFired: s.backfill.Fired(),
	}, true
}

func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range sessions {
		s.stop()
		slog.Info("sync session stopped", "user_id", id)
	}
}
