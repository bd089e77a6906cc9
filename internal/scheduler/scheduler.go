package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Stats counts what a Scheduler did with its ticks since it was created.
type Stats struct {
	Runs    uint64
	Skipped uint64
}

// Scheduler calls tickFn on Start and then every interval until Stop.
// A tick that comes due while the previous call is still running is skipped
// and counted: calls never overlap and missed ticks are never queued.
type Scheduler struct {
	name     string
	interval time.Duration
	tickFn   func(context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inFlight atomic.Bool
	runs     atomic.Uint64
	skipped  atomic.Uint64
}

func New(interval time.Duration, tickFn func(context.Context)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Scheduler{name: "scheduler", interval: interval, tickFn: tickFn}, nil
}

// Named sets the name used in log records.
func (s *Scheduler) Named(name string) *Scheduler {
	s.name = name
	return s
}

// Start reports false when the scheduler is already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	slog.Info("scheduler started", "name", s.name, "interval", s.interval.String())
	go s.loop(ctx, s.done)
	return true
}

// Stop cancels the context of a running call and waits for it to return.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return false
	}
	s.cancel()
	<-s.done
	s.cancel = nil

	st := s.Stats()
	slog.Info("scheduler stopped", "name", s.name, "runs", st.Runs, "skipped", st.Skipped)
	return true
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) Stats() Stats {
	return Stats{Runs: s.runs.Load(), Skipped: s.skipped.Load()}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	var calls sync.WaitGroup
	defer func() {
		calls.Wait()
		close(done)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.fire(ctx, &calls)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, &calls)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, calls *sync.WaitGroup) {
	if !s.inFlight.CompareAndSwap(false, true) {
		n := s.skipped.Add(1)
		slog.Debug("tick skipped, previous call still running", "name", s.name, "skipped", n)
		return
	}

	calls.Add(1)
	go func() {
		defer calls.Done()
		defer s.inFlight.Store(false)
		s.call(ctx)
	}()
}

func (s *Scheduler) call(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler tick panic recovered", "name", s.name, "panic", r)
		}
	}()

	s.runs.Add(1)
	start := time.Now()
	s.tickFn(ctx)
	slog.Debug("scheduler tick completed", "name", s.name, "duration_ms", time.Since(start).Milliseconds())
}
