package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Once runs fn a single time after delay. Stop cancels a pending start and
// the context of a run in progress. A Once cannot be restarted.
type Once struct {
	name  string
	delay time.Duration
	fn    func(context.Context)

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	fired   chan struct{}
}

func NewOnce(delay time.Duration, fn func(context.Context)) (*Once, error) {
	if delay < 0 {
		return nil, errors.New("delay must be >= 0")
	}
	if fn == nil {
		return nil, errors.New("fn must not be nil")
	}
	return &Once{
		name:  "once",
		delay: delay,
		fn:    fn,
		done:  make(chan struct{}),
		fired: make(chan struct{}),
	}, nil
}

func (o *Once) Named(name string) *Once {
	o.name = name
	return o
}

func (o *Once) Start() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return false
	}
	o.started = true

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	go func() {
		defer close(o.done)

		timer := time.NewTimer(o.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			slog.Info("delayed run cancelled before start", "name", o.name)
			return
		case <-timer.C:
		}

		close(o.fired)
		o.safeRun(ctx)
	}()

	return true
}

// Stop cancels the run and waits for it to return. It reports false when
// the Once was never started.
func (o *Once) Stop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return false
	}
	o.cancel()
	<-o.done
	return true
}

// Done is closed once the run has finished or was cancelled.
func (o *Once) Done() <-chan struct{} {
	return o.done
}

// Fired reports whether the delay elapsed and fn was invoked.
func (o *Once) Fired() bool {
	select {
	case <-o.fired:
		return true
	default:
		return false
	}
}

func (o *Once) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("delayed run panic recovered", "name", o.name, "panic", r)
		}
	}()

	start := time.Now()
	o.fn(ctx)
	slog.Debug("delayed run completed", "name", o.name, "duration_ms", time.Since(start).Milliseconds())
}
