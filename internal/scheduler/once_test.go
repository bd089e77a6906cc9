package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewOnce_InvalidArgs(t *testing.T) {
	t.Parallel()

	if o, err := NewOnce(-time.Second, func(context.Context) {}); err == nil || o != nil {
		t.Fatalf("expected error for negative delay, got once=%v err=%v", o, err)
	}
	if o, err := NewOnce(time.Second, nil); err == nil || o != nil {
		t.Fatalf("expected error for nil fn, got once=%v err=%v", o, err)
	}
}

func TestOnce_RunsOnceAfterDelay(t *testing.T) {
	var calls atomic.Int64

	o, err := NewOnce(20*time.Millisecond, func(context.Context) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("NewOnce returned error: %v", err)
	}

	start := time.Now()
	if ok := o.Start(); !ok {
		t.Fatalf("expected Start() true on first call")
	}
	if ok := o.Start(); ok {
		t.Fatalf("expected Start() false on second call")
	}

	select {
	case <-o.Done():
	case <-time.After(time.Second):
		t.Fatalf("run did not finish in time")
	}

	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("run happened before the delay: %v", elapsed)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one call, got %d", calls.Load())
	}
	if !o.Fired() {
		t.Fatalf("expected Fired() true after run")
	}
}

func TestOnce_StopBeforeDelayCancelsRun(t *testing.T) {
	var calls atomic.Int64

	o, err := NewOnce(time.Hour, func(context.Context) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("NewOnce returned error: %v", err)
	}

	if ok := o.Stop(); ok {
		t.Fatalf("expected Stop() false before Start()")
	}

	o.Start()
	if ok := o.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}

	if calls.Load() != 0 {
		t.Fatalf("expected no call, got %d", calls.Load())
	}
	if o.Fired() {
		t.Fatalf("expected Fired() false after cancellation")
	}
	if ok := o.Start(); ok {
		t.Fatalf("expected a stopped Once not to restart")
	}
}

func TestOnce_StopCancelsRunningContext(t *testing.T) {
	entered := make(chan struct{})
	var sawCancel atomic.Bool

	o, err := NewOnce(0, func(ctx context.Context) {
		close(entered)
		<-ctx.Done()
		sawCancel.Store(true)
	})
	if err != nil {
		t.Fatalf("NewOnce returned error: %v", err)
	}

	o.Start()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatalf("run did not start")
	}

	o.Stop()

	if !sawCancel.Load() {
		t.Fatalf("expected run context to be cancelled by Stop()")
	}
}

func TestOnce_PanicIsRecovered(t *testing.T) {
	o, err := NewOnce(0, func(context.Context) {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("NewOnce returned error: %v", err)
	}

	o.Start()

	select {
	case <-o.Done():
	case <-time.After(time.Second):
		t.Fatalf("run did not finish after panic")
	}
}
