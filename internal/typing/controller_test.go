package typing

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestStopSatisfied(t *testing.T) {
	cases := []struct {
		run, idle, want bool
	}{
		{false, false, false},
		{true, false, false},
		{false, true, false},
		{true, true, true},
	}
	for _, c := range cases {
		if got := StopSatisfied(c.run, c.idle); got != c.want {
			t.Errorf("StopSatisfied(%v, %v) = %v, want %v", c.run, c.idle, got, c.want)
		}
	}
}

func TestOnReplyStartEmitsOncePerCycle(t *testing.T) {
	var signals int32
	c := NewController(Options{Interval: time.Hour, TTL: time.Hour}, func(context.Context) error {
		atomic.AddInt32(&signals, 1)
		return nil
	})

	ctx := context.Background()
	c.OnReplyStart(ctx)
	c.OnReplyStart(ctx)
	c.OnReplyStart(ctx)

	if n := atomic.LoadInt32(&signals); n != 1 {
		t.Fatalf("expected 1 immediate signal, got %d", n)
	}
	if !c.Active() {
		t.Fatal("controller should be active")
	}
	c.Cleanup()

	// New cycle emits again
	c.OnReplyStart(ctx)
	if n := atomic.LoadInt32(&signals); n != 2 {
		t.Fatalf("expected a fresh signal after cleanup, got %d", n)
	}
	c.Cleanup()
}

func TestStopRequiresBothSignals(t *testing.T) {
	c := NewController(Options{Interval: time.Hour, TTL: time.Hour}, nil)
	ctx := context.Background()

	c.OnReplyStart(ctx)
	c.MarkRunComplete()
	if !c.Active() {
		t.Fatal("run complete alone must not stop the indicator")
	}

	c.MarkDispatchIdle()
	if c.Active() {
		t.Fatal("both signals must stop the indicator")
	}

	// Inverse order on a new cycle
	c.OnReplyStart(ctx)
	c.MarkDispatchIdle()
	if !c.Active() {
		t.Fatal("dispatch idle alone must not stop the indicator")
	}
	c.MarkRunComplete()
	if c.Active() {
		t.Fatal("both signals must stop the indicator")
	}
}

func TestCompletionFlagsResetOnRestart(t *testing.T) {
	c := NewController(Options{Interval: time.Hour, TTL: time.Hour}, nil)
	ctx := context.Background()

	c.OnReplyStart(ctx)
	c.MarkRunComplete()

	// Starting again must clear the stale runComplete flag.
	c.OnReplyStart(ctx)
	c.MarkDispatchIdle()
	if c.Active() {
		t.Fatal("stale runComplete flag stopped a fresh cycle")
	}
}

func TestTTLForceStops(t *testing.T) {
	c := NewController(Options{Interval: time.Hour, TTL: 20 * time.Millisecond}, nil)
	ctx := context.Background()

	c.StartTypingOnText(ctx, "working on it")
	if !c.Active() {
		t.Fatal("controller should be active")
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Active() {
		if time.Now().After(deadline) {
			t.Fatal("ttl never force-stopped the indicator")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartTypingOnTextIgnoresBlankAndSilent(t *testing.T) {
	c := NewController(Options{Interval: time.Hour, TTL: time.Hour}, nil)
	ctx := context.Background()

	c.StartTypingOnText(ctx, "")
	c.StartTypingOnText(ctx, "   \n")
	c.StartTypingOnText(ctx, "NO_REPLY")
	if c.Active() {
		t.Fatal("blank or silent text must not start the indicator")
	}

	c.StartTypingOnText(ctx, "hello")
	if !c.Active() {
		t.Fatal("real text must start the indicator")
	}
	c.Cleanup()
}

func TestTypingLoopEmitsPeriodically(t *testing.T) {
	var signals int32
	c := NewController(Options{Interval: 10 * time.Millisecond, TTL: time.Hour}, func(context.Context) error {
		atomic.AddInt32(&signals, 1)
		return nil
	})
	ctx := context.Background()

	c.StartTypingLoop(ctx)
	// Second call must not start a second loop.
	c.StartTypingLoop(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&signals) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("loop emitted %d signals, want >= 3", atomic.LoadInt32(&signals))
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.Cleanup()

	// After cleanup the loop must stop emitting.
	n := atomic.LoadInt32(&signals)
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&signals) > n+1 {
		t.Fatal("loop kept emitting after cleanup")
	}
}

func TestStartTypingLoopWhileRunningEmitsNothing(t *testing.T) {
	var signals int32
	c := NewController(Options{Interval: time.Hour, TTL: time.Hour}, func(context.Context) error {
		atomic.AddInt32(&signals, 1)
		return nil
	})
	ctx := context.Background()

	c.StartTypingLoop(ctx)
	if n := atomic.LoadInt32(&signals); n != 1 {
		t.Fatalf("expected 1 immediate signal, got %d", n)
	}

	// Re-entering while the loop runs must not emit another immediate
	// signal, even after the completion flags are re-cleared.
	c.MarkRunComplete()
	c.StartTypingLoop(ctx)
	if n := atomic.LoadInt32(&signals); n != 1 {
		t.Fatalf("expected no extra signal, got %d", n)
	}
	c.Cleanup()
}

func TestLoopDisabledWithNonPositiveInterval(t *testing.T) {
	var signals int32
	c := NewController(Options{Interval: 0, TTL: time.Hour}, func(context.Context) error {
		atomic.AddInt32(&signals, 1)
		return nil
	})
	c.StartTypingLoop(context.Background())
	if c.Active() {
		t.Fatal("loop must be a no-op with a non-positive interval")
	}
	if atomic.LoadInt32(&signals) != 0 {
		t.Fatal("no signal expected")
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	c := NewController(DefaultOptions(), nil)
	c.OnReplyStart(context.Background())
	c.Cleanup()
	c.Cleanup()
	if c.Active() {
		t.Fatal("cleanup must deactivate")
	}
}
