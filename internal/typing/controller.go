// Package typing implements the typing-indicator state machine for one
// conversation turn. The controller is a leaf: it knows nothing about what
// produces or consumes text, only whether an indicator should be showing.
//
// A cycle starts on the first outgoing text and stops when BOTH the agent
// run and the reply dispatch queue have quiesced, or when the TTL elapses
// without a refresh - whichever comes first. The TTL guarantees a stalled
// surface never shows "typing" forever.
package typing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/heraldlabs/herald/internal/tokens"

	. "github.com/heraldlabs/herald/internal/logging"
)

const (
	// DefaultInterval is how often the periodic typing signal is re-emitted.
	DefaultInterval = 6 * time.Second

	// DefaultTTL force-stops an indicator that was never refreshed.
	DefaultTTL = 120 * time.Second
)

// SignalFunc emits one typing signal to the surface.
type SignalFunc func(ctx context.Context) error

// Options holds controller timing configuration. Non-positive values
// disable the corresponding timer.
type Options struct {
	Interval time.Duration
	TTL      time.Duration
}

// DefaultOptions returns the standard timing configuration.
func DefaultOptions() Options {
	return Options{Interval: DefaultInterval, TTL: DefaultTTL}
}

// StopSatisfied is the pure stop-join transition: the indicator stops
// exactly when both completion signals have been observed.
func StopSatisfied(runComplete, dispatchIdle bool) bool {
	return runComplete && dispatchIdle
}

// Controller tracks whether a typing indicator should be active for a
// conversation turn.
type Controller struct {
	cfg    Options
	signal SignalFunc

	mu           sync.Mutex
	started      bool // signal emitted at least once this cycle
	active       bool
	runComplete  bool
	dispatchIdle bool

	loopStop chan struct{} // non-nil while the periodic loop runs
	ttlTimer *time.Timer
}

// NewController creates a controller that emits typing signals through
// signal. A nil signal is treated as a no-op emitter.
func NewController(cfg Options, signal SignalFunc) *Controller {
	if signal == nil {
		signal = func(context.Context) error { return nil }
	}
	return &Controller{cfg: cfg, signal: signal}
}

// OnReplyStart ensures the indicator is active for the current cycle and
// emits one immediate typing signal on first entry. Idempotent within a
// cycle.
func (c *Controller) OnReplyStart(ctx context.Context) {
	c.mu.Lock()
	first := c.begin()
	c.mu.Unlock()

	if first {
		if err := c.signal(ctx); err != nil {
			L_debug("typing: signal failed", "error", err)
		}
	}
}

// begin marks the cycle active and returns true on the first entry.
// Caller holds c.mu.
func (c *Controller) begin() bool {
	c.active = true
	c.runComplete = false
	c.dispatchIdle = false
	if c.started {
		return false
	}
	c.started = true
	return true
}

// StartTypingLoop begins periodic signal emission after ensuring the cycle
// is started. No-op when the interval is non-positive or a loop is already
// running.
func (c *Controller) StartTypingLoop(ctx context.Context) {
	if c.cfg.Interval <= 0 {
		return
	}

	c.mu.Lock()
	first := c.begin()
	if c.loopStop != nil {
		// A running loop implies the cycle already started.
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.loopStop = stop
	c.mu.Unlock()

	if first {
		if err := c.signal(ctx); err != nil {
			L_debug("typing: signal failed", "error", err)
		}
	}

	go c.runLoop(ctx, stop)
}

// runLoop re-emits the typing signal every interval until stopped.
func (c *Controller) runLoop(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.signal(ctx); err != nil {
				L_debug("typing: signal failed", "error", err)
			}
		}
	}
}

// StartTypingOnText starts the loop for actual outgoing text, ignoring
// blank text and the silent-reply sentinel. The TTL is refreshed so the
// indicator tracks the latest text activity.
func (c *Controller) StartTypingOnText(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" || tokens.IsSilentReply(text) {
		return
	}
	c.RefreshTypingTTL()
	c.StartTypingLoop(ctx)
}

// RefreshTypingTTL (re)arms the force-stop timeout. Disabled when either
// the interval or the TTL is non-positive.
func (c *Controller) RefreshTypingTTL() {
	if c.cfg.Interval <= 0 || c.cfg.TTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttlTimer != nil {
		c.ttlTimer.Stop()
	}
	c.ttlTimer = time.AfterFunc(c.cfg.TTL, c.forceStop)
}

// forceStop is the TTL expiry path: reset the indicator regardless of the
// completion flags. The agent run and dispatch queue are unaffected.
func (c *Controller) forceStop() {
	c.mu.Lock()
	wasActive := c.active
	c.reset()
	c.mu.Unlock()
	if wasActive {
		L_warn("typing: ttl expired, indicator force-stopped")
	}
}

// MarkRunComplete records that the agent run has finished and stops the
// indicator if the dispatch queue is also idle.
func (c *Controller) MarkRunComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runComplete = true
	if StopSatisfied(c.runComplete, c.dispatchIdle) {
		c.reset()
	}
}

// MarkDispatchIdle records that the reply queue has drained and stops the
// indicator if the agent run is also complete.
func (c *Controller) MarkDispatchIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatchIdle = true
	if StopSatisfied(c.runComplete, c.dispatchIdle) {
		c.reset()
	}
}

// Cleanup cancels all timers and resets state. Safe to call multiple times.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// reset returns the controller to its initial all-false state, ready for a
// new cycle. Caller holds c.mu.
func (c *Controller) reset() {
	if c.loopStop != nil {
		close(c.loopStop)
		c.loopStop = nil
	}
	if c.ttlTimer != nil {
		c.ttlTimer.Stop()
		c.ttlTimer = nil
	}
	c.started = false
	c.active = false
	c.runComplete = false
	c.dispatchIdle = false
}

// Active reports whether an indicator cycle is currently running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
