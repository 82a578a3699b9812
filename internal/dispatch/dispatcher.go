// Package dispatch serializes reply delivery for one conversation.
//
// A single worker drains a FIFO queue of sanitized payloads: no two
// deliveries run concurrently and entry n+1 never starts before entry n's
// delivery callback has settled, so tool, block and final replies reach the
// surface exactly in enqueue order regardless of per-entry latency.
package dispatch

import (
	"context"
	"strings"
	"sync"

	"github.com/heraldlabs/herald/internal/tokens"
	"github.com/heraldlabs/herald/internal/types"

	. "github.com/heraldlabs/herald/internal/logging"
)

// DeliverFunc is the surface adapter callback: deliver one payload with its
// classification metadata. Failures propagate as delivery errors; the
// dispatcher never retries.
type DeliverFunc func(ctx context.Context, payload *types.ReplyPayload, meta types.Delivery) error

// Options holds sanitization settings.
type Options struct {
	// ResponsePrefix, when set, is prepended ("<prefix> ") to any delivered
	// text that does not already start with it.
	ResponsePrefix string

	// SilentToken suppresses a medialess payload whose trimmed text matches
	// it exactly. Defaults to tokens.SilentReplyToken.
	SilentToken string
}

type queueEntry struct {
	payload *types.ReplyPayload
	kind    types.ReplyKind
	seq     uint64
}

// Dispatcher owns the delivery queue for one conversation.
type Dispatcher struct {
	cfg     Options
	deliver DeliverFunc
	ctx     context.Context

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []queueEntry
	seq    uint64
	busy   bool
	closed bool
	err    error // first delivery error since the last WaitForIdle

	idleObserver func() // completion signal, typically typing.MarkDispatchIdle
	onIdle       func() // optional hook, once per drain-to-empty transition
}

// NewDispatcher creates a dispatcher and starts its worker. ctx bounds all
// delivery callbacks.
func NewDispatcher(ctx context.Context, cfg Options, deliver DeliverFunc) *Dispatcher {
	if cfg.SilentToken == "" {
		cfg.SilentToken = tokens.SilentReplyToken
	}
	d := &Dispatcher{cfg: cfg, deliver: deliver, ctx: ctx}
	d.cond = sync.NewCond(&d.mu)
	go d.worker()
	return d
}

// SetIdleObserver registers the queue-idle completion signal.
func (d *Dispatcher) SetIdleObserver(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idleObserver = fn
}

// SetOnIdle registers a hook fired exactly once per drain-to-empty
// transition.
func (d *Dispatcher) SetOnIdle(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onIdle = fn
}

// SendToolResult enqueues a tool-result payload. Returns whether it was
// accepted.
func (d *Dispatcher) SendToolResult(p *types.ReplyPayload) bool {
	return d.enqueue(p, types.ReplyKindTool)
}

// SendBlockReply enqueues a mid-run block payload. Returns whether it was
// accepted.
func (d *Dispatcher) SendBlockReply(p *types.ReplyPayload) bool {
	return d.enqueue(p, types.ReplyKindBlock)
}

// SendFinalReply enqueues the turn's final payload. Returns whether it was
// accepted.
func (d *Dispatcher) SendFinalReply(p *types.ReplyPayload) bool {
	return d.enqueue(p, types.ReplyKindFinal)
}

// enqueue sanitizes and appends a payload. Enqueue order defines delivery
// order across all kinds.
func (d *Dispatcher) enqueue(p *types.ReplyPayload, kind types.ReplyKind) bool {
	if p == nil || !d.sanitize(p) {
		L_debug("dispatch: payload suppressed", "kind", kind)
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.seq++
	d.queue = append(d.queue, queueEntry{payload: p, kind: kind, seq: d.seq})
	d.cond.Broadcast()
	return true
}

// sanitize applies the delivery-side transforms in order: empty
// suppression, silent-token suppression, heartbeat stripping, prefix
// injection. Returns false when the payload must not be delivered.
func (d *Dispatcher) sanitize(p *types.ReplyPayload) bool {
	if p.IsEmpty() {
		return false
	}
	if strings.TrimSpace(p.Text) == d.cfg.SilentToken && !p.HasMedia() {
		return false
	}
	if strings.Contains(p.Text, tokens.HeartbeatToken) {
		clean, skip := tokens.StripHeartbeat(p.Text)
		p.Text = clean
		if skip && !p.HasMedia() {
			return false
		}
		// Heartbeat-only text with media becomes an empty-text payload,
		// not a suppression.
	}
	if d.cfg.ResponsePrefix != "" && p.Text != "" && !strings.HasPrefix(p.Text, d.cfg.ResponsePrefix) {
		p.Text = d.cfg.ResponsePrefix + " " + p.Text
	}
	return true
}

// worker is the single delivery loop.
func (d *Dispatcher) worker() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed && len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		e := d.queue[0]
		d.queue = d.queue[1:]
		d.busy = true
		d.mu.Unlock()

		err := d.deliver(d.ctx, e.payload, types.Delivery{Kind: e.kind})

		d.mu.Lock()
		d.busy = false
		if err != nil {
			L_error("dispatch: delivery failed", "kind", e.kind, "seq", e.seq, "error", err)
			if d.err == nil {
				d.err = err
			}
			// Abandon the rest of the turn; the caller decides whether to
			// retry the whole turn.
			d.queue = nil
		}
		drained := len(d.queue) == 0
		observer := d.idleObserver
		hook := d.onIdle
		d.mu.Unlock()

		// Observers run before waiters wake so WaitForIdle callers see the
		// idle signal already delivered.
		if drained {
			if observer != nil {
				observer()
			}
			if hook != nil {
				hook()
			}
		}
		d.cond.Broadcast()
	}
}

// WaitForIdle blocks until the queue has fully drained and no delivery is
// in flight. It returns the first delivery error since the last wait and
// clears it, so each turn's WaitForIdle observes its own failure; the error
// is never reset on enqueue, a settled failure survives until read.
func (d *Dispatcher) WaitForIdle(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		d.mu.Lock()
		for len(d.queue) > 0 || d.busy {
			d.cond.Wait()
		}
		err := d.err
		d.err = nil
		d.mu.Unlock()
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker once the queue drains. Enqueues after Close are
// rejected.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cond.Broadcast()
}
