package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/heraldlabs/herald/internal/agent"
	"github.com/heraldlabs/herald/internal/channels"
	"github.com/heraldlabs/herald/internal/config"
	"github.com/heraldlabs/herald/internal/dispatch"
	"github.com/heraldlabs/herald/internal/followup"
	"github.com/heraldlabs/herald/internal/llm"
	"github.com/heraldlabs/herald/internal/session"
	"github.com/heraldlabs/herald/internal/types"
	"github.com/heraldlabs/herald/internal/typing"

	. "github.com/heraldlabs/herald/internal/logging"
)

// queueDepth bounds the per-conversation backlog. Turns past the limit
// are dropped with a warning rather than piling up behind a stuck agent.
const queueDepth = 16

// hub routes runs to per-conversation workers. Each conversation owns its
// dispatcher, typing controller and runner, and processes turns one at a
// time, which keeps the single-writer-per-session-key discipline.
type hub struct {
	ctx       context.Context
	cfg       *config.Config
	sessions  *session.Manager
	executor  *agent.Executor
	chain     []llm.Candidate
	providers map[string]llm.Provider
	adapters  map[string]channels.Adapter

	mu    sync.Mutex
	convs map[string]*conversation
	wg    sync.WaitGroup
}

type conversation struct {
	queue      chan *types.FollowupRun
	dispatcher *dispatch.Dispatcher
	typing     *typing.Controller
	runner     *followup.Runner
}

func newHub(ctx context.Context, cfg *config.Config, sessions *session.Manager, executor *agent.Executor, chain []llm.Candidate, providers map[string]llm.Provider) *hub {
	return &hub{
		ctx:       ctx,
		cfg:       cfg,
		sessions:  sessions,
		executor:  executor,
		chain:     chain,
		providers: providers,
		adapters:  make(map[string]channels.Adapter),
		convs:     make(map[string]*conversation),
	}
}

// addAdapter registers a surface for delivery and typing signals.
func (h *hub) addAdapter(a channels.Adapter) {
	h.adapters[a.Name()] = a
}

// Submit queues one run for its conversation, creating the worker on
// first use. The caller's run is never mutated.
func (h *hub) Submit(run *types.FollowupRun) {
	run = withDefaultTimeout(run, h.cfg.Agent.TimeoutSeconds)

	c := h.conversationFor(run.SessionKey)
	select {
	case c.queue <- run:
	default:
		L_warn("hub: conversation backlog full, dropping turn", "session", run.SessionKey)
	}
}

// withDefaultTimeout returns run unchanged when it carries a timeout,
// otherwise a copy with the default applied.
func withDefaultTimeout(run *types.FollowupRun, seconds int) *types.FollowupRun {
	if run.TimeoutSeconds != 0 {
		return run
	}
	r := *run
	r.TimeoutSeconds = seconds
	return &r
}

func (h *hub) conversationFor(sessionKey string) *conversation {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.convs[sessionKey]; ok {
		return c
	}

	surface := sessionKey
	if i := strings.IndexByte(sessionKey, ':'); i >= 0 {
		surface = sessionKey[:i]
	}
	adapter := h.adapters[surface]
	conversationID := channels.ConversationID(sessionKey)

	deliver := func(ctx context.Context, payload *types.ReplyPayload, meta types.Delivery) error {
		if adapter == nil {
			// Headless sessions (e.g. a heartbeat with no surface) log
			// instead of delivering.
			L_info("hub: reply for headless session", "session", sessionKey, "text", payload.Text)
			return nil
		}
		return adapter.Deliver(ctx, conversationID, payload, meta)
	}

	var signal typing.SignalFunc
	if adapter != nil {
		signal = func(ctx context.Context) error {
			return adapter.SendTyping(ctx, conversationID)
		}
	}

	tc := typing.NewController(typing.Options{
		Interval: time.Duration(h.cfg.Typing.IntervalSeconds) * time.Second,
		TTL:      time.Duration(h.cfg.Typing.TTLSeconds) * time.Second,
	}, signal)

	d := dispatch.NewDispatcher(h.ctx, dispatch.Options{
		ResponsePrefix: h.cfg.Dispatch.ResponsePrefix,
		SilentToken:    h.cfg.Dispatch.SilentToken,
	}, deliver)
	d.SetIdleObserver(tc.MarkDispatchIdle)

	c := &conversation{
		queue:      make(chan *types.FollowupRun, queueDepth),
		dispatcher: d,
		typing:     tc,
		runner: &followup.Runner{
			Agent:      h.executor,
			Sessions:   h.sessions,
			Dispatcher: d,
			Typing:     tc,
			Chain:      h.chain,
			Providers:  h.providers,
		},
	}
	h.convs[sessionKey] = c

	h.wg.Add(1)
	go h.serve(sessionKey, c)
	return c
}

// serve processes one conversation's turns strictly in order.
func (h *hub) serve(sessionKey string, c *conversation) {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			c.typing.Cleanup()
			c.dispatcher.Close()
			return
		case run := <-c.queue:
			if err := c.runner.Run(h.ctx, run); err != nil {
				L_error("hub: turn failed", "session", sessionKey, "error", err)
			}
		}
	}
}

// Wait blocks until every conversation worker has exited.
func (h *hub) Wait() {
	h.wg.Wait()
}
