// Package followup orchestrates one queued agent turn: agent execution
// with model fallback, payload sanitization, session accounting, and
// serialized reply delivery with typing coordination.
package followup

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/heraldlabs/herald/internal/agent"
	"github.com/heraldlabs/herald/internal/dispatch"
	"github.com/heraldlabs/herald/internal/llm"
	"github.com/heraldlabs/herald/internal/session"
	"github.com/heraldlabs/herald/internal/tokens"
	"github.com/heraldlabs/herald/internal/types"
	"github.com/heraldlabs/herald/internal/typing"

	. "github.com/heraldlabs/herald/internal/logging"
)

// AgentRunner is the agent-execution collaborator. *agent.Executor is the
// production implementation.
type AgentRunner interface {
	Execute(ctx context.Context, runID string, run *types.FollowupRun, sess *session.Session, p llm.Provider, observe agent.Observer) (*agent.Result, error)
}

// Runner executes FollowupRuns for one conversation. At most one Run per
// session key may be in flight at a time; the inbound layer serializes
// turns upstream.
type Runner struct {
	Agent      AgentRunner
	Sessions   *session.Manager
	Dispatcher *dispatch.Dispatcher
	Typing     *typing.Controller

	// Chain is the default provider/model fallback order. Providers maps
	// config names to instances for per-run overrides.
	Chain     []llm.Candidate
	Providers map[string]llm.Provider

	// Register correlates a fresh run ID with its session key for
	// downstream event consumers. Optional.
	Register func(runID, sessionKey string)
}

// Run executes one full turn and returns after replies are dispatched or
// the turn is abandoned. The typing controller always receives its
// run-complete signal, whatever path the turn takes.
func (r *Runner) Run(ctx context.Context, run *types.FollowupRun) error {
	defer r.Typing.MarkRunComplete()

	runID := uuid.New().String()
	if r.Register != nil {
		r.Register(runID, run.SessionKey)
	}
	L_debug("followup: run started", "runId", runID, "session", run.SessionKey)

	sess, err := r.Sessions.GetOrCreate(ctx, run.SessionKey)
	if err != nil {
		return fmt.Errorf("followup: session unavailable: %w", err)
	}

	// Compaction completion is observed as a streamed event, folded into a
	// flag for the result-handling steps below.
	compacted := false
	observe := func(ev types.AgentEvent) {
		if c, ok := ev.(types.EventCompaction); ok && c.Phase == types.CompactionPhaseEnd && !c.WillRetry {
			compacted = true
		}
	}

	var result *agent.Result
	_, err = llm.RunFallback(ctx, r.candidatesFor(run), func(ctx context.Context, p llm.Provider) error {
		res, execErr := r.Agent.Execute(ctx, runID, run, sess, p, observe)
		if execErr != nil {
			return execErr
		}
		result = res
		return nil
	})
	if err != nil {
		// Terminal for the turn: the user gets silence, never partial
		// agent output.
		L_error("followup: agent run failed", "runId", runID, "session", run.SessionKey, "error", err)
		return err
	}

	payloads := sanitizePayloads(result.Payloads)

	if compacted {
		sess.IncrementCompactions()
	}
	changed := sess.ApplyResult(result.Model, result.Provider, result.ContextTokens, result.Usage)
	if changed || compacted {
		if err := r.Sessions.Save(ctx, sess); err != nil {
			L_warn("followup: session save failed", "session", run.SessionKey, "error", err)
		}
	}

	// A turn with no surviving agent payloads ends silently; the notice
	// never goes out on its own.
	if len(payloads) == 0 {
		L_debug("followup: nothing to deliver", "runId", runID)
		return nil
	}

	if compacted && run.Verbose {
		notice := &types.ReplyPayload{
			Text: fmt.Sprintf("Context compacted (%d compactions this session).", sess.CompactionCount),
		}
		payloads = append([]*types.ReplyPayload{notice}, payloads...)
	}

	for _, p := range payloads {
		r.Typing.StartTypingOnText(ctx, p.Text)
		r.Dispatcher.SendBlockReply(p)
	}

	if err := r.Dispatcher.WaitForIdle(ctx); err != nil {
		return fmt.Errorf("followup: delivery failed: %w", err)
	}
	return nil
}

// candidatesFor builds the fallback chain for a run. A per-run provider
// or model override becomes the sole primary; otherwise the configured
// chain applies.
func (r *Runner) candidatesFor(run *types.FollowupRun) []llm.Candidate {
	if run.Provider != "" {
		if p, ok := r.Providers[run.Provider]; ok {
			return append([]llm.Candidate{{Provider: p, Model: run.Model}}, r.Chain...)
		}
		L_warn("followup: unknown provider override, using default chain", "provider", run.Provider)
	}
	if run.Model != "" && len(r.Chain) > 0 {
		primary := llm.Candidate{Provider: r.Chain[0].Provider, Model: run.Model}
		return append([]llm.Candidate{primary}, r.Chain...)
	}
	return r.Chain
}

// sanitizePayloads applies the result-side transforms: drop empties,
// strip heartbeat markers (message-level), extract reply-to tags, drop
// anything left with no text and no media.
func sanitizePayloads(in []*types.ReplyPayload) []*types.ReplyPayload {
	var out []*types.ReplyPayload
	for _, p := range in {
		if p == nil || p.IsEmpty() {
			continue
		}
		if strings.Contains(p.Text, tokens.HeartbeatToken) {
			clean, skip := tokens.StripHeartbeat(p.Text)
			if skip && !p.HasMedia() {
				continue
			}
			p.Text = clean
		}
		if clean, id, ok := tokens.ExtractReplyTag(p.Text); ok {
			p.Text = clean
			p.ReplyToID = id
		}
		if p.IsEmpty() {
			continue
		}
		out = append(out, p)
	}
	return out
}
