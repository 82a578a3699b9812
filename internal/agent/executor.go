// Package agent executes one assistant turn over an LLM provider and
// reports progress as a stream of events.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/heraldlabs/herald/internal/llm"
	"github.com/heraldlabs/herald/internal/session"
	"github.com/heraldlabs/herald/internal/types"

	. "github.com/heraldlabs/herald/internal/logging"
)

// Observer receives run events as they happen. A nil observer is allowed.
type Observer func(types.AgentEvent)

// Result is the outcome of one successful turn.
type Result struct {
	Payloads      []*types.ReplyPayload
	Model         string
	Provider      string
	Usage         types.TokenUsage
	ContextTokens int
}

// Options tunes the executor.
type Options struct {
	// SystemPrompt is the base system prompt for every turn.
	SystemPrompt string

	// CompactPercent is the share of the context window (0-100) the
	// session may weigh before a compaction pass runs ahead of the turn.
	// 0 uses the default of 80.
	CompactPercent int
}

const defaultCompactPercent = 80

// compactionPrompt asks the model to summarize its own running context.
// Without per-message persistence the summary lives inside the provider
// conversation, so one summarization turn is the whole pass.
const compactionPrompt = "Summarize the conversation so far into a compact brief that preserves " +
	"open tasks, decisions and user preferences. Reply with only the summary."

// Executor runs turns. Safe for concurrent use across sessions; turns for
// one session key must be serialized by the caller.
type Executor struct {
	cfg Options
}

// NewExecutor creates an executor.
func NewExecutor(cfg Options) *Executor {
	if cfg.CompactPercent <= 0 {
		cfg.CompactPercent = defaultCompactPercent
	}
	return &Executor{cfg: cfg}
}

// Execute runs one turn for run over provider p, correlated by runID.
// Events are delivered to observe synchronously, in order, before Execute
// returns. sess supplies the context-weight reading for the compaction
// decision and is not mutated here.
func (e *Executor) Execute(ctx context.Context, runID string, run *types.FollowupRun, sess *session.Session, p llm.Provider, observe Observer) (*Result, error) {
	if observe == nil {
		observe = func(types.AgentEvent) {}
	}

	if run.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(run.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	observe(types.EventAgentStart{RunID: runID, SessionKey: run.SessionKey})

	usage := types.TokenUsage{}
	if e.shouldCompact(sess, p) {
		compactUsage, err := e.compact(ctx, runID, run, p, observe)
		if err != nil {
			// A failed compaction pass is not fatal for the turn.
			L_warn("agent: compaction pass failed", "session", run.SessionKey, "error", err)
		} else {
			usage.Output += compactUsage.Output
		}
	}

	resp, err := p.Complete(ctx, llm.Request{
		System: e.systemPrompt(run),
		Prompt: run.Prompt,
	})
	if err != nil {
		observe(types.EventAgentError{RunID: runID, Error: err.Error()})
		return nil, fmt.Errorf("agent turn failed: %w", err)
	}

	if resp.Text != "" {
		observe(types.EventTextDelta{RunID: runID, Delta: resp.Text})
	}

	usage.Input = resp.Usage.Input
	usage.Output += resp.Usage.Output
	usage.CacheRead = resp.Usage.CacheRead
	usage.CacheWrite = resp.Usage.CacheWrite
	usage.Total = resp.Usage.Total

	result := &Result{
		Payloads:      ParsePayloads(resp.Text),
		Model:         p.Model(),
		Provider:      p.Name(),
		Usage:         usage,
		ContextTokens: p.ContextTokens(),
	}
	observe(types.EventAgentEnd{RunID: runID, FinalText: resp.Text})
	return result, nil
}

// shouldCompact reports whether the session's last-known context weight
// crosses the compaction threshold for p's window.
func (e *Executor) shouldCompact(sess *session.Session, p llm.Provider) bool {
	if sess == nil {
		return false
	}
	window := p.ContextTokens()
	if window <= 0 {
		return false
	}
	return sess.TotalTokens*100 >= window*e.cfg.CompactPercent
}

// compact runs the summarization pass and emits its phase events. The
// end event always reports WillRetry=false: the turn proceeds on the
// compacted context, it is never re-attempted.
func (e *Executor) compact(ctx context.Context, runID string, run *types.FollowupRun, p llm.Provider, observe Observer) (types.TokenUsage, error) {
	observe(types.EventCompaction{
		RunID:  runID,
		Stream: "agent",
		Phase:  types.CompactionPhaseStart,
	})

	resp, err := p.Complete(ctx, llm.Request{Prompt: compactionPrompt})
	if err != nil {
		return types.TokenUsage{}, err
	}

	L_info("agent: context compacted", "session", run.SessionKey, "model", p.Model(), "summaryTokens", resp.Usage.Output)
	observe(types.EventCompaction{
		RunID:     runID,
		Stream:    "agent",
		Phase:     types.CompactionPhaseEnd,
		WillRetry: false,
	})
	return resp.Usage, nil
}

// systemPrompt assembles the per-run system prompt from the base prompt
// and the run's policy flags.
func (e *Executor) systemPrompt(run *types.FollowupRun) string {
	var b strings.Builder
	b.WriteString(e.cfg.SystemPrompt)
	if run.ElevatedTools {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Elevated tool access is granted for this turn.")
	}
	if run.EnforceFinalTag {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("When replying to a specific earlier message, tag it as [reply_to:<message-id>].")
	}
	return b.String()
}

// ParsePayloads splits raw agent text into reply payloads. Lines of the
// form "MEDIA:<url-or-path>" attach media to the payload; everything else
// is reply text. The result is a single payload (the runner handles
// notice payloads and sanitization).
func ParsePayloads(text string) []*types.ReplyPayload {
	var media []string
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if ref, ok := strings.CutPrefix(strings.TrimSpace(line), "MEDIA:"); ok {
			if ref = strings.TrimSpace(ref); ref != "" {
				media = append(media, ref)
				continue
			}
		}
		lines = append(lines, line)
	}

	payload := &types.ReplyPayload{Text: strings.TrimSpace(strings.Join(lines, "\n"))}
	if len(media) > 0 {
		payload.MediaURL = media[0]
		payload.MediaURLs = media[1:]
	}
	if payload.IsEmpty() {
		return nil
	}
	return []*types.ReplyPayload{payload}
}
