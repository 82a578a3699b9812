// Package cron runs the periodic heartbeat: scheduled agent turns that
// let the assistant surface anything needing attention without a user
// message. A quiet heartbeat answers with the heartbeat token, which the
// dispatch sanitization path suppresses.
package cron

import (
	"fmt"

	cronlib "github.com/robfig/cron/v3"

	"github.com/heraldlabs/herald/internal/types"

	. "github.com/heraldlabs/herald/internal/logging"
)

// DefaultHeartbeatPrompt is the prompt sent to the agent on each beat.
const DefaultHeartbeatPrompt = `Review pending tasks and reminders for this conversation. ` +
	`Do not infer or repeat old tasks from prior chats. If nothing needs attention, reply HEARTBEAT_OK.`

// DefaultSchedule beats every 30 minutes.
const DefaultSchedule = "*/30 * * * *"

// HeartbeatConfig configures the heartbeat system.
type HeartbeatConfig struct {
	Enabled     bool     `json:"enabled"`
	Schedule    string   `json:"schedule"`    // 5-field cron expression
	Prompt      string   `json:"prompt"`      // custom prompt (optional)
	SessionKeys []string `json:"sessionKeys"` // conversations to beat
	Verbose     bool     `json:"verbose"`
}

// SubmitFunc hands a heartbeat run to the per-conversation runner queue.
type SubmitFunc func(run *types.FollowupRun)

// Scheduler owns the cron runner for heartbeats.
type Scheduler struct {
	cfg    HeartbeatConfig
	submit SubmitFunc
	runner *cronlib.Cron
}

// NewScheduler creates a heartbeat scheduler. Defaults are applied here so
// a zero-value schedule/prompt in config still beats.
func NewScheduler(cfg HeartbeatConfig, submit SubmitFunc) *Scheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultHeartbeatPrompt
	}
	return &Scheduler{cfg: cfg, submit: submit}
}

// Start parses the schedule and begins beating. No-op when disabled or no
// sessions are configured.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled || len(s.cfg.SessionKeys) == 0 {
		L_debug("heartbeat: disabled")
		return nil
	}

	runner := cronlib.New(cronlib.WithParser(
		cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow),
	))
	if _, err := runner.AddFunc(s.cfg.Schedule, s.fire); err != nil {
		return fmt.Errorf("heartbeat: invalid schedule %q: %w", s.cfg.Schedule, err)
	}
	runner.Start()
	s.runner = runner

	L_info("heartbeat: started", "schedule", s.cfg.Schedule, "sessions", len(s.cfg.SessionKeys))
	return nil
}

// Stop halts the cron runner; in-flight beats finish.
func (s *Scheduler) Stop() {
	if s.runner != nil {
		ctx := s.runner.Stop()
		<-ctx.Done()
		s.runner = nil
		L_info("heartbeat: stopped")
	}
}

// fire submits one heartbeat run per configured session.
func (s *Scheduler) fire() {
	for _, key := range s.cfg.SessionKeys {
		L_debug("heartbeat: beat", "session", key)
		s.submit(&types.FollowupRun{
			SessionKey: key,
			Prompt:     s.cfg.Prompt,
			AgentID:    "main",
			Verbose:    s.cfg.Verbose,
		})
	}
}
