package cron

import (
	"testing"

	"github.com/heraldlabs/herald/internal/types"
)

func TestFireSubmitsOneRunPerSession(t *testing.T) {
	var runs []*types.FollowupRun
	s := NewScheduler(HeartbeatConfig{
		Enabled:     true,
		SessionKeys: []string{"telegram:1", "whatsapp:abc@s.whatsapp.net"},
		Verbose:     true,
	}, func(run *types.FollowupRun) {
		runs = append(runs, run)
	})

	s.fire()

	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].SessionKey != "telegram:1" || runs[1].SessionKey != "whatsapp:abc@s.whatsapp.net" {
		t.Errorf("session keys: %s, %s", runs[0].SessionKey, runs[1].SessionKey)
	}
	for _, run := range runs {
		if run.Prompt != DefaultHeartbeatPrompt {
			t.Errorf("prompt = %q, want default", run.Prompt)
		}
		if !run.Verbose {
			t.Error("verbose flag must carry through")
		}
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(HeartbeatConfig{
		Enabled:     true,
		Schedule:    "not a schedule",
		SessionKeys: []string{"telegram:1"},
	}, func(*types.FollowupRun) {})
	if err := s.Start(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	s := NewScheduler(HeartbeatConfig{}, func(*types.FollowupRun) {
		t.Fatal("disabled scheduler must not submit")
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
}
