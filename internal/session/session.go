// Package session provides conversation session state and storage.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/heraldlabs/herald/internal/types"
)

// Session is the persistent state of one conversation, keyed by
// "<surface>:<conversation-id>" (e.g. "telegram:12345").
type Session struct {
	Key       string    `json:"key"`
	ID        string    `json:"id"` // UUID
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Last-seen execution metadata
	Model         string `json:"model"`
	Provider      string `json:"provider"`
	ContextTokens int    `json:"context_tokens"`

	// Lifetime counters
	CompactionCount  int `json:"compaction_count"`
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewSession creates a fresh session for key.
func NewSession(key string) *Session {
	now := time.Now()
	return &Session{
		Key:       key,
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApplyResult folds one turn's execution metadata into the session. Usage
// counters are overwritten with the latest run's numbers (the session
// tracks current context weight, not lifetime totals); model, provider and
// context window track the last run. Returns true when anything changed
// (the caller persists on change).
func (s *Session) ApplyResult(model, provider string, contextTokens int, usage types.TokenUsage) bool {
	changed := false

	if model != "" && model != s.Model {
		s.Model = model
		changed = true
	}
	if provider != "" && provider != s.Provider {
		s.Provider = provider
		changed = true
	}
	if contextTokens > 0 && contextTokens != s.ContextTokens {
		s.ContextTokens = contextTokens
		changed = true
	}

	if prompt := usage.PromptTokens(); prompt > 0 || usage.Output > 0 {
		s.InputTokens = prompt
		s.OutputTokens = usage.Output
		s.CacheReadTokens = usage.CacheRead
		s.CacheWriteTokens = usage.CacheWrite
		s.TotalTokens = prompt + usage.Output
		changed = true
	}

	if changed {
		s.UpdatedAt = time.Now()
	}
	return changed
}

// IncrementCompactions bumps the lifetime compaction counter.
func (s *Session) IncrementCompactions() {
	s.CompactionCount++
	s.UpdatedAt = time.Now()
}
