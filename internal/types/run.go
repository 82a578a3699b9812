package types

// TokenUsage carries the token accounting reported by a provider for a
// single agent run.
type TokenUsage struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	CacheRead  int `json:"cacheRead"`
	CacheWrite int `json:"cacheWrite"`
	Total      int `json:"total"`
}

// PromptTokens returns the effective prompt-side token count:
// input + cache reads + cache writes, falling back to the provider-reported
// total when that sum is zero.
func (u TokenUsage) PromptTokens() int {
	sum := u.Input + u.CacheRead + u.CacheWrite
	if sum == 0 {
		return u.Total
	}
	return sum
}

// FollowupRun is the work item submitted to the followup runner: one queued
// agent turn. Created by the caller, consumed once, never mutated after
// creation.
type FollowupRun struct {
	SessionKey string // Session key: "main", "telegram:12345", "heartbeat", ...
	Prompt     string // The user (or heartbeat) message to run
	AgentID    string // "main" (default)

	// Provider/model selection. Empty means the configured default chain.
	Provider string
	Model    string

	// Run-scoped policy flags
	TimeoutSeconds  int  // 0 = no per-run timeout
	ElevatedTools   bool // allow elevated-permission tools for this run
	EnforceFinalTag bool // require the agent to tag its final reply
	Verbose         bool // surface compaction notices to the user
}
