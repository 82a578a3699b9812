package types

// AgentEvent is the interface for all events emitted during an agent run
type AgentEvent interface {
	agentEvent() // marker method
}

// EventAgentStart is emitted when an agent run begins
type EventAgentStart struct {
	RunID      string `json:"runId"`
	SessionKey string `json:"sessionKey"`
}

func (EventAgentStart) agentEvent() {}

// EventTextDelta is emitted for each text chunk from the LLM
type EventTextDelta struct {
	RunID string `json:"runId"`
	Delta string `json:"delta"`
}

func (EventTextDelta) agentEvent() {}

// Compaction lifecycle phases
const (
	CompactionPhaseStart = "start"
	CompactionPhaseEnd   = "end"
)

// EventCompaction is emitted around an auto-compaction pass inside the
// agent run. A phase of CompactionPhaseEnd with WillRetry=false means the
// pass completed and the turn continues on the shortened history.
type EventCompaction struct {
	RunID     string `json:"runId"`
	Stream    string `json:"stream"` // originating stream, e.g. "agent"
	Phase     string `json:"phase"`  // "start" or "end"
	WillRetry bool   `json:"willRetry"`
}

func (EventCompaction) agentEvent() {}

// EventAgentEnd is emitted when an agent run completes successfully
type EventAgentEnd struct {
	RunID     string `json:"runId"`
	FinalText string `json:"finalText"`
}

func (EventAgentEnd) agentEvent() {}

// EventAgentError is emitted when an agent run fails
type EventAgentError struct {
	RunID string `json:"runId"`
	Error string `json:"error"`
}

func (EventAgentError) agentEvent() {}
