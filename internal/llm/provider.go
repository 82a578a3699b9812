// Package llm provides unified LLM provider interfaces and implementations.
package llm

import (
	"context"
	"strings"

	"github.com/heraldlabs/herald/internal/types"
)

// Provider is the unified interface for all LLM backends.
// Implementations: AnthropicProvider, OpenAIProvider.
type Provider interface {
	// Identity
	Name() string  // Provider instance name from config (e.g., "anthropic", "groq1")
	Type() string  // Provider type ("anthropic", "openai")
	Model() string // Current model name

	// Cloning with overrides
	WithModel(model string) Provider

	ContextTokens() int // Model's context window size

	// Complete runs one request/response turn.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is a single provider turn.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int // 0 = provider default
}

// Response is a completed provider turn.
type Response struct {
	Text       string
	StopReason string
	Usage      types.TokenUsage
}

// ProviderConfig is the configuration for a single provider instance.
type ProviderConfig struct {
	Type           string `json:"type"`           // "anthropic", "openai"
	APIKey         string `json:"apiKey"`         // For cloud providers
	BaseURL        string `json:"baseURL"`        // For OpenAI-compatible endpoints
	MaxTokens      int    `json:"maxTokens"`      // Output limit override
	ContextTokens  int    `json:"contextTokens"`  // Context window override (0 = auto-detect)
	TimeoutSeconds int    `json:"timeoutSeconds"` // Request timeout
}

// ErrUnavailable is returned when a provider is not usable.
type ErrUnavailable struct {
	Provider string
	Reason   string
}

func (e ErrUnavailable) Error() string {
	if e.Reason != "" {
		return e.Provider + " is unavailable: " + e.Reason
	}
	return e.Provider + " is unavailable"
}

// contextTokensForModel guesses a model's context window from its name.
// Config overrides win; this is the fallback for unconfigured models.
func contextTokensForModel(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "claude"):
		return 200000
	case strings.Contains(m, "gpt-4o"), strings.Contains(m, "gpt-4.1"):
		return 128000
	case strings.Contains(m, "o3"), strings.Contains(m, "o4"):
		return 200000
	case strings.Contains(m, "llama"), strings.Contains(m, "qwen"):
		return 128000
	default:
		return 128000
	}
}
