package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	. "github.com/heraldlabs/herald/internal/logging"

	"github.com/heraldlabs/herald/internal/types"
)

// AnthropicProvider implements Provider for Anthropic's Claude API. Also
// works with Anthropic-compatible APIs via BaseURL.
type AnthropicProvider struct {
	name          string
	client        *anthropic.Client
	model         string
	maxTokens     int
	contextTokens int // config override, 0 = auto-detect per model
}

// NewAnthropicProvider creates an Anthropic provider from ProviderConfig.
func NewAnthropicProvider(name string, cfg ProviderConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key not configured")
	}

	timeout := cfg.TimeoutSeconds
	if timeout == 0 {
		timeout = 300
	}
	httpClient := &http.Client{Timeout: time.Duration(timeout) * time.Second}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	L_debug("anthropic provider created", "name", name, "maxTokens", maxTokens)

	return &AnthropicProvider{
		name:          name,
		client:        &client,
		model:         "", // Model set via WithModel()
		maxTokens:     maxTokens,
		contextTokens: cfg.ContextTokens,
	}, nil
}

// Name returns the provider instance name.
func (p *AnthropicProvider) Name() string { return p.name }

// Type returns "anthropic".
func (p *AnthropicProvider) Type() string { return "anthropic" }

// Model returns the current model.
func (p *AnthropicProvider) Model() string { return p.model }

// WithModel clones the provider with a different model.
func (p *AnthropicProvider) WithModel(model string) Provider {
	clone := *p
	clone.model = model
	return &clone
}

// ContextTokens returns the model's context window size.
func (p *AnthropicProvider) ContextTokens() int {
	if p.contextTokens > 0 {
		return p.contextTokens
	}
	return contextTokensForModel(p.model)
}

// Complete runs one request/response turn against the Messages API.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if p.model == "" {
		return nil, ErrUnavailable{Provider: p.name, Reason: "no model configured"}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	started := time.Now()
	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	resp := &Response{
		StopReason: string(message.StopReason),
		Usage: types.TokenUsage{
			Input:      int(message.Usage.InputTokens),
			Output:     int(message.Usage.OutputTokens),
			CacheRead:  int(message.Usage.CacheReadInputTokens),
			CacheWrite: int(message.Usage.CacheCreationInputTokens),
		},
	}
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			resp.Text += text.Text
		}
	}

	L_debug("anthropic: turn complete",
		"model", p.model,
		"stop", resp.StopReason,
		"input", resp.Usage.Input,
		"output", resp.Usage.Output,
		"cacheRead", resp.Usage.CacheRead,
		"elapsed", time.Since(started).Round(time.Millisecond))
	return resp, nil
}
