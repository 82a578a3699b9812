package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/heraldlabs/herald/internal/logging"

	"github.com/heraldlabs/herald/internal/types"
)

// OpenAIProvider implements Provider for the OpenAI chat completions API
// and any OpenAI-compatible endpoint (Groq, OpenRouter, local servers) via
// BaseURL.
type OpenAIProvider struct {
	name          string
	client        *openai.Client
	model         string
	maxTokens     int
	contextTokens int
}

// NewOpenAIProvider creates an OpenAI-compatible provider from ProviderConfig.
func NewOpenAIProvider(name string, cfg ProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key not configured")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	timeout := cfg.TimeoutSeconds
	if timeout == 0 {
		timeout = 300
	}
	config.HTTPClient = &http.Client{Timeout: time.Duration(timeout) * time.Second}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	L_debug("openai provider created", "name", name, "baseURL", cfg.BaseURL, "maxTokens", maxTokens)

	return &OpenAIProvider{
		name:          name,
		client:        openai.NewClientWithConfig(config),
		maxTokens:     maxTokens,
		contextTokens: cfg.ContextTokens,
	}, nil
}

// Name returns the provider instance name.
func (p *OpenAIProvider) Name() string { return p.name }

// Type returns "openai".
func (p *OpenAIProvider) Type() string { return "openai" }

// Model returns the current model.
func (p *OpenAIProvider) Model() string { return p.model }

// WithModel clones the provider with a different model.
func (p *OpenAIProvider) WithModel(model string) Provider {
	clone := *p
	clone.model = model
	return &clone
}

// ContextTokens returns the model's context window size.
func (p *OpenAIProvider) ContextTokens() int {
	if p.contextTokens > 0 {
		return p.contextTokens
	}
	return contextTokensForModel(p.model)
}

// Complete runs one request/response turn.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if p.model == "" {
		return nil, ErrUnavailable{Provider: p.name, Reason: "no model configured"}
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	started := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices for model %s", p.model)
	}

	usage := types.TokenUsage{
		Input:  resp.Usage.PromptTokens,
		Output: resp.Usage.CompletionTokens,
		Total:  resp.Usage.TotalTokens,
	}
	if details := resp.Usage.PromptTokensDetails; details != nil {
		// OpenAI folds cached tokens into PromptTokens; split them out so
		// the cache-aware accounting matches the Anthropic provider.
		usage.CacheRead = details.CachedTokens
		usage.Input = resp.Usage.PromptTokens - details.CachedTokens
	}

	choice := resp.Choices[0]
	L_debug("openai: turn complete",
		"model", p.model,
		"stop", choice.FinishReason,
		"input", usage.Input,
		"output", usage.Output,
		"elapsed", time.Since(started).Round(time.Millisecond))

	return &Response{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage:      usage,
	}, nil
}
