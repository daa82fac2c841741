// Package ai provides the model-call boundary for the synthesis agent:
// role-tagged messages in, response text plus token usage out.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Role tags a message with its conversational origin.
type Role string

const (
	// RoleSystem carries instructions that frame the whole call
	RoleSystem Role = "system"
	// RoleUser carries the prompt content
	RoleUser Role = "user"
	// RoleAssistant carries prior model output fed back as context
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged text block in a model call.
type Message struct {
	Role    Role
	Content string
}

// TokenUsage reports the token counts of a single model call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Client is the consumed model capability. Implementations must be safe
// for concurrent use; the agent issues one call at a time per session but
// multiple sessions share one client.
type Client interface {
	// Invoke sends an ordered message sequence and returns the response
	// text with its token usage. Errors (quota, network, exhausted
	// retries) are unrecoverable from the caller's point of view.
	Invoke(ctx context.Context, messages []Message) (string, TokenUsage, error)
}

// DefaultModel is used when the configuration names no model.
const DefaultModel = "claude-sonnet-4-5-20250929"

// AnthropicConfig holds settings for the Anthropic-backed client.
type AnthropicConfig struct {
	APIKey    string // if empty, read from ANTHROPIC_API_KEY
	Model     string
	MaxTokens int64
	Retry     RetryConfig
	// RequestsPerMinute throttles outbound calls across all sessions.
	// Zero disables throttling.
	RequestsPerMinute int
}

// AnthropicClient implements Client against the Anthropic Messages API
// with bounded retry, a concurrency cap, and a shared rate limiter.
type AnthropicClient struct {
	client  *anthropic.Client
	model   string
	maxTok  int64
	retry   RetryConfig
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewAnthropicClient builds a client from config, filling defaults for
// anything unset.
func NewAnthropicClient(cfg AnthropicConfig, logger *slog.Logger) (*AnthropicClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTok := cfg.MaxTokens
	if maxTok == 0 {
		maxTok = 8192
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	var sem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		sem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{
		client:  &client,
		model:   model,
		maxTok:  maxTok,
		retry:   retry,
		sem:     sem,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Invoke implements Client.
func (c *AnthropicClient) Invoke(ctx context.Context, messages []Message) (string, TokenUsage, error) {
	system, params, err := toAnthropicMessages(messages)
	if err != nil {
		return "", TokenUsage{}, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", TokenUsage{}, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", TokenUsage{}, fmt.Errorf("acquire concurrency slot: %w", err)
		}
		defer c.sem.Release(1)
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTok,
		Messages:  params,
	}
	if system != "" {
		req.System = []anthropic.TextBlockParam{{Text: system}}
	}

	var response *anthropic.Message
	err = c.retryWithBackoff(ctx, "invoke", func(attemptCtx context.Context) error {
		resp, apiErr := c.client.Messages.New(attemptCtx, req)
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", TokenUsage{}, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	usage := TokenUsage{
		PromptTokens:     int(response.Usage.InputTokens),
		CompletionTokens: int(response.Usage.OutputTokens),
		TotalTokens:      int(response.Usage.InputTokens + response.Usage.OutputTokens),
	}
	return text, usage, nil
}

// toAnthropicMessages splits out the system prompt (the API takes it as a
// separate parameter) and converts the rest of the sequence.
func toAnthropicMessages(messages []Message) (string, []anthropic.MessageParam, error) {
	var system string
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case RoleUser:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			return "", nil, fmt.Errorf("unknown message role %q", m.Role)
		}
	}
	if len(params) == 0 {
		return "", nil, fmt.Errorf("no user or assistant messages in sequence")
	}
	return system, params, nil
}
