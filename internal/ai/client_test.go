package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"
)

func TestToAnthropicMessagesSplitsSystem(t *testing.T) {
	system, params, err := toAnthropicMessages([]Message{
		{Role: RoleSystem, Content: "You review documents."},
		{Role: RoleUser, Content: "Review this."},
		{Role: RoleAssistant, Content: "Looks fine."},
		{Role: RoleUser, Content: "Check again."},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if system != "You review documents." {
		t.Errorf("system = %q", system)
	}
	if len(params) != 3 {
		t.Errorf("got %d params, want 3", len(params))
	}
}

func TestToAnthropicMessagesJoinsMultipleSystemPrompts(t *testing.T) {
	system, _, err := toAnthropicMessages([]Message{
		{Role: RoleSystem, Content: "first"},
		{Role: RoleSystem, Content: "second"},
		{Role: RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if system != "first\n\nsecond" {
		t.Errorf("system = %q", system)
	}
}

func TestToAnthropicMessagesRejectsUnknownRole(t *testing.T) {
	_, _, err := toAnthropicMessages([]Message{{Role: "tool", Content: "x"}})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestToAnthropicMessagesRejectsSystemOnly(t *testing.T) {
	_, _, err := toAnthropicMessages([]Message{{Role: RoleSystem, Content: "x"}})
	if err == nil {
		t.Fatal("expected error for sequence with no user/assistant messages")
	}
}

func TestIsRetriableError(t *testing.T) {
	cases := []struct {
		err       error
		retriable bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{fmt.Errorf("request failed: %w", context.DeadlineExceeded), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("rate limit exceeded, retry later"), true},
		{errors.New("503 service unavailable"), true},
		{errors.New("upstream bad gateway"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("401 Unauthorized"), false},
		{errors.New("400 invalid request: max_tokens too large"), false},
		{errors.New("model not found"), false},
	}
	for _, tc := range cases {
		name := "nil"
		if tc.err != nil {
			name = tc.err.Error()
		}
		if got := isRetriableError(tc.err); got != tc.retriable {
			t.Errorf("isRetriableError(%q) = %v, want %v", name, got, tc.retriable)
		}
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
	if cfg.InitialBackoff != time.Second || cfg.MaxBackoff != 30*time.Second {
		t.Errorf("backoff bounds = %v / %v", cfg.InitialBackoff, cfg.MaxBackoff)
	}
	if cfg.MaxConcurrentCalls != 3 {
		t.Errorf("MaxConcurrentCalls = %d", cfg.MaxConcurrentCalls)
	}
}

func TestRetryWithBackoffStopsOnNonRetriable(t *testing.T) {
	c := &AnthropicClient{
		retry: RetryConfig{
			MaxRetries:        3,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        time.Millisecond,
			BackoffMultiplier: 1.0,
			Timeout:           time.Second,
		},
		logger: slog.Default(),
	}

	calls := 0
	err := c.retryWithBackoff(context.Background(), "test", func(context.Context) error {
		calls++
		return errors.New("401 Unauthorized")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-retriable error was retried: %d calls", calls)
	}
}

func TestRetryWithBackoffRetriesAndSucceeds(t *testing.T) {
	c := &AnthropicClient{
		retry: RetryConfig{
			MaxRetries:        3,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        time.Millisecond,
			BackoffMultiplier: 1.0,
			Timeout:           time.Second,
		},
		logger: slog.Default(),
	}

	calls := 0
	err := c.retryWithBackoff(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoffExhaustsRetries(t *testing.T) {
	c := &AnthropicClient{
		retry: RetryConfig{
			MaxRetries:        2,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        time.Millisecond,
			BackoffMultiplier: 1.0,
			Timeout:           time.Second,
		},
		logger: slog.Default(),
	}

	calls := 0
	err := c.retryWithBackoff(context.Background(), "test", func(context.Context) error {
		calls++
		return errors.New("429 Too Many Requests")
	})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 attempt + 2 retries)", calls)
	}
}
