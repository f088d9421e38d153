package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestMockProvider_QueueAndCalls(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(gradedReply), Usage: Usage{InputTokens: 40, OutputTokens: 25, TotalTokens: 65}},
		MockResponse{Err: &ErrRateLimit{}},
	)

	req := Request{
		System:   "You grade writing exercises.",
		Messages: []Message{{Role: RoleUser, Content: "She beautiful."}},
	}
	resp, err := mock.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != gradedReply || resp.Usage.TotalTokens != 65 || resp.StopReason != "end" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	var rl *ErrRateLimit
	if _, err := mock.Generate(context.Background(), req); !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}

	var unavail *ErrProviderUnavailable
	if _, err := mock.Generate(context.Background(), req); !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable from an empty queue, got %v", err)
	}

	if mock.CallCount() != 3 {
		t.Fatalf("expected 3 calls, got %d", mock.CallCount())
	}
	if mock.Calls[0].System != req.System || mock.ModelID() != "mock" {
		t.Fatalf("unexpected recorded call: %+v", mock.Calls[0])
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if p := PurposeFrom(ctx); p != "unknown" {
		t.Fatalf("expected 'unknown', got %q", p)
	}
	if id := RequestIDFrom(ctx); id != "" {
		t.Fatalf("expected no request id, got %q", id)
	}

	ctx = WithRequestID(WithPurpose(ctx, "examples"), "req-42")
	if p := PurposeFrom(ctx); p != "examples" {
		t.Fatalf("expected 'examples', got %q", p)
	}
	if id := RequestIDFrom(ctx); id != "req-42" {
		t.Fatalf("expected 'req-42', got %q", id)
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv("LEXIZ_LLM_PROVIDER", "openrouter")
	t.Setenv("LEXIZ_OPENROUTER_API_KEY", "sk-or-env")
	t.Setenv("LEXIZ_OPENROUTER_APP_TITLE", "lexiz-staging")
	t.Setenv("LEXIZ_GEMINI_BASE_URL", "http://127.0.0.1:9999/")
	t.Setenv("LEXIZ_LLM_TIMEOUT", "45s")
	t.Setenv("LEXIZ_LLM_MAX_TOKENS", "not-a-number")

	cfg := ConfigFromEnv()
	if cfg.Provider != "openrouter" || cfg.OpenRouter.APIKey != "sk-or-env" {
		t.Fatalf("provider not taken from env: %+v", cfg)
	}
	if cfg.OpenRouter.AppTitle != "lexiz-staging" || cfg.OpenRouter.Model != "google/gemini-2.0-flash-exp" {
		t.Errorf("openrouter = %+v", cfg.OpenRouter)
	}
	if cfg.Gemini.BaseURL != "http://127.0.0.1:9999/" {
		t.Errorf("gemini base url = %q", cfg.Gemini.BaseURL)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("timeout = %v", cfg.Timeout)
	}
	if cfg.MaxTokens != 1024 {
		t.Errorf("invalid max tokens should keep the default, got %d", cfg.MaxTokens)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"anthropic without key", Config{Provider: "anthropic"}, true},
		{"anthropic with key", Config{Provider: "anthropic", Anthropic: AnthropicConfig{APIKey: "sk-test"}}, false},
		{"openai without key", Config{Provider: "openai"}, true},
		{"gemini with key", Config{Provider: "gemini", Gemini: GeminiConfig{APIKey: "g-test"}}, false},
		{"openrouter without key", Config{Provider: "openrouter"}, true},
		{"mock needs no key", Config{Provider: "mock"}, false},
		{"negative timeout", Config{Provider: "mock", Timeout: -time.Second}, true},
		{"unknown provider", Config{Provider: "unknown"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
