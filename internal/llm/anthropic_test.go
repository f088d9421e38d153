package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestAnthropicProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewAnthropicProvider(AnthropicConfig{
		APIKey:  "test-key",
		Model:   "claude-haiku",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	return p
}

func anthropicMessage(text, stop string) map[string]any {
	return map[string]any{
		"id":          "msg_lexiz",
		"type":        "message",
		"role":        "assistant",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": stop,
		"usage":       map[string]any{"input_tokens": 50, "output_tokens": 30},
	}
}

func TestAnthropicProvider_GenerateWithSchema(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		OutputConfig struct {
			Format struct {
				Type string `json:"type"`
			} `json:"format"`
		} `json:"output_config"`
	}
	p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(anthropicMessage(`Sure! {"score":64,"feedback":"Ephemeral means short-lived."}`, "end_turn"))
	})

	resp, err := p.Generate(context.Background(), Request{
		System:    "You are a vocabulary coach.",
		Messages:  []Message{{Role: RoleUser, Content: "Word: ephemeral. Sentence: The ephemeral mountain stood for ages."}},
		Schema:    evaluationSchema(),
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != `{"score":64,"feedback":"Ephemeral means short-lived."}` {
		t.Fatalf("expected sanitized content, got %s", resp.Content)
	}
	if resp.Usage.TotalTokens != 80 || resp.StopReason != "end" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if got.Model != "claude-haiku-4-5-20251001" {
		t.Errorf("alias not resolved, model = %q", got.Model)
	}
	if got.MaxTokens != 256 {
		t.Errorf("max_tokens = %d", got.MaxTokens)
	}
	if len(got.System) != 1 || got.System[0].Text != "You are a vocabulary coach." {
		t.Errorf("system = %+v", got.System)
	}
	if got.OutputConfig.Format.Type != "json_schema" {
		t.Errorf("output format = %q", got.OutputConfig.Format.Type)
	}
}

func TestAnthropicProvider_GenerateErrors(t *testing.T) {
	apiError := func(kind string) map[string]any {
		return map[string]any{"type": "error", "error": map[string]any{"type": kind, "message": kind}}
	}
	tests := []struct {
		name    string
		status  int
		body    map[string]any
		check   func(error) bool
		wantErr string
	}{
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    apiError("rate_limit_error"),
			check:   func(err error) bool { var e *ErrRateLimit; return errors.As(err, &e) },
			wantErr: "ErrRateLimit",
		},
		{
			name:    "overloaded",
			status:  529,
			body:    apiError("overloaded_error"),
			check:   func(err error) bool { var e *ErrProviderUnavailable; return errors.As(err, &e) },
			wantErr: "ErrProviderUnavailable",
		},
		{
			name:    "reply cut at max tokens",
			status:  http.StatusOK,
			body:    anthropicMessage(`{"score":64,"feed`, "max_tokens"),
			check:   func(err error) bool { var e *ErrMaxTokensExceeded; return errors.As(err, &e) },
			wantErr: "ErrMaxTokensExceeded",
		},
		{
			name:    "no object in reply",
			status:  http.StatusOK,
			body:    anthropicMessage("I cannot grade this sentence.", "end_turn"),
			check:   func(err error) bool { var e *ErrInvalidResponse; return errors.As(err, &e) },
			wantErr: "ErrInvalidResponse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestAnthropicProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(tt.body)
			})
			_, err := p.Generate(context.Background(), Request{
				Messages:  []Message{{Role: RoleUser, Content: "Word: ephemeral."}},
				Schema:    evaluationSchema(),
				MaxTokens: 100,
			})
			if !tt.check(err) {
				t.Fatalf("expected %s, got %T (%v)", tt.wantErr, err, err)
			}
		})
	}
}

func TestNewAnthropicProvider(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{Model: "claude-sonnet"}); err == nil {
		t.Fatal("expected error without API key")
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"claude-sonnet", "claude-sonnet-4-5-20250929"},
		{"claude-haiku", "claude-haiku-4-5-20251001"},
		{"claude-opus-4-1-20250805", "claude-opus-4-1-20250805"},
	}
	for _, tt := range tests {
		p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", Model: tt.input})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.ModelID() != tt.expected {
			t.Errorf("ModelID() for %q = %q, want %q", tt.input, p.ModelID(), tt.expected)
		}
	}
}
