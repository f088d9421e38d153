package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestNewOpenRouterProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     OpenRouterConfig
		wantErr bool
		model   string
	}{
		{
			name:  "default route",
			cfg:   OpenRouterConfig{APIKey: "sk-or-test", Model: "google/gemini-2.0-flash-exp"},
			model: "google/gemini-2.0-flash-exp",
		},
		{
			name:  "vendor prefixed IDs are not mapped",
			cfg:   OpenRouterConfig{APIKey: "sk-or-test", Model: "anthropic/claude-haiku"},
			model: "anthropic/claude-haiku",
		},
		{
			name:    "missing key",
			cfg:     OpenRouterConfig{Model: "google/gemini-2.0-flash-exp"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewOpenRouterProvider(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.ModelID() != tt.model {
				t.Errorf("model = %q, want %q", p.ModelID(), tt.model)
			}
		})
	}
}

func TestOpenRouterProvider_StreamSendsAttribution(t *testing.T) {
	var (
		mu      sync.Mutex
		headers http.Header
		path    string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = r.Header.Clone()
		path = r.URL.Path
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{`She `, `is beautiful.`} {
			fmt.Fprintf(w, "data: {\"id\":\"or-1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		fmt.Fprint(w, "data: {\"id\":\"or-1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)

	p, err := NewOpenRouterProvider(OpenRouterConfig{
		APIKey:   "sk-or-test",
		Model:    "google/gemini-2.0-flash-exp",
		BaseURL:  server.URL + "/api/v1",
		AppTitle: "lexiz",
		Referer:  "https://lexiz.example",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, err := p.GenerateStream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "Write one example for 'beautiful'."}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	text, err := drain(t, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "She is beautiful." {
		t.Fatalf("unexpected text: %q", text)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/api/v1/chat/completions" {
		t.Errorf("path = %q", path)
	}
	if got := headers.Get("X-Title"); got != "lexiz" {
		t.Errorf("X-Title = %q", got)
	}
	if got := headers.Get("HTTP-Referer"); got != "https://lexiz.example" {
		t.Errorf("HTTP-Referer = %q", got)
	}
	if got := headers.Get("Authorization"); got != "Bearer sk-or-test" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestOpenRouterProvider_NoAttributionByDefault(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"or-2","object":"chat.completion","model":"google/gemini-2.0-flash-exp",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"{\"examples\":[\"A run.\"]}"},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":4,"completion_tokens":6,"total_tokens":10}}`)
	}))
	t.Cleanup(server.Close)

	p, err := NewOpenRouterProvider(OpenRouterConfig{APIKey: "sk-or-test", Model: "google/gemini-2.0-flash-exp", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "run"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens)
	}
	if got.Get("X-Title") != "" || got.Get("HTTP-Referer") != "" {
		t.Errorf("unexpected attribution headers: %v", got)
	}
}
