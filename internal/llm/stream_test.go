package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/lexiz/internal/store"
)

func drain(t *testing.T, s TokenStream) (string, error) {
	t.Helper()
	var b strings.Builder
	for {
		chunk, err := s.Next()
		b.WriteString(chunk)
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
	}
}

func TestMockStream_YieldsChunksInOrder(t *testing.T) {
	mock := NewMockProvider(MockResponse{
		Chunks: []string{`{"score":`, `72,`, `"feedback":"Nice try."}`},
		Usage:  Usage{InputTokens: 3, OutputTokens: 4},
	})

	s, err := mock.GenerateStream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	text, err := drain(t, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != `{"score":72,"feedback":"Nice try."}` {
		t.Fatalf("unexpected text: %q", text)
	}
	if s.Usage().OutputTokens != 4 {
		t.Fatalf("expected 4 output tokens, got %d", s.Usage().OutputTokens)
	}
}

func TestMockStream_ContentAsSingleChunk(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: []byte("hello there")})
	s, _ := mock.GenerateStream(context.Background(), Request{})

	chunk, err := s.Next()
	if err != nil || chunk != "hello there" {
		t.Fatalf("got %q, %v", chunk, err)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestMockStream_StreamErrAfterChunks(t *testing.T) {
	boom := &ErrProviderUnavailable{Err: fmt.Errorf("connection reset")}
	mock := NewMockProvider(MockResponse{Chunks: []string{"partial"}, StreamErr: boom})
	s, _ := mock.GenerateStream(context.Background(), Request{})

	text, err := drain(t, s)
	if text != "partial" {
		t.Fatalf("expected partial text, got %q", text)
	}
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestMockStream_DelayHonoursCancel(t *testing.T) {
	mock := NewMockProvider(MockResponse{Chunks: []string{"slow"}, Delay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	s, _ := mock.GenerateStream(ctx, Request{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if _, err := s.Next(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMockStream_ErrBeforeOutput(t *testing.T) {
	mock := NewMockProvider(MockResponse{Err: &ErrRateLimit{}})
	if _, err := mock.GenerateStream(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call, got %d", mock.CallCount())
	}
}

func TestOpenAIProvider_Stream(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{
			`{"id":"c1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","content":"{\"score\":"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"72}"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`{"id":"c1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}

	p := newTestOpenAIProvider(t, handler)
	s, err := p.GenerateStream(context.Background(), Request{
		Messages:  []Message{{Role: RoleUser, Content: "Evaluate this sentence."}},
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	text, err := drain(t, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != `{"score":72}` {
		t.Fatalf("unexpected text: %q", text)
	}
	if s.Usage().TotalTokens != 17 {
		t.Fatalf("expected 17 total tokens, got %d", s.Usage().TotalTokens)
	}
}

func TestOpenAIProvider_StreamTruncated(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"{\"sc"},"finish_reason":"length"}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}

	p := newTestOpenAIProvider(t, handler)
	s, err := p.GenerateStream(context.Background(), Request{MaxTokens: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = drain(t, s)
	var maxTok *ErrMaxTokensExceeded
	if !errors.As(err, &maxTok) {
		t.Fatalf("expected ErrMaxTokensExceeded, got %v", err)
	}
}

func TestAnthropicProvider_Stream(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []struct{ name, data string }{
			{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-haiku-4-5-20251001","stop_reason":null,"usage":{"input_tokens":20,"output_tokens":1}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Nice "}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"try."}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":7}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		for _, ev := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
		}
	}

	p := newTestAnthropicProvider(t, handler)
	s, err := p.GenerateStream(context.Background(), Request{
		Messages:  []Message{{Role: RoleUser, Content: "Give feedback."}},
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	text, err := drain(t, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Nice try." {
		t.Fatalf("unexpected text: %q", text)
	}
	u := s.Usage()
	if u.InputTokens != 20 || u.OutputTokens != 7 || u.TotalTokens != 27 {
		t.Fatalf("unexpected usage: %+v", u)
	}
}

type recordingRepo struct {
	mu     sync.Mutex
	events []store.LLMRequestEventData
	err    error
}

func (r *recordingRepo) AppendLLMRequest(_ context.Context, data store.LLMRequestEventData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data)
	return r.err
}

func (r *recordingRepo) AppendCircuitTransition(context.Context, store.CircuitEventData) error {
	return nil
}

func (r *recordingRepo) recorded() []store.LLMRequestEventData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.LLMRequestEventData(nil), r.events...)
}

func TestLoggingProvider_RecordsGenerate(t *testing.T) {
	repo := &recordingRepo{}
	mock := NewMockProvider(MockResponse{Content: []byte(`{"a":1}`), Usage: Usage{InputTokens: 9, OutputTokens: 2}})
	p := WithLogging(mock, "mock", repo, nil)

	ctx := WithRequestID(WithPurpose(context.Background(), "evaluate"), "req-1")
	if _, err := p.Generate(ctx, Request{System: "sys"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := repo.recorded()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if !ev.Success || ev.Streamed || ev.Purpose != "evaluate" || ev.RequestID != "req-1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.InputTokens != 9 || ev.ResponseBody != `{"a":1}` {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !strings.Contains(ev.RequestBody, "[system]\nsys") {
		t.Fatalf("request body missing system prompt: %q", ev.RequestBody)
	}
}

func TestLoggingProvider_RecordsStreamOnce(t *testing.T) {
	repo := &recordingRepo{}
	mock := NewMockProvider(MockResponse{Chunks: []string{"a", "b"}})
	p := WithLogging(mock, "mock", repo, nil)

	s, err := p.GenerateStream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, err := drain(t, s)
	if err != nil || text != "ab" {
		t.Fatalf("got %q, %v", text, err)
	}
	s.Close()

	events := repo.recorded()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !events[0].Success || !events[0].Streamed || events[0].ResponseBody != "ab" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestLoggingProvider_AbandonedStreamIsFailure(t *testing.T) {
	repo := &recordingRepo{}
	mock := NewMockProvider(MockResponse{Chunks: []string{"a", "b"}})
	p := WithLogging(mock, "mock", repo, nil)

	s, _ := p.GenerateStream(context.Background(), Request{})
	if _, err := s.Next(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Close()

	events := repo.recorded()
	if len(events) != 1 || events[0].Success {
		t.Fatalf("expected one failed event, got %+v", events)
	}
	if events[0].ErrorMessage != errStreamAbandoned.Error() {
		t.Fatalf("unexpected error message %q", events[0].ErrorMessage)
	}
}

func TestLoggingProvider_RepoErrorDoesNotFailCall(t *testing.T) {
	repo := &recordingRepo{err: errors.New("disk full")}
	mock := NewMockProvider(MockResponse{Content: []byte(`{}`)})
	p := WithLogging(mock, "mock", repo, nil)

	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("repo failure leaked into call: %v", err)
	}
}

func TestLoggingProvider_StreamStartFailure(t *testing.T) {
	repo := &recordingRepo{}
	mock := NewMockProvider()
	p := WithLogging(mock, "mock", repo, nil)

	if _, err := p.GenerateStream(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}
	events := repo.recorded()
	if len(events) != 1 || events[0].Success || !events[0].Streamed {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestRetryProvider_StreamNotRetried(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrProviderUnavailable{}},
		MockResponse{Chunks: []string{"ok"}},
	)
	p := WithRetry(mock, RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1})

	if _, err := p.GenerateStream(context.Background(), Request{}); err == nil {
		t.Fatal("expected the first stream error to surface")
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call, got %d", mock.CallCount())
	}
}

func TestNewProvider_Mock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "mock"
	p, err := NewProvider(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ModelID() != "mock" {
		t.Fatalf("expected mock model, got %q", p.ModelID())
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "carrier-pigeon"
	if _, err := NewProvider(context.Background(), cfg, nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
