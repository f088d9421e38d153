package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/abhisek/lexiz/internal/store"
)

// maxLoggedResponse bounds how much streamed text is kept for the event log.
const maxLoggedResponse = 64 << 10

// LoggingProvider is a decorator that records every upstream request as an
// event and a structured log line. A nil repo only logs.
type LoggingProvider struct {
	inner     Provider
	provider  string
	eventRepo store.EventRepo
	logger    *slog.Logger
}

// WithLogging wraps a Provider with event logging.
func WithLogging(p Provider, providerName string, repo store.EventRepo, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingProvider{
		inner:     p,
		provider:  providerName,
		eventRepo: repo,
		logger:    logger.With("component", "llm"),
	}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	resp, err := l.inner.Generate(ctx, req)

	data := l.baseEvent(ctx, req, false, time.Since(start))
	data.Success = err == nil
	if resp != nil {
		data.InputTokens = resp.Usage.InputTokens
		data.OutputTokens = resp.Usage.OutputTokens
		data.Model = resp.Model
		data.ResponseBody = string(resp.Content)
	}
	if err != nil {
		data.ErrorMessage = err.Error()
	}
	l.record(ctx, data)

	return resp, err
}

func (l *LoggingProvider) GenerateStream(ctx context.Context, req Request) (TokenStream, error) {
	start := time.Now()

	stream, err := l.inner.GenerateStream(ctx, req)
	if err != nil {
		data := l.baseEvent(ctx, req, true, time.Since(start))
		data.ErrorMessage = err.Error()
		l.record(ctx, data)
		return nil, err
	}

	return &loggingStream{
		inner: stream,
		finish: func(text string, usage Usage, err error) {
			data := l.baseEvent(ctx, req, true, time.Since(start))
			data.Success = err == nil
			data.InputTokens = usage.InputTokens
			data.OutputTokens = usage.OutputTokens
			data.ResponseBody = text
			if err != nil {
				data.ErrorMessage = err.Error()
			}
			// The request context may already be cancelled; the event
			// describes what happened and is still worth keeping.
			l.record(context.WithoutCancel(ctx), data)
		},
	}, nil
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

func (l *LoggingProvider) baseEvent(ctx context.Context, req Request, streamed bool, latency time.Duration) store.LLMRequestEventData {
	return store.LLMRequestEventData{
		RequestID:   RequestIDFrom(ctx),
		Provider:    l.provider,
		Model:       l.inner.ModelID(),
		Purpose:     PurposeFrom(ctx),
		Streamed:    streamed,
		LatencyMs:   latency.Milliseconds(),
		RequestBody: serializeRequest(req),
	}
}

func (l *LoggingProvider) record(ctx context.Context, data store.LLMRequestEventData) {
	attrs := []any{
		"request_id", data.RequestID,
		"purpose", data.Purpose,
		"model", data.Model,
		"streamed", data.Streamed,
		"latency_ms", data.LatencyMs,
		"input_tokens", data.InputTokens,
		"output_tokens", data.OutputTokens,
	}
	if data.Success {
		l.logger.Info("upstream call", attrs...)
	} else {
		l.logger.Warn("upstream call failed", append(attrs, "error", data.ErrorMessage)...)
	}

	if l.eventRepo == nil {
		return
	}
	// Log the event but don't fail the request if logging fails.
	if err := l.eventRepo.AppendLLMRequest(ctx, data); err != nil {
		l.logger.Warn("failed to record LLM request event", "error", err)
	}
}

// loggingStream tees the streamed text and reports the call exactly once,
// on EOF, on error, or on an early Close.
type loggingStream struct {
	inner  TokenStream
	finish func(text string, usage Usage, err error)

	text strings.Builder
	once sync.Once
}

func (s *loggingStream) Next() (string, error) {
	chunk, err := s.inner.Next()
	if chunk != "" && s.text.Len() < maxLoggedResponse {
		s.text.WriteString(chunk)
	}
	switch {
	case errors.Is(err, io.EOF):
		s.report(nil)
	case err != nil:
		s.report(err)
	}
	return chunk, err
}

func (s *loggingStream) Usage() Usage { return s.inner.Usage() }

func (s *loggingStream) Close() error {
	s.report(errStreamAbandoned)
	return s.inner.Close()
}

var errStreamAbandoned = errors.New("stream closed before completion")

func (s *loggingStream) report(err error) {
	s.once.Do(func() {
		s.finish(s.text.String(), s.inner.Usage(), err)
	})
}

// serializeRequest builds a readable representation of the LLM request.
func serializeRequest(req Request) string {
	var b strings.Builder

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}

	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n", m.Role)
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}

	if req.Schema != nil {
		schemaDef, err := json.Marshal(req.Schema.Definition)
		if err == nil {
			fmt.Fprintf(&b, "[schema: %s]\n", req.Schema.Name)
			b.Write(schemaDef)
			b.WriteString("\n")
		}
	}

	return b.String()
}
