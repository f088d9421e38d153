// Package gateway drives upstream calls for batch requests and turns their
// replies into frame streams.
//
// Items are processed strictly one after another on a connection. Every
// item opens with a start frame and closes with exactly one end frame, with
// an error frame and placeholder values in between when the upstream call
// is rejected or fails.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/lexiz/internal/guard"
	"github.com/abhisek/lexiz/internal/llm"
	"github.com/abhisek/lexiz/internal/metrics"
	"github.com/abhisek/lexiz/internal/sanitize"
	"github.com/abhisek/lexiz/internal/wire"
)

// Gateway orchestrates upstream calls for frame streams. It is safe for
// concurrent use; all shared state lives in the ProtectionState.
type Gateway struct {
	provider   llm.Provider
	protection *guard.ProtectionState
	cfg        Config
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithMetrics records frames, items and upstream calls.
func WithMetrics(c *metrics.Collector) Option {
	return func(g *Gateway) { g.metrics = c }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Gateway calling provider under the shared protection state.
func New(provider llm.Provider, protection *guard.ProtectionState, cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		provider:   provider,
		protection: protection,
		cfg:        cfg,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "gateway")
	return g
}

// Config returns the gateway configuration.
func (g *Gateway) Config() Config { return g.cfg }

// Stream writes the frames for items to enc, one item at a time.
//
// Item failures never end the stream; they become error frames. Stream
// returns an error only when the client can no longer be written to or ctx
// is done, in which case the upstream call in progress is abandoned.
func (g *Gateway) Stream(ctx context.Context, items []wire.Item, enc *wire.Encoder) error {
	if g.metrics != nil {
		enc.OnFrame(func(f wire.Frame) { g.metrics.FrameWritten(string(f.Event)) })
	}
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.streamItem(ctx, it, enc); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) streamItem(ctx context.Context, it wire.Item, enc *wire.Encoder) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	log := g.logger.With("item_id", it.ID, "kind", it.Kind)
	if rid := llm.RequestIDFrom(ctx); rid != "" {
		log = log.With("request_id", rid)
	}
	keys := keysFor(it.Kind)
	before := enc.Frames()

	em := newEmitter(enc)
	em.frame(wire.Start())
	em.value(wire.KeyID, it.ID)
	if it.Word != "" {
		em.value(wire.KeyWord, it.Word)
	}
	if it.Meaning != "" {
		em.value(wire.KeyMeaning, it.Meaning)
	}
	if em.err != nil {
		return em.err
	}

	// An open circuit short-circuits the item before it spends limiter capacity.
	err := g.protection.Check()
	if err == nil {
		if err = g.protection.Acquire(ctx); err != nil {
			return err
		}
		err = g.protection.Execute(ctx, func(ctx context.Context) error {
			return g.call(ctx, it, em, log)
		})
	}
	if em.err != nil {
		return em.err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		var open *guard.CircuitOpenError
		if errors.As(err, &open) {
			outcome = "rejected"
		}
		log.Warn("item failed", "error", err)

		em.closeAll(keys)
		em.frame(wire.Fault(faultMessage(err)))
		em.fill(keys, fallback(it))
	}
	em.frame(wire.End())
	if em.err != nil {
		return em.err
	}

	g.metrics.ItemDone(string(it.Kind), outcome)
	log.Info("item done", "outcome", outcome, "frames", enc.Frames()-before)
	return nil
}

// call runs one admitted upstream call under the configured timeout.
func (g *Gateway) call(ctx context.Context, it wire.Item, em *emitter, log *slog.Logger) error {
	start := time.Now()

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if g.cfg.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
	}
	defer cancel()
	callCtx = llm.WithPurpose(callCtx, string(it.Kind))

	var err error
	switch it.Kind {
	case wire.KindExamples:
		if it.Mode == wire.ModeWhole {
			err = g.examplesWhole(callCtx, it, em)
		} else {
			err = g.examplesStream(callCtx, it, em)
		}
	default:
		if g.mode(it) == wire.ModeWhole {
			err = g.evaluateWhole(callCtx, it, em)
		} else {
			err = g.evaluateStream(callCtx, it, em, log)
		}
	}

	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = &llm.ErrTimeout{After: g.cfg.Timeout}
	}
	if em.err != nil {
		// The client went away while the reply was being forwarded. That
		// says nothing about the upstream.
		err = fmt.Errorf("%w: %w", guard.ErrAbandoned, em.err)
	}

	g.metrics.UpstreamCall(string(it.Kind), callOutcome(err), time.Since(start))
	if err != nil {
		g.metrics.UpstreamError(errorType(err))
	}
	return err
}

func (g *Gateway) mode(it wire.Item) wire.Mode {
	if it.Mode != "" {
		return it.Mode
	}
	if g.cfg.DefaultMode != "" {
		return g.cfg.DefaultMode
	}
	return wire.ModeStream
}

func (g *Gateway) request(system, user string, schema *llm.Schema) llm.Request {
	return llm.Request{
		System: system,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: user},
		},
		Schema:      schema,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}
}

// evaluateStream forwards evaluation fields while the JSON reply streams in.
func (g *Gateway) evaluateStream(ctx context.Context, it wire.Item, em *emitter, log *slog.Logger) error {
	stream, err := g.provider.GenerateStream(ctx, g.request(evaluateSystemPrompt, buildEvaluateMessage(it), EvaluationSchema))
	if err != nil {
		return err
	}
	defer stream.Close()

	scanner := newFieldScanner(string(wire.KeyFeedback), string(wire.KeyErrors), string(wire.KeySuggestions), string(wire.KeyCorrectAnswer))
	var full strings.Builder
	for {
		piece, err := stream.Next()
		if piece != "" {
			full.WriteString(piece)
			em.fields(scanner.Feed(piece), evaluateKeys)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if em.err != nil {
			return em.err
		}
	}
	em.fields(scanner.Close(), evaluateKeys)

	// Fields the scanner could not follow still arrive whole.
	var reply map[string]json.RawMessage
	if err := sanitize.Decode(full.String(), &reply); err != nil {
		return err
	}
	for _, key := range evaluateKeys {
		if raw, ok := reply[string(key)]; ok {
			em.whole(key, raw)
		}
	}

	if missing := em.missing(evaluateKeys); len(missing) > 0 {
		return &llm.ErrInvalidResponse{
			Content: json.RawMessage(full.String()),
			Err:     fmt.Errorf("reply is missing %s", strings.Join(missing, ", ")),
		}
	}
	if err := llm.ValidateJSON(EvaluationSchema, json.RawMessage(sanitize.Clean(full.String()))); err != nil {
		log.Debug("evaluation reply does not match schema", "error", err)
	}
	return nil
}

// evaluateWhole asks for one validated reply and sends every field whole.
func (g *Gateway) evaluateWhole(ctx context.Context, it wire.Item, em *emitter) error {
	resp, err := g.provider.Generate(ctx, g.request(evaluateSystemPrompt, buildEvaluateMessage(it), EvaluationSchema))
	if err != nil {
		return err
	}

	var reply map[string]json.RawMessage
	if err := json.Unmarshal(resp.Content, &reply); err != nil {
		return &sanitize.ParseError{Text: string(resp.Content), Err: err}
	}
	for _, key := range evaluateKeys {
		if raw, ok := reply[string(key)]; ok {
			em.whole(key, raw)
		}
	}
	return nil
}

// examplesStream forwards free text on the examples key, one sentence per line.
func (g *Gateway) examplesStream(ctx context.Context, it wire.Item, em *emitter) error {
	stream, err := g.provider.GenerateStream(ctx, g.request(examplesSystemPrompt, buildExamplesMessage(it, g.cfg.ExampleCount), nil))
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		piece, err := stream.Next()
		if piece != "" {
			em.text(wire.KeyExamples, piece)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if em.err != nil {
			return em.err
		}
	}

	if em.open[wire.KeyExamples] == nil {
		return &llm.ErrInvalidResponse{Err: fmt.Errorf("empty examples reply")}
	}
	em.closeText(wire.KeyExamples)
	return nil
}

// examplesWhole asks for a validated {"examples": [...]} reply.
func (g *Gateway) examplesWhole(ctx context.Context, it wire.Item, em *emitter) error {
	resp, err := g.provider.Generate(ctx, g.request(examplesJSONSystemPrompt, buildExamplesMessage(it, g.cfg.ExampleCount), ExamplesSchema))
	if err != nil {
		return err
	}

	var reply struct {
		Examples json.RawMessage `json:"examples"`
	}
	if err := json.Unmarshal(resp.Content, &reply); err != nil {
		return &sanitize.ParseError{Text: string(resp.Content), Err: err}
	}
	em.whole(wire.KeyExamples, reply.Examples)
	return nil
}

func keysFor(kind wire.Kind) []wire.Key {
	if kind == wire.KindExamples {
		return examplesKeys
	}
	return evaluateKeys
}

// faultMessage is the text of the error frame sent to the client.
func faultMessage(err error) string {
	var (
		open    *guard.CircuitOpenError
		timeout *llm.ErrTimeout
		rl      *llm.ErrRateLimit
		parse   *sanitize.ParseError
		invalid *llm.ErrInvalidResponse
		maxTok  *llm.ErrMaxTokensExceeded
	)
	switch {
	case errors.As(err, &open):
		return open.Error()
	case errors.As(err, &timeout):
		return timeout.Error()
	case errors.As(err, &rl):
		return "the language model is rate limited, please retry shortly"
	case errors.As(err, &parse), errors.As(err, &invalid):
		return "the language model returned an unreadable reply"
	case errors.As(err, &maxTok):
		return "the language model reply was cut off"
	}
	return "the language model is unavailable"
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, guard.ErrAbandoned):
		return "abandoned"
	}
	return "failed"
}

// errorType classifies an upstream failure for metrics.
func errorType(err error) string {
	var (
		timeout *llm.ErrTimeout
		rl      *llm.ErrRateLimit
		parse   *sanitize.ParseError
		invalid *llm.ErrInvalidResponse
		maxTok  *llm.ErrMaxTokensExceeded
	)
	switch {
	case errors.As(err, &timeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, guard.ErrAbandoned):
		return "canceled"
	case errors.As(err, &rl):
		return "rate_limit"
	case errors.As(err, &parse), errors.As(err, &invalid):
		return "invalid_reply"
	case errors.As(err, &maxTok):
		return "truncated"
	}
	return "unavailable"
}
