package client

import (
	"context"
	"io"
	"log/slog"

	"github.com/abhisek/lexiz/internal/gateway"
	"github.com/abhisek/lexiz/internal/reconstruct"
	"github.com/abhisek/lexiz/internal/wire"
)

// Evaluator streams a batch and reports reconstructed items as they change.
// *Client and *Local implement it.
type Evaluator interface {
	Evaluate(ctx context.Context, items []wire.Item, fn func(reconstruct.Update)) ([]reconstruct.Accumulator, error)
}

var (
	_ Evaluator = (*Client)(nil)
	_ Evaluator = (*Local)(nil)
)

// Local runs a gateway in-process and decodes its frames through a pipe,
// so CLI commands exercise the same wire path as a remote client.
type Local struct {
	gateway *gateway.Gateway
	logger  *slog.Logger
}

// NewLocal wraps gw. A nil logger means slog.Default().
func NewLocal(gw *gateway.Gateway, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{gateway: gw, logger: logger}
}

// Evaluate validates the batch like the server does, then streams it.
func (l *Local) Evaluate(ctx context.Context, items []wire.Item, fn func(reconstruct.Update)) ([]reconstruct.Accumulator, error) {
	if err := (wire.BatchRequest{Items: items}).Validate(l.gateway.Config().MaxBatch); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(l.gateway.Stream(ctx, items, wire.NewEncoder(pw)))
	}()

	r := reconstruct.New(l.logger)
	err := r.ReadAll(ctx, pr, 0, fn)
	// Unblocks the writer if reading stopped early.
	pr.Close()
	return r.Items(), err
}
