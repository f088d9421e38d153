package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abhisek/lexiz/internal/client"
	"github.com/abhisek/lexiz/internal/config"
	"github.com/abhisek/lexiz/internal/gateway"
	"github.com/abhisek/lexiz/internal/guard"
	"github.com/abhisek/lexiz/internal/llm"
	"github.com/abhisek/lexiz/internal/metrics"
	"github.com/abhisek/lexiz/internal/store"
)

// newProtection builds the process-wide protection state and routes its
// hooks to metrics, logs, and the circuit history table. repo may be nil.
func newProtection(cfg guard.Config, m *metrics.Collector, repo store.EventRepo, logger *slog.Logger) *guard.ProtectionState {
	return guard.NewProtectionState(cfg,
		guard.WithWaitHook(m.LimiterWaited),
		guard.WithTransitionHook(func(t guard.Transition) {
			m.CircuitTransition(t.From.String(), t.To.String(), int(t.To))
			logger.Warn("circuit transition",
				"component", "guard",
				"from", t.From.String(),
				"to", t.To.String(),
				"failures", t.Failures,
				"reason", t.Reason)
			if repo == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := repo.AppendCircuitTransition(ctx, store.CircuitEventData{
				From:     t.From.String(),
				To:       t.To.String(),
				Failures: t.Failures,
				Reason:   t.Reason,
			})
			if err != nil {
				logger.Warn("failed to record circuit transition", "error", err)
			}
		}),
	)
}

// runtime is everything a command needs to run items through a gateway.
type runtime struct {
	store      *store.Store
	protection *guard.ProtectionState
	gateway    *gateway.Gateway
	metrics    *metrics.Collector
}

func (r *runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// buildRuntime opens the store and wires provider, protection and gateway.
// The store is optional: when it cannot be opened, calls are only logged.
func buildRuntime(ctx context.Context, cfg *config.Config, m *metrics.Collector, logger *slog.Logger) (*runtime, error) {
	if err := cfg.LLM.Validate(); err != nil {
		return nil, fmt.Errorf("LLM provider not configured: %w", err)
	}

	rt := &runtime{metrics: m}
	var repo store.EventRepo
	if s, err := openStore(cfg); err != nil {
		logger.Warn("event store unavailable, upstream calls will not be recorded", "error", err)
	} else {
		rt.store = s
		repo = s.Events()
	}

	provider, err := llm.NewProvider(ctx, cfg.LLM, repo, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.protection = newProtection(cfg.Protection, m, repo, logger)
	rt.gateway = gateway.New(provider, rt.protection, cfg.Gateway,
		gateway.WithMetrics(m),
		gateway.WithLogger(logger))
	return rt, nil
}

// evaluator returns a remote client when server is set, otherwise an
// in-process gateway. The returned close func is never nil.
func evaluator(ctx context.Context, cfg *config.Config, server string, logger *slog.Logger) (client.Evaluator, func() error, error) {
	if server != "" {
		return client.New(server, client.WithLogger(logger)), func() error { return nil }, nil
	}
	rt, err := buildRuntime(ctx, cfg, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	return client.NewLocal(rt.gateway, logger), rt.Close, nil
}
