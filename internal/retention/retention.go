// Package retention prunes old request and circuit events on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Config controls event retention.
type Config struct {
	// Schedule is a standard five-field cron expression. Empty disables
	// scheduled pruning. Default: "0 3 * * *" (daily at 3 AM).
	Schedule string `yaml:"schedule"`

	// MaxAge is how long events are kept. Default: 30 days.
	MaxAge time.Duration `yaml:"max_age"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Schedule: "0 3 * * *",
		MaxAge:   30 * 24 * time.Hour,
	}
}

// Validate checks the schedule and age.
func (c Config) Validate() error {
	if c.Schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", c.Schedule, err)
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("retention max_age must be positive")
	}
	return nil
}

// Pruner deletes events older than a cutoff. *store.Events implements it.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler runs a Pruner on a cron schedule.
type Scheduler struct {
	pruner Pruner
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a scheduler. A nil logger means slog.Default().
func NewScheduler(pruner Pruner, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pruner: pruner,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("component", "retention"),
		cron:   cron.New(),
	}
}

// Start schedules pruning and stops it when ctx is done. An empty schedule
// is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Schedule == "" {
		s.logger.Info("retention schedule not configured, skipping")
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("schedule pruning %q: %w", s.cfg.Schedule, err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("retention scheduler started", "schedule", s.cfg.Schedule, "max_age", s.cfg.MaxAge)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Prune deletes events older than MaxAge once and returns how many went.
func (s *Scheduler) Prune(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.MaxAge)
	n, err := s.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return n, nil
}

func (s *Scheduler) run(ctx context.Context) {
	n, err := s.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	s.logger.Info("scheduled pruning completed", "deleted", n)
}

// Stop halts the scheduler and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("retention scheduler stopped")
}

// Running reports whether the scheduler is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled prune, or the zero time when none is
// scheduled.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
