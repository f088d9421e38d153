package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakePruner struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakePruner) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_PruneUsesMaxAge(t *testing.T) {
	p := &fakePruner{n: 7}
	s := NewScheduler(p, Config{Schedule: "0 3 * * *", MaxAge: 48 * time.Hour}, quietLogger())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	n, err := s.Prune(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7 deleted, got %d", n)
	}
	if want := now.Add(-48 * time.Hour); !p.cutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", p.cutoff, want)
	}
}

func TestScheduler_PruneError(t *testing.T) {
	p := &fakePruner{err: errors.New("database is locked")}
	s := NewScheduler(p, DefaultConfig(), quietLogger())

	if _, err := s.Prune(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestScheduler_StartAndStop(t *testing.T) {
	s := NewScheduler(&fakePruner{}, DefaultConfig(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Running() {
		t.Fatal("expected scheduler to run")
	}
	if s.NextRun().IsZero() {
		t.Fatal("expected a next run time")
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for s.Running() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not stop after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScheduler_EmptyScheduleIsNoop(t *testing.T) {
	s := NewScheduler(&fakePruner{}, Config{MaxAge: time.Hour}, quietLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Running() {
		t.Fatal("scheduler should not run without a schedule")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"disabled", Config{}, false},
		{"bad cron", Config{Schedule: "every day", MaxAge: time.Hour}, true},
		{"no max age", Config{Schedule: "0 3 * * *"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
