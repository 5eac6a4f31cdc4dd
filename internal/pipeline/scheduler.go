package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler runs every variant on a fixed interval, one after another,
// with each variant's default window.
type Scheduler struct {
	interval time.Duration
	exec     Executor
	variants []*Variant
}

// NewScheduler creates a scheduler for variants. Range variants without a
// default window are skipped at run time since they cannot pick dates.
func NewScheduler(interval time.Duration, exec Executor, variants []*Variant) *Scheduler {
	return &Scheduler{
		interval: interval,
		exec:     exec,
		variants: variants,
	}
}

// Start runs once immediately, then on every tick until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting pipeline scheduler",
		"interval", s.interval,
		"variants", len(s.variants),
	)

	s.runAll(ctx)

	for {
		select {
		case <-ticker.C:
			s.runAll(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")
			return nil
		}
	}
}

// runAll runs each variant in name order. A failing variant is logged and
// does not stop the others.
func (s *Scheduler) runAll(ctx context.Context) int {
	ok := 0
	for _, v := range s.variants {
		if ctx.Err() != nil {
			slog.Info("[Scheduler] Cycle interrupted by context cancellation", "completed", ok)
			return ok
		}
		if v.RequiresWindow() && !v.DefaultWindow.hasDates() {
			slog.Debug("[Scheduler] Skipping variant without default window", "variant", v.Name)
			continue
		}

		_, err := s.exec.Run(ctx, v, RunParams{})
		switch {
		case errors.Is(err, ErrRunInProgress):
			slog.Info("[Scheduler] Variant already running, will retry next tick", "variant", v.Name)
		case err != nil:
			slog.Error("[Scheduler] Variant run failed", "variant", v.Name, "error", err)
		default:
			ok++
		}
	}
	return ok
}
