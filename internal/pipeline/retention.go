package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketstream/internal/pipeline/cron"
)

// Pruner deletes archived rows older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Retention trims the tick archive on a cron schedule.
type Retention struct {
	pruner Pruner
	keep   time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewRetention creates a Retention that keeps the last keep of ticks.
func NewRetention(pruner Pruner, keep time.Duration, logger *slog.Logger) *Retention {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{
		pruner: pruner,
		keep:   keep,
		logger: logger.With(slog.String("component", "retention")),
		now:    time.Now,
	}
}

// Run prunes once.
func (r *Retention) Run(ctx context.Context) error {
	cutoff := r.now().UTC().Add(-r.keep)
	n, err := r.pruner.Prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: prune before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	r.logger.Info("tick archive pruned", slog.Time("cutoff", cutoff), slog.Int64("deleted", n))
	return nil
}

// RunCron runs Run each time sched fires until ctx is cancelled. A failed
// run is logged and the schedule continues.
func (r *Retention) RunCron(ctx context.Context, sched cron.Schedule) error {
	r.logger.Info("retention scheduled", slog.String("cron", sched.String()))

	for {
		next, ok := sched.Next(r.now().UTC())
		if !ok {
			return fmt.Errorf("pipeline: cron %q never fires", sched.String())
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := r.Run(ctx); err != nil {
				r.logger.Error("retention run failed", slog.String("error", err.Error()))
			}
		}
	}
}
