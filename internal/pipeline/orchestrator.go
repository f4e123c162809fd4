// Package pipeline runs the background archival jobs: periodic quote-history
// export to object storage and retention of the tick archive.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketstream/internal/pipeline/cron"
)

const defaultExportInterval = 15 * time.Minute

// Orchestrator runs the configured jobs. Either job may be nil.
type Orchestrator struct {
	exporter       *Exporter
	exportInterval time.Duration
	retention      *Retention
	schedule       cron.Schedule
	logger         *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	exporter *Exporter,
	exportInterval time.Duration,
	retention *Retention,
	schedule cron.Schedule,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if exportInterval <= 0 {
		exportInterval = defaultExportInterval
	}
	return &Orchestrator{
		exporter:       exporter,
		exportInterval: exportInterval,
		retention:      retention,
		schedule:       schedule,
		logger:         logger.With(slog.String("component", "pipeline")),
	}
}

// Enabled reports whether any job is configured.
func (o *Orchestrator) Enabled() bool {
	return o.exporter != nil || o.retention != nil
}

// Run blocks until ctx is cancelled or the exporter fails. Retention stopping
// on its own is logged and leaves the exporter running. On shutdown the
// exporter makes one final upload so points gathered since the last tick are
// not lost.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.Enabled() {
		return nil
	}
	o.logger.Info("pipeline starting",
		slog.Bool("export", o.exporter != nil),
		slog.Duration("export_interval", o.exportInterval),
		slog.Bool("retention", o.retention != nil),
		slog.String("retention_cron", o.schedule.String()),
	)

	g, gctx := errgroup.WithContext(ctx)

	if o.exporter != nil {
		g.Go(func() error {
			err := o.exporter.RunLoop(gctx, o.exportInterval)
			if gctx.Err() == nil {
				return fmt.Errorf("exporter: %w", err)
			}
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if _, err := o.exporter.RunOnce(fctx); err != nil {
				o.logger.Error("final history export failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if o.retention != nil {
		g.Go(func() error {
			err := o.retention.RunCron(gctx, o.schedule)
			if gctx.Err() == nil {
				o.logger.Error("retention stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline stopped")
	return nil
}
