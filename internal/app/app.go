// Package app wires the market stream together: state store, subscription
// registry, exchange connectors, fan-out, optional backends, the export
// pipeline and the HTTP server. It owns startup order and shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketstream/internal/config"
	"github.com/alanyoungcy/marketstream/internal/connector"
	kalshiconn "github.com/alanyoungcy/marketstream/internal/connector/kalshi"
	pmconn "github.com/alanyoungcy/marketstream/internal/connector/polymarket"
	"github.com/alanyoungcy/marketstream/internal/crypto"
	"github.com/alanyoungcy/marketstream/internal/domain"
	"github.com/alanyoungcy/marketstream/internal/feed"
	"github.com/alanyoungcy/marketstream/internal/pipeline"
	"github.com/alanyoungcy/marketstream/internal/pipeline/cron"
	"github.com/alanyoungcy/marketstream/internal/platform/kalshi"
	"github.com/alanyoungcy/marketstream/internal/platform/polymarket"
	"github.com/alanyoungcy/marketstream/internal/server"
	"github.com/alanyoungcy/marketstream/internal/server/handler"
	"github.com/alanyoungcy/marketstream/internal/server/ws"
	"github.com/alanyoungcy/marketstream/internal/state"
	"github.com/alanyoungcy/marketstream/internal/subscription"
)

// App is the root application object. It owns the configuration, logger, and
// cleanup functions that run in reverse order on Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// services is everything Run starts.
type services struct {
	store      *state.Store
	registry   *subscription.Registry
	dispatcher *feed.Dispatcher
	connectors *connector.Set
	pipeline   *pipeline.Orchestrator
	server     *server.Server
}

// Run wires the backends, builds the services, loads the initial catalog and
// serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	infra, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, gctx := errgroup.WithContext(ctx)

	svc, err := a.build(gctx, infra)
	if err != nil {
		return err
	}

	g.Go(func() error { return svc.dispatcher.Run(gctx) })
	if svc.pipeline.Enabled() {
		g.Go(func() error { return svc.pipeline.Run(gctx) })
	}

	if a.cfg.Bootstrap.Enabled {
		a.bootstrap(gctx, svc.connectors)
	}

	g.Go(svc.server.Start)
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		err := svc.server.Shutdown(sctx)
		svc.registry.Close()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// build assembles the in-process services. Construction order matters: the
// registry exists before the dispatcher that broadcasts through it, and the
// connector set exists before the registry is given its spawner.
func (a *App) build(ctx context.Context, infra *Infrastructure) (*services, error) {
	store := state.New()
	registry := subscription.NewRegistry(nil, a.logger)

	dispatcher := feed.NewDispatcher(registry, feed.Config{
		Quotes:     infra.Quotes,
		Books:      infra.Books,
		Bus:        infra.Bus,
		Ticks:      infra.Ticks,
		SourceOf:   sourceOf(store),
		BatchSize:  a.cfg.Archive.BatchSize,
		FlushEvery: a.cfg.Archive.FlushInterval.Duration,
	}, a.logger)

	conns, err := a.connectors(store, dispatcher)
	if err != nil {
		return nil, err
	}
	set := connector.NewSet(a.logger, conns...)
	registry.SetSpawner(set.Spawner(ctx, store))

	var exporter *pipeline.Exporter
	if infra.Blob != nil {
		exporter = pipeline.NewExporter(store, infra.Blob, a.logger)
	}
	var retention *pipeline.Retention
	var schedule cron.Schedule
	if infra.Pruner != nil {
		schedule, err = cron.Parse(a.cfg.Archive.RetentionCron)
		if err != nil {
			return nil, fmt.Errorf("app: retention: %w", err)
		}
		keep := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		retention = pipeline.NewRetention(infra.Pruner, keep, a.logger)
	}
	orch := pipeline.NewOrchestrator(exporter, a.cfg.Export.Interval.Duration, retention, schedule, a.logger)

	startedAt := time.Now()
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKeys:         a.cfg.Server.APIKeys,
		SearchRateLimit: a.cfg.Server.SearchRateLimit,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(),
		Status:  handler.NewStatusHandler(store, registry, dispatcher, set.Sources(), startedAt),
		Markets: handler.NewMarketHandler(store, a.logger),
		Search:  handler.NewSearchHandler(set, 0, a.logger),
	}, ws.NewHub(registry, a.logger), infra.Limiter, a.logger)

	return &services{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		connectors: set,
		pipeline:   orch,
		server:     srv,
	}, nil
}

// connectors builds one connector per enabled exchange.
func (a *App) connectors(store *state.Store, pub connector.Publisher) ([]connector.Connector, error) {
	var out []connector.Connector

	if a.cfg.Polymarket.Enabled {
		gamma := polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost)
		clob := polymarket.NewClobClient(a.cfg.Polymarket.ClobHost)
		out = append(out, pmconn.New(gamma, clob, store, a.logger, pmconn.WithPublisher(pub)))
	}

	if a.cfg.Kalshi.Enabled {
		client := kalshi.NewClient(a.cfg.Kalshi.BaseURL, a.cfg.Kalshi.ApiKey)
		key := crypto.KeyConfig{
			PEMPath:          a.cfg.Kalshi.RsaPrivateKeyPath,
			EncryptedKeyPath: a.cfg.Kalshi.EncryptedKeyPath,
			KeyPassword:      a.cfg.Kalshi.KeyPassword,
		}
		if a.cfg.Kalshi.ApiKey != "" && key.Configured() {
			pemBytes, err := crypto.LoadPEM(key)
			if err != nil {
				return nil, fmt.Errorf("app: kalshi key: %w", err)
			}
			if err := client.SetRSAPrivateKey(pemBytes); err != nil {
				return nil, fmt.Errorf("app: kalshi key: %w", err)
			}
		}
		a.logger.Info("kalshi client ready", slog.Bool("signed", client.Signed()))
		out = append(out, kalshiconn.New(client, store, a.logger, kalshiconn.WithPublisher(pub)))
	}

	if len(out) == 0 {
		return nil, errors.New("app: no exchange enabled")
	}
	return out, nil
}

// bootstrap seeds the catalog before the server starts accepting clients.
func (a *App) bootstrap(ctx context.Context, set *connector.Set) {
	bctx, cancel := context.WithTimeout(ctx, a.cfg.Bootstrap.Timeout.Duration)
	defer cancel()

	start := time.Now()
	counts := set.LoadInitial(bctx)
	attrs := []any{slog.Duration("duration", time.Since(start))}
	for src, n := range counts {
		attrs = append(attrs, slog.Int(string(src), n))
	}
	a.logger.InfoContext(ctx, "initial catalog loaded", attrs...)
}

func sourceOf(store *state.Store) func(string) domain.Source {
	return func(marketID string) domain.Source {
		if m, ok := store.GetMarket(marketID); ok {
			return m.Source
		}
		return ""
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
