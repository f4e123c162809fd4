package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/marketstream/internal/blob/s3"
	"github.com/alanyoungcy/marketstream/internal/cache/redis"
	"github.com/alanyoungcy/marketstream/internal/config"
	"github.com/alanyoungcy/marketstream/internal/domain"
	"github.com/alanyoungcy/marketstream/internal/pipeline"
	"github.com/alanyoungcy/marketstream/internal/store/postgres"
)

// Infrastructure bundles the optional external backends. A nil field means
// the backend is disabled and the feature it serves is skipped.
type Infrastructure struct {
	// Redis
	Quotes  domain.QuoteCache
	Books   domain.OrderbookCache
	Bus     domain.SignalBus
	Limiter domain.RateLimiter

	// PostgreSQL
	Ticks  domain.TickSink
	Pruner pipeline.Pruner

	// S3
	Blob domain.BlobWriter
}

// Wire connects every enabled backend and returns them with a cleanup
// function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Infrastructure, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	infra := &Infrastructure{}

	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
			MirrorTTL:  cfg.Redis.MirrorTTL.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		if cfg.Redis.MirrorQuotes {
			infra.Quotes = redis.NewQuoteCache(rc)
		}
		if cfg.Redis.MirrorBooks {
			infra.Books = redis.NewOrderbookCache(rc)
		}
		if cfg.Redis.PublishSignals {
			infra.Bus = redis.NewSignalBus(rc)
		}
		if cfg.Server.SearchRateLimit > 0 {
			infra.Limiter = redis.NewRateLimiter(rc)
		}
		logger.InfoContext(ctx, "wire: redis connected", slog.String("addr", cfg.Redis.Addr))
	}

	if cfg.Archive.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Archive.DSN,
			Host:     cfg.Archive.Host,
			Port:     cfg.Archive.Port,
			Database: cfg.Archive.Database,
			User:     cfg.Archive.User,
			Password: cfg.Archive.Password,
			SSLMode:  cfg.Archive.SSLMode,
			MaxConns: cfg.Archive.PoolMaxConns,
			MinConns: cfg.Archive.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pg.Close)

		if cfg.Archive.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		ticks := postgres.NewTickStore(pg.Pool())
		infra.Ticks = ticks
		if cfg.Archive.RetentionDays > 0 {
			infra.Pruner = ticks
		}
		logger.InfoContext(ctx, "wire: tick archive connected")
	}

	if cfg.Export.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Export.Endpoint,
			Region:         cfg.Export.Region,
			Bucket:         cfg.Export.Bucket,
			AccessKey:      cfg.Export.AccessKey,
			SecretKey:      cfg.Export.SecretKey,
			UseSSL:         cfg.Export.UseSSL,
			ForcePathStyle: cfg.Export.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = sc.Health(hctx)
		cancel()
		if err != nil {
			// Exports retry on every tick, so an unreachable bucket at
			// startup is not fatal.
			logger.WarnContext(ctx, "wire: s3 bucket not reachable",
				slog.String("bucket", sc.Bucket()),
				slog.String("error", err.Error()),
			)
		}
		infra.Blob = s3blob.NewWriter(sc, cfg.Export.Prefix)
	}

	return infra, cleanup, nil
}
