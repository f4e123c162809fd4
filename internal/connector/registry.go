package connector

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketstream/internal/domain"
	"github.com/alanyoungcy/marketstream/internal/subscription"
)

// MarketLookup resolves cached markets.
type MarketLookup interface {
	GetMarket(id string) (domain.Market, bool)
}

// Set holds the connector for each supported source.
type Set struct {
	bySource map[domain.Source]Connector
	order    []domain.Source
	logger   *slog.Logger
}

// NewSet registers connectors. A later connector for the same source
// replaces the earlier one.
func NewSet(logger *slog.Logger, connectors ...Connector) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Set{
		bySource: make(map[domain.Source]Connector),
		logger:   logger.With(slog.String("component", "connectors")),
	}
	for _, c := range connectors {
		if _, ok := s.bySource[c.Source()]; !ok {
			s.order = append(s.order, c.Source())
		}
		s.bySource[c.Source()] = c
	}
	return s
}

// Get returns the connector for src.
func (s *Set) Get(src domain.Source) (Connector, bool) {
	c, ok := s.bySource[src]
	return c, ok
}

// Sources lists registered sources in registration order.
func (s *Set) Sources() []domain.Source {
	return append([]domain.Source(nil), s.order...)
}

// Spawner returns the poller factory used by the subscription registry. It
// fails for markets that are not cached or whose source has no connector.
// Pollers stop when ctx is cancelled.
func (s *Set) Spawner(ctx context.Context, markets MarketLookup) subscription.Spawner {
	return func(marketID string) (subscription.Handle, bool) {
		m, ok := markets.GetMarket(marketID)
		if !ok {
			return nil, false
		}
		c, ok := s.bySource[m.Source]
		if !ok {
			s.logger.Warn("no connector for source",
				slog.String("market_id", marketID),
				slog.String("source", string(m.Source)),
			)
			return nil, false
		}
		return c.SpawnPoller(ctx, marketID), true
	}
}

// Search queries the given sources concurrently, or every source when none
// is given, and merges the results in source order.
func (s *Set) Search(ctx context.Context, query string, sources ...domain.Source) []domain.Market {
	if len(sources) == 0 {
		sources = s.order
	}

	var targets []Connector
	for _, src := range sources {
		if c, ok := s.bySource[src]; ok {
			targets = append(targets, c)
		}
	}

	results := make([][]domain.Market, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range targets {
		g.Go(func() error {
			results[i] = c.Search(gctx, query)
			return nil
		})
	}
	_ = g.Wait()

	col := NewCollector()
	for _, rs := range results {
		for _, m := range rs {
			if !col.Add(m) {
				return col.Markets()
			}
		}
	}
	return col.Markets()
}

// LoadInitial seeds the store from every connector concurrently and returns
// the per-source counts.
func (s *Set) LoadInitial(ctx context.Context) map[domain.Source]int {
	counts := make([]int, len(s.order))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.order {
		c := s.bySource[src]
		g.Go(func() error {
			counts[i] = c.LoadInitial(gctx)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[domain.Source]int, len(s.order))
	for i, src := range s.order {
		out[src] = counts[i]
		s.logger.Info("initial markets loaded",
			slog.String("source", string(src)),
			slog.Int("count", counts[i]),
		)
	}
	return out
}
