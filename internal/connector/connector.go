// Package connector defines the exchange connector contract and the helpers
// shared by its implementations.
package connector

import (
	"context"
	"time"

	"github.com/alanyoungcy/marketstream/internal/domain"
	"github.com/alanyoungcy/marketstream/internal/poller"
)

// MaxSearchResults caps the markets returned by any search.
const MaxSearchResults = 100

// RequestPause separates successive upstream requests in bulk and
// paginated operations and between per-token book fetches.
const RequestPause = 100 * time.Millisecond

// Connector ingests one exchange into the state store. Implementations never
// return upstream failures to callers; they log them and degrade to partial
// or empty results.
type Connector interface {
	Source() domain.Source
	// Search finds markets matching query, upserting every result into the
	// store.
	Search(ctx context.Context, query string) []domain.Market
	// Normalize maps one raw upstream market record. false means the record
	// was dropped.
	Normalize(raw []byte) (domain.Market, bool)
	// PollOrderBook fetches the books of a cached market once.
	PollOrderBook(ctx context.Context, marketID string)
	// SpawnPoller polls marketID on the connector's interval until the
	// returned task is cancelled.
	SpawnPoller(ctx context.Context, marketID string) *poller.Task
	// LoadInitial seeds the store with a bounded set of open markets and
	// returns how many were stored.
	LoadInitial(ctx context.Context) int
}

// Store is the subset of the state store connectors write to.
type Store interface {
	GetMarket(id string) (domain.Market, bool)
	GetAllMarkets() []domain.Market
	UpdateMarket(m domain.Market)
	UpdateQuote(marketID, outcomeID string, mid, bid, ask, ts float64) domain.QuoteChangeEvent
	UpdateOrderBook(marketID, outcomeID string, bids, asks []domain.OrderBookLevel, ts float64) domain.OrderBookChangeEvent
}

// Publisher receives every change event a connector produces.
type Publisher interface {
	PublishQuote(ev domain.QuoteChangeEvent)
	PublishOrderBook(ev domain.OrderBookChangeEvent)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) PublishQuote(domain.QuoteChangeEvent)         {}
func (NopPublisher) PublishOrderBook(domain.OrderBookChangeEvent) {}

// Pause waits d or until ctx is done. It reports whether the caller should
// continue.
func Pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
