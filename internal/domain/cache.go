package domain

import (
	"context"
	"time"
)

// QuoteCache mirrors the latest quote per (market, outcome) for consumers
// outside this process. The process only writes; readers live elsewhere.
type QuoteCache interface {
	SetQuote(ctx context.Context, marketID, outcomeID string, q QuotePoint) error
}

// OrderbookCache mirrors the latest book snapshot per (market, outcome).
type OrderbookCache interface {
	SetSnapshot(ctx context.Context, book OrderBook) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus publishes change events to other processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
