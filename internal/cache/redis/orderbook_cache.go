package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

// OrderbookCache implements domain.OrderbookCache. Snapshots are replaced
// wholesale on every poll, so each one is stored as a single JSON string at
// "{prefix}:book:{market}:{outcome}".
type OrderbookCache struct {
	c *Client
}

// NewOrderbookCache creates an OrderbookCache backed by the given Client.
func NewOrderbookCache(c *Client) *OrderbookCache {
	return &OrderbookCache{c: c}
}

func (oc *OrderbookCache) bookKey(marketID, outcomeID string) string {
	return oc.c.key("book", marketID, outcomeID)
}

// SetSnapshot replaces the mirrored snapshot for book's (market, outcome).
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, book domain.OrderBook) error {
	data, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("redis: encode orderbook %s/%s: %w", book.MarketID, book.OutcomeID, err)
	}
	key := oc.bookKey(book.MarketID, book.OutcomeID)
	if err := oc.c.rdb.Set(ctx, key, data, oc.c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set orderbook %s/%s: %w", book.MarketID, book.OutcomeID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OrderbookCache = (*OrderbookCache)(nil)
