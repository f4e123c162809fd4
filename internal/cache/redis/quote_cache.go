package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each
// (market, outcome) is stored at "{prefix}:quote:{market}:{outcome}" with
// fields ts, mid, bid, ask and optionally volume.
type QuoteCache struct {
	c *Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{c: c}
}

func (qc *QuoteCache) quoteKey(marketID, outcomeID string) string {
	return qc.c.key("quote", marketID, outcomeID)
}

// SetQuote stores the latest quote and refreshes the key's TTL.
func (qc *QuoteCache) SetQuote(ctx context.Context, marketID, outcomeID string, q domain.QuotePoint) error {
	key := qc.quoteKey(marketID, outcomeID)

	pipe := qc.c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, quoteFields(q))
	pipe.Expire(ctx, key, qc.c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", marketID, outcomeID, err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func quoteFields(q domain.QuotePoint) map[string]interface{} {
	fields := map[string]interface{}{
		"ts":  formatFloat(q.TS),
		"mid": formatFloat(q.Mid),
		"bid": formatFloat(q.Bid),
		"ask": formatFloat(q.Ask),
	}
	if q.Volume != nil {
		fields["volume"] = formatFloat(*q.Volume)
	}
	return fields
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
