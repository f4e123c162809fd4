package connector

import (
	"strings"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

// CachedMatches returns cached markets of src whose title, source id, market
// id or ticker contains query, ignoring case.
func CachedMatches(store Store, src domain.Source, query string) []domain.Market {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []domain.Market
	for _, m := range store.GetAllMarkets() {
		if m.Source != src {
			continue
		}
		if strings.Contains(strings.ToLower(m.Title), q) ||
			strings.Contains(strings.ToLower(m.SourceID), q) ||
			strings.Contains(strings.ToLower(m.MarketID), q) ||
			strings.Contains(strings.ToLower(m.Ticker), q) {
			out = append(out, m)
		}
	}
	return out
}

// Collector accumulates search results, dropping duplicate market ids and
// stopping at MaxSearchResults.
type Collector struct {
	seen    map[string]struct{}
	markets []domain.Market
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{seen: make(map[string]struct{})}
}

// Add appends m unless it is a duplicate. It reports whether the collector
// can take more.
func (c *Collector) Add(m domain.Market) bool {
	if c.Full() {
		return false
	}
	if _, ok := c.seen[m.MarketID]; !ok {
		c.seen[m.MarketID] = struct{}{}
		c.markets = append(c.markets, m)
	}
	return !c.Full()
}

// Full reports whether MaxSearchResults markets have been collected.
func (c *Collector) Full() bool {
	return len(c.markets) >= MaxSearchResults
}

// Markets returns the collected markets in insertion order.
func (c *Collector) Markets() []domain.Market {
	if c.markets == nil {
		return []domain.Market{}
	}
	return c.markets
}
