// Package state holds the in-memory market catalog, quote history and latest
// order books shared by connectors and the API.
package state

import (
	"sync"
	"time"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

// DefaultHistoryCapacity is the number of quote points retained per
// (market, outcome).
const DefaultHistoryCapacity = 3600

// Stats summarizes the store contents.
type Stats struct {
	Markets     int `json:"markets"`
	QuoteSeries int `json:"quote_series"`
	QuotePoints int `json:"quote_points"`
	OrderBooks  int `json:"orderbooks"`
}

type seriesKey struct {
	market  string
	outcome string
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	markets  map[string]domain.Market
	order    []string
	history  map[seriesKey]*ring
	books    map[seriesKey]domain.OrderBook
	capacity int
	nowFunc  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for default timestamps and
// history ranges.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFunc = now }
}

// WithHistoryCapacity overrides the per-series ring buffer size.
func WithHistoryCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		markets:  make(map[string]domain.Market),
		history:  make(map[seriesKey]*ring),
		books:    make(map[seriesKey]domain.OrderBook),
		capacity: DefaultHistoryCapacity,
		nowFunc:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) now() float64 {
	return domain.EpochSeconds(s.nowFunc())
}

// GetMarket returns a copy of the cached market.
func (s *Store) GetMarket(id string) (domain.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, false
	}
	return m.Clone(), true
}

// GetAllMarkets returns copies of every cached market in first-insertion
// order.
func (s *Store) GetAllMarkets() []domain.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Market, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.markets[id].Clone())
	}
	return out
}

// UpdateMarket inserts or fully replaces the market keyed by MarketID.
func (s *Store) UpdateMarket(m domain.Market) {
	if m.MarketID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.MarketID]; !ok {
		s.order = append(s.order, m.MarketID)
	}
	s.markets[m.MarketID] = m.Clone()
}

// UpdateQuote appends a quote point to the (market, outcome) history and
// refreshes the cached outcome price. A zero ts means now.
func (s *Store) UpdateQuote(marketID, outcomeID string, mid, bid, ask, ts float64) domain.QuoteChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts == 0 {
		ts = s.now()
	}
	key := seriesKey{marketID, outcomeID}
	r, ok := s.history[key]
	if !ok {
		r = newRing(s.capacity)
		s.history[key] = r
	}
	r.push(domain.QuotePoint{TS: ts, Mid: mid, Bid: bid, Ask: ask})

	if m, ok := s.markets[marketID]; ok {
		for i := range m.Outcomes {
			if m.Outcomes[i].OutcomeID == outcomeID {
				m.Outcomes[i].Price = mid
			}
		}
	}

	return domain.QuoteChangeEvent{
		MarketID:  marketID,
		OutcomeID: outcomeID,
		TS:        ts,
		Mid:       mid,
		Bid:       bid,
		Ask:       ask,
	}
}

// UpdateOrderBook replaces the latest snapshot for (market, outcome).
func (s *Store) UpdateOrderBook(marketID, outcomeID string, bids, asks []domain.OrderBookLevel, ts float64) domain.OrderBookChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts == 0 {
		ts = s.now()
	}
	bids = append([]domain.OrderBookLevel{}, bids...)
	asks = append([]domain.OrderBookLevel{}, asks...)
	s.books[seriesKey{marketID, outcomeID}] = domain.OrderBook{
		MarketID:  marketID,
		OutcomeID: outcomeID,
		TS:        ts,
		Bids:      bids,
		Asks:      asks,
	}
	return domain.OrderBookChangeEvent{
		MarketID:  marketID,
		OutcomeID: outcomeID,
		TS:        ts,
		Bids:      bids,
		Asks:      asks,
	}
}

// History returns points for (market, outcome) oldest first. When
// rangeSeconds > 0 only points with ts >= now-rangeSeconds are returned.
func (s *Store) History(marketID, outcomeID string, rangeSeconds float64) []domain.QuotePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.history[seriesKey{marketID, outcomeID}]
	if !ok {
		return []domain.QuotePoint{}
	}
	from := 0.0
	if rangeSeconds > 0 {
		from = s.now() - rangeSeconds
	}
	return r.since(from)
}

// OrderBook returns the latest snapshot for (market, outcome).
func (s *Store) OrderBook(marketID, outcomeID string) (domain.OrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[seriesKey{marketID, outcomeID}]
	if !ok {
		return domain.OrderBook{}, false
	}
	b.Bids = append([]domain.OrderBookLevel{}, b.Bids...)
	b.Asks = append([]domain.OrderBookLevel{}, b.Asks...)
	return b, true
}

// Stats returns current counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Markets:     len(s.markets),
		QuoteSeries: len(s.history),
		OrderBooks:  len(s.books),
	}
	for _, r := range s.history {
		st.QuotePoints += r.len()
	}
	return st
}
