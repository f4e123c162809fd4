package connector

import (
	"sort"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

// SortBook orders bids by price descending and asks ascending, in place.
func SortBook(bids, asks []domain.OrderBookLevel) {
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].P > bids[j].P })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].P < asks[j].P })
}

// DeriveQuote computes mid, bid and ask from sorted book sides. With one side
// empty, all three equal the best price of the other side. ok is false when
// both sides are empty.
func DeriveQuote(bids, asks []domain.OrderBookLevel) (mid, bid, ask float64, ok bool) {
	switch {
	case len(bids) > 0 && len(asks) > 0:
		bid, ask = bids[0].P, asks[0].P
		return (bid + ask) / 2, bid, ask, true
	case len(bids) > 0:
		p := bids[0].P
		return p, p, p, true
	case len(asks) > 0:
		p := asks[0].P
		return p, p, p, true
	}
	return 0, 0, 0, false
}

// ApplyBook sorts the sides, stores the snapshot and derived quote, and hands
// both change events to pub.
func ApplyBook(store Store, pub Publisher, marketID, outcomeID string, bids, asks []domain.OrderBookLevel) {
	SortBook(bids, asks)
	pub.PublishOrderBook(store.UpdateOrderBook(marketID, outcomeID, bids, asks, 0))

	if mid, bid, ask, ok := DeriveQuote(bids, asks); ok {
		pub.PublishQuote(store.UpdateQuote(marketID, outcomeID, mid, bid, ask, 0))
	}
}
