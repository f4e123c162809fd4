package domain

// OrderBookLevel is a single price/size entry. Prices are probabilities.
type OrderBookLevel struct {
	P float64 `json:"p"`
	S float64 `json:"s"`
}

// OrderBook is the latest full snapshot for one (market, outcome). Bids are
// sorted by price descending, asks ascending.
type OrderBook struct {
	MarketID  string           `json:"market_id"`
	OutcomeID string           `json:"outcome_id"`
	TS        float64          `json:"ts"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
}

// BestBid returns the top of the bid side.
func (b OrderBook) BestBid() (float64, bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].P, true
}

// BestAsk returns the top of the ask side.
func (b OrderBook) BestAsk() (float64, bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].P, true
}
