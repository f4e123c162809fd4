package domain

// Payload type discriminators used on the websocket and the signal bus.
const (
	PayloadQuote     = "quote"
	PayloadOrderBook = "orderbook"
)

// QuoteChangeEvent is returned by the state store after a quote is appended.
type QuoteChangeEvent struct {
	MarketID  string
	OutcomeID string
	TS        float64
	Mid       float64
	Bid       float64
	Ask       float64
}

// QuotePayload is the outbound wire shape of a QuoteChangeEvent.
type QuotePayload struct {
	Type      string  `json:"type"`
	MarketID  string  `json:"market_id"`
	OutcomeID string  `json:"outcome_id"`
	TS        float64 `json:"ts"`
	Mid       float64 `json:"mid"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
}

// Payload returns the wire representation of the event.
func (e QuoteChangeEvent) Payload() QuotePayload {
	return QuotePayload{
		Type:      PayloadQuote,
		MarketID:  e.MarketID,
		OutcomeID: e.OutcomeID,
		TS:        e.TS,
		Mid:       e.Mid,
		Bid:       e.Bid,
		Ask:       e.Ask,
	}
}

// Point returns the history sample carried by the event.
func (e QuoteChangeEvent) Point() QuotePoint {
	return QuotePoint{TS: e.TS, Mid: e.Mid, Bid: e.Bid, Ask: e.Ask}
}

// OrderBookChangeEvent is returned by the state store after a book snapshot
// replaces the previous one.
type OrderBookChangeEvent struct {
	MarketID  string
	OutcomeID string
	TS        float64
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
}

// OrderBookPayload is the outbound wire shape of an OrderBookChangeEvent.
type OrderBookPayload struct {
	Type      string           `json:"type"`
	MarketID  string           `json:"market_id"`
	OutcomeID string           `json:"outcome_id"`
	TS        float64          `json:"ts"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
}

// Payload returns the wire representation of the event. Nil sides are
// encoded as empty arrays.
func (e OrderBookChangeEvent) Payload() OrderBookPayload {
	bids, asks := e.Bids, e.Asks
	if bids == nil {
		bids = []OrderBookLevel{}
	}
	if asks == nil {
		asks = []OrderBookLevel{}
	}
	return OrderBookPayload{
		Type:      PayloadOrderBook,
		MarketID:  e.MarketID,
		OutcomeID: e.OutcomeID,
		TS:        e.TS,
		Bids:      bids,
		Asks:      asks,
	}
}

// Book returns the snapshot carried by the event.
func (e OrderBookChangeEvent) Book() OrderBook {
	return OrderBook{
		MarketID:  e.MarketID,
		OutcomeID: e.OutcomeID,
		TS:        e.TS,
		Bids:      e.Bids,
		Asks:      e.Asks,
	}
}
