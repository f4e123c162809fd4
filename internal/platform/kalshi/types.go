package kalshi

import "encoding/json"

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// KalshiMarket represents a market as returned by the Kalshi REST API.
// Prices are in cents. Counts are decoded as float64 because the API has
// sent them both as integers and as fractional values.
type KalshiMarket struct {
	Ticker       string  `json:"ticker"`
	EventTicker  string  `json:"event_ticker"`
	Title        string  `json:"title"`
	Subtitle     string  `json:"subtitle"`
	YesSubTitle  string  `json:"yes_sub_title"`
	NoSubTitle   string  `json:"no_sub_title"`
	Status       string  `json:"status"` // "initialized", "open", "active", "closed", "settled", ...
	YesBid       float64 `json:"yes_bid"`
	YesAsk       float64 `json:"yes_ask"`
	LastPrice    float64 `json:"last_price"`
	Volume       float64 `json:"volume"`
	Volume24H    float64 `json:"volume_24h"`
	Liquidity    float64 `json:"liquidity"`
	OpenInterest float64 `json:"open_interest"`
	RulesPrimary string  `json:"rules_primary"`
	Category     string  `json:"category"`
	CloseTime    string  `json:"close_time"`
}

// KalshiEvent groups related markets. Markets is populated only when
// requested with with_nested_markets=true and holds raw records, decoded one
// at a time by the caller.
type KalshiEvent struct {
	EventTicker  string            `json:"event_ticker"`
	SeriesTicker string            `json:"series_ticker"`
	Title        string            `json:"title"`
	SubTitle     string            `json:"sub_title"`
	Category     string            `json:"category"`
	Markets      []json.RawMessage `json:"markets"`
}

// KalshiOrderbook holds both sides of a market's book as [price_cents,
// quantity] pairs. Both arrays are bids: "yes" for YES, "no" for NO.
type KalshiOrderbook struct {
	Yes [][]float64 `json:"yes"`
	No  [][]float64 `json:"no"`
}

// KalshiPriceLevel is a single price+quantity entry in the Kalshi orderbook.
type KalshiPriceLevel struct {
	Price    float64 // in cents (1-99)
	Quantity float64 // number of contracts
}

// YesLevels returns the well-formed YES bid levels.
func (o KalshiOrderbook) YesLevels() []KalshiPriceLevel { return toLevels(o.Yes) }

// NoLevels returns the well-formed NO bid levels.
func (o KalshiOrderbook) NoLevels() []KalshiPriceLevel { return toLevels(o.No) }

func toLevels(raw [][]float64) []KalshiPriceLevel {
	out := make([]KalshiPriceLevel, 0, len(raw))
	for _, l := range raw {
		if len(l) < 2 {
			continue
		}
		out = append(out, KalshiPriceLevel{Price: l[0], Quantity: l[1]})
	}
	return out
}

// KalshiErrorResponse represents a Kalshi API error response.
type KalshiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type marketsResponse struct {
	Markets []json.RawMessage `json:"markets"`
	Cursor  string            `json:"cursor"`
}

type marketResponse struct {
	Market KalshiMarket `json:"market"`
}

type eventsResponse struct {
	Events []json.RawMessage `json:"events"`
	Cursor string            `json:"cursor"`
}

type orderbookResponse struct {
	Orderbook KalshiOrderbook `json:"orderbook"`
}
