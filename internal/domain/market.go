package domain

import "strings"

// Source identifies the upstream exchange a market was normalized from.
type Source string

const (
	SourcePolymarket Source = "polymarket"
	SourceKalshi     Source = "kalshi"
)

// Sources lists every supported exchange in a stable order.
var Sources = []Source{SourcePolymarket, SourceKalshi}

// Valid reports whether s is one of the supported exchanges.
func (s Source) Valid() bool {
	switch s {
	case SourcePolymarket, SourceKalshi:
		return true
	}
	return false
}

// ParseSource maps a case-insensitive name to a Source.
func ParseSource(name string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", ErrUnknownSource
	}
	return s, nil
}

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive MarketStatus = "active"
	MarketStatusClosed MarketStatus = "closed"
)

// Outcome is one tradable side of a market. Price is a probability in [0,1].
type Outcome struct {
	OutcomeID string  `json:"outcome_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
}

// Market is a single tradable question on one exchange. MarketID is the only
// cache key; re-normalizing the same upstream record yields the same MarketID.
type Market struct {
	MarketID    string       `json:"market_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category,omitempty"`
	Sector      string       `json:"sector,omitempty"`
	Tags        []string     `json:"tags"`
	Ticker      string       `json:"ticker,omitempty"`
	Source      Source       `json:"source"`
	SourceID    string       `json:"source_id"`
	Outcomes    []Outcome    `json:"outcomes"`
	Status      MarketStatus `json:"status"`
	ImageURL    string       `json:"image_url,omitempty"`
	Volume24h   float64      `json:"volume_24h,omitempty"`
	Liquidity   float64      `json:"liquidity,omitempty"`
}

// Outcome returns the outcome with the given id.
func (m *Market) Outcome(outcomeID string) (Outcome, bool) {
	for _, o := range m.Outcomes {
		if o.OutcomeID == outcomeID {
			return o, true
		}
	}
	return Outcome{}, false
}

// Clone returns a deep copy so callers never share slices with the store.
func (m Market) Clone() Market {
	out := m
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.Outcomes != nil {
		out.Outcomes = append([]Outcome(nil), m.Outcomes...)
	}
	return out
}
