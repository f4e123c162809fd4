package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// FlexFloat unmarshals from a JSON number or a numeric string. Gamma and the
// CLOB encode prices, sizes and volumes either way depending on endpoint.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APITag is a Gamma tag attached to markets and events.
type APITag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// APIEvent represents an event as returned by the Polymarket Gamma API.
// An event groups one or more related markets, kept raw and decoded one at
// a time by the caller.
type APIEvent struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Slug     string            `json:"slug"`
	Category string            `json:"category"`
	Active   flexBool          `json:"active"`
	Closed   flexBool          `json:"closed"`
	Tags     []APITag          `json:"tags"`
	Markets  []json.RawMessage `json:"markets"`
}

// APIMarket represents a market as returned by the Gamma API. ClobTokenIDs,
// Outcomes and OutcomePrices are JSON arrays encoded as strings.
type APIMarket struct {
	ID            string     `json:"id"`
	ConditionID   string     `json:"conditionId"`
	Question      string     `json:"question"`
	Description   string     `json:"description"`
	Category      string     `json:"category"`
	Slug          string     `json:"slug"`
	Image         string     `json:"image"`
	Active        flexBool   `json:"active"`
	Closed        flexBool   `json:"closed"`
	ClobTokenIDs  string     `json:"clobTokenIds"`
	Outcomes      string     `json:"outcomes"`
	OutcomePrices string     `json:"outcomePrices"`
	Volume24hr    FlexFloat  `json:"volume24hr"`
	Liquidity     FlexFloat  `json:"liquidity"`
	Tags          []APITag   `json:"tags"`
	Events        []APIEvent `json:"events"`
}

// IsActive reports whether the market is open for trading.
func (m *APIMarket) IsActive() bool {
	return bool(m.Active) && !bool(m.Closed)
}

// TokenIDs decodes the clobTokenIds string. A malformed value yields nil.
func (m *APIMarket) TokenIDs() []string {
	return decodeStringArray(m.ClobTokenIDs)
}

// OutcomeNames decodes the outcomes string.
func (m *APIMarket) OutcomeNames() []string {
	return decodeStringArray(m.Outcomes)
}

// Prices decodes the outcomePrices string. Unparseable entries become 0.
func (m *APIMarket) Prices() []float64 {
	raw := decodeStringArray(m.OutcomePrices)
	out := make([]float64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err == nil {
			out[i] = v
		}
	}
	return out
}

// AllTags returns the market's own tags, falling back to the first event's.
func (m *APIMarket) AllTags() []APITag {
	if len(m.Tags) > 0 {
		return m.Tags
	}
	if len(m.Events) > 0 {
		return m.Events[0].Tags
	}
	return nil
}

func decodeStringArray(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// APISearchResponse is the body of GET /public-search.
type APISearchResponse struct {
	Events []json.RawMessage `json:"events"`
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIBookLevel is one price level in a CLOB book.
type APIBookLevel struct {
	Price FlexFloat `json:"price"`
	Size  FlexFloat `json:"size"`
}

// APIBook is the body of GET /book.
type APIBook struct {
	Market    string         `json:"market"`
	AssetID   string         `json:"asset_id"`
	Timestamp string         `json:"timestamp"`
	Bids      []APIBookLevel `json:"bids"`
	Asks      []APIBookLevel `json:"asks"`
}
