// Package polymarket implements the Polymarket connector on top of the Gamma
// discovery API and the CLOB book API.
package polymarket

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/alanyoungcy/marketstream/internal/connector"
	"github.com/alanyoungcy/marketstream/internal/domain"
	pm "github.com/alanyoungcy/marketstream/internal/platform/polymarket"
	"github.com/alanyoungcy/marketstream/internal/poller"
	"github.com/alanyoungcy/marketstream/internal/taxonomy"
)

const (
	// PollInterval is the book refresh period per subscribed market.
	PollInterval = time.Second

	initialFetchLimit = 50
	initialKeep       = 30
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)+$`)

// MarketAPI is the subset of the Gamma client the connector uses.
type MarketAPI interface {
	ListOpenMarkets(ctx context.Context, limit int) ([]json.RawMessage, error)
	GetMarketsByConditionID(ctx context.Context, conditionID string) ([]json.RawMessage, error)
	GetMarketsBySlug(ctx context.Context, slug string) ([]json.RawMessage, error)
	PublicSearch(ctx context.Context, query string) ([]pm.APIEvent, error)
}

// BookAPI is the subset of the CLOB client the connector uses.
type BookAPI interface {
	GetBook(ctx context.Context, tokenID string) (pm.APIBook, error)
}

// Connector ingests Polymarket markets and books.
type Connector struct {
	markets      MarketAPI
	books        BookAPI
	store        connector.Store
	pub          connector.Publisher
	logger       *slog.Logger
	pollInterval time.Duration
	pause        time.Duration
}

// Option configures a Connector.
type Option func(*Connector)

// WithPublisher sets the receiver of change events.
func WithPublisher(p connector.Publisher) Option {
	return func(c *Connector) {
		if p != nil {
			c.pub = p
		}
	}
}

// New creates a Polymarket connector.
func New(markets MarketAPI, books BookAPI, store connector.Store, logger *slog.Logger, opts ...Option) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connector{
		markets:      markets,
		books:        books,
		store:        store,
		pub:          connector.NopPublisher{},
		logger:       logger.With(slog.String("component", "polymarket")),
		pollInterval: PollInterval,
		pause:        connector.RequestPause,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Source implements connector.Connector.
func (c *Connector) Source() domain.Source { return domain.SourcePolymarket }

// Normalize decodes one Gamma market record.
func (c *Connector) Normalize(raw []byte) (domain.Market, bool) {
	am, ok := c.decode(raw)
	if !ok {
		return domain.Market{}, false
	}
	return normalize(&am)
}

func (c *Connector) decode(raw []byte) (pm.APIMarket, bool) {
	var am pm.APIMarket
	if err := json.Unmarshal(raw, &am); err != nil {
		c.logger.Warn("decode market", slog.String("error", err.Error()))
		return pm.APIMarket{}, false
	}
	return am, true
}

func normalize(am *pm.APIMarket) (domain.Market, bool) {
	if am.ConditionID == "" {
		return domain.Market{}, false
	}

	m := domain.Market{
		MarketID:    am.ConditionID,
		Title:       am.Question,
		Description: am.Description,
		Category:    am.Category,
		Source:      domain.SourcePolymarket,
		SourceID:    am.Slug,
		ImageURL:    am.Image,
		Volume24h:   float64(am.Volume24hr),
		Liquidity:   float64(am.Liquidity),
		Status:      domain.MarketStatusClosed,
	}
	if m.Title == "" {
		m.Title = "Unknown Market"
	}
	if m.SourceID == "" {
		m.SourceID = am.ConditionID
	}
	if am.IsActive() {
		m.Status = domain.MarketStatusActive
	}

	tags := make([]taxonomy.Tag, 0, len(am.AllTags()))
	for _, t := range am.AllTags() {
		tags = append(tags, taxonomy.Tag{Label: t.Label, Slug: t.Slug})
	}
	m.Tags = taxonomy.TagLabels(tags)
	m.Sector = taxonomy.SectorFromPolymarketTags(tags)

	tokens := am.TokenIDs()
	names := am.OutcomeNames()
	prices := am.Prices()
	for i, tok := range tokens {
		o := domain.Outcome{OutcomeID: tok, Name: "Outcome " + strconv.Itoa(i)}
		if i < len(names) {
			o.Name = names[i]
		}
		if i < len(prices) {
			o.Price = prices[i]
		}
		m.Outcomes = append(m.Outcomes, o)
	}
	if len(m.Outcomes) == 0 {
		m.Outcomes = []domain.Outcome{
			{OutcomeID: am.ConditionID + "_yes", Name: "Yes"},
			{OutcomeID: am.ConditionID + "_no", Name: "No"},
		}
	}
	return m, true
}

// ValidTokenID reports whether id is a CLOB token id, a decimal uint256.
// Synthetic ids assigned to markets without tokens fail this check.
func ValidTokenID(id string) bool {
	if id == "" || strings.IndexFunc(id, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return false
	}
	_, ok := math.ParseBig256(id)
	return ok
}

// IsConditionID reports whether q is a 0x-prefixed 32-byte hex string.
func IsConditionID(q string) bool {
	b, err := hexutil.Decode(q)
	return err == nil && len(b) == 32
}

// PollOrderBook fetches the book of every real token of a cached Polymarket
// market.
func (c *Connector) PollOrderBook(ctx context.Context, marketID string) {
	m, ok := c.store.GetMarket(marketID)
	if !ok || m.Source != domain.SourcePolymarket {
		return
	}

	first := true
	for _, o := range m.Outcomes {
		if !ValidTokenID(o.OutcomeID) {
			continue
		}
		if !first && !connector.Pause(ctx, c.pause) {
			return
		}
		first = false

		book, err := c.books.GetBook(ctx, o.OutcomeID)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("book unavailable",
					slog.String("market_id", marketID),
					slog.String("token_id", o.OutcomeID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		connector.ApplyBook(c.store, c.pub, marketID, o.OutcomeID, levels(book.Bids), levels(book.Asks))
	}
}

func levels(in []pm.APIBookLevel) []domain.OrderBookLevel {
	out := make([]domain.OrderBookLevel, 0, len(in))
	for _, l := range in {
		out = append(out, domain.OrderBookLevel{P: float64(l.Price), S: float64(l.Size)})
	}
	return out
}

// SpawnPoller implements connector.Connector.
func (c *Connector) SpawnPoller(ctx context.Context, marketID string) *poller.Task {
	return poller.Start(ctx, c.pollInterval, func(ctx context.Context) {
		c.PollOrderBook(ctx, marketID)
	})
}

// Search looks in the cache, then tries an exact condition id or slug
// lookup, then falls back to Gamma's public search.
func (c *Connector) Search(ctx context.Context, query string) []domain.Market {
	query = strings.TrimSpace(query)
	col := connector.NewCollector()
	if query == "" {
		return col.Markets()
	}

	for _, m := range connector.CachedMatches(c.store, domain.SourcePolymarket, query) {
		if !col.Add(m) {
			return col.Markets()
		}
	}

	var exact []json.RawMessage
	var err error
	lookedUp := true
	switch {
	case IsConditionID(query):
		exact, err = c.markets.GetMarketsByConditionID(ctx, query)
	case slugPattern.MatchString(query):
		exact, err = c.markets.GetMarketsBySlug(ctx, query)
	default:
		lookedUp = false
	}
	if err != nil {
		c.logger.Warn("exact lookup failed", slog.String("query", query), slog.String("error", err.Error()))
	}
	if !c.addAll(col, exact, nil) {
		return col.Markets()
	}

	if lookedUp && !connector.Pause(ctx, c.pause) {
		return col.Markets()
	}
	events, err := c.markets.PublicSearch(ctx, query)
	if err != nil {
		c.logger.Warn("public search failed", slog.String("query", query), slog.String("error", err.Error()))
		return col.Markets()
	}
	for i := range events {
		if !c.addAll(col, events[i].Markets, &events[i]) {
			break
		}
	}
	return col.Markets()
}

// addAll decodes, normalizes, stores and collects market records one at a
// time, skipping any record that fails. Markets found under an event inherit
// its title, tags and category when they carry none. It reports whether the
// collector can take more.
func (c *Connector) addAll(col *connector.Collector, records []json.RawMessage, ev *pm.APIEvent) bool {
	for _, raw := range records {
		am, ok := c.decode(raw)
		if !ok {
			continue
		}
		if ev != nil {
			if len(am.Events) == 0 {
				am.Events = []pm.APIEvent{{Title: ev.Title, Tags: ev.Tags}}
			}
			if am.Category == "" {
				am.Category = ev.Category
			}
		}
		m, ok := normalize(&am)
		if !ok {
			continue
		}
		c.store.UpdateMarket(m)
		if !col.Add(m) {
			return false
		}
	}
	return true
}

// LoadInitial stores the first open markets Gamma returns.
func (c *Connector) LoadInitial(ctx context.Context) int {
	records, err := c.markets.ListOpenMarkets(ctx, initialFetchLimit)
	if err != nil {
		c.logger.Error("load initial markets", slog.String("error", err.Error()))
		return 0
	}
	if len(records) > initialKeep {
		records = records[:initialKeep]
	}

	count := 0
	for _, raw := range records {
		m, ok := c.Normalize(raw)
		if !ok {
			continue
		}
		c.store.UpdateMarket(m)
		count++
	}
	return count
}
