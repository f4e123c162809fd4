// Package kalshi implements the Kalshi connector for binary yes/no
// contracts.
package kalshi

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/marketstream/internal/connector"
	"github.com/alanyoungcy/marketstream/internal/domain"
	ks "github.com/alanyoungcy/marketstream/internal/platform/kalshi"
	"github.com/alanyoungcy/marketstream/internal/poller"
	"github.com/alanyoungcy/marketstream/internal/taxonomy"
)

const (
	// PollInterval is the book refresh period per subscribed market.
	PollInterval = 2 * time.Second

	searchPageSize   = 200
	searchMaxPages   = 5
	initialEvents    = 30
	initialKeep      = 15
	perEventFetch    = 10
	perEventKeep     = 5
	multivariatePref = "KXMV"
)

// API is the subset of the Kalshi client the connector uses.
type API interface {
	GetEvents(ctx context.Context, q ks.EventsQuery) ([]ks.KalshiEvent, string, error)
	GetEventMarkets(ctx context.Context, eventTicker string, limit int) ([]json.RawMessage, error)
	GetMarket(ctx context.Context, ticker string) (ks.KalshiMarket, error)
	GetOrderbook(ctx context.Context, ticker string) (ks.KalshiOrderbook, error)
}

// Connector ingests Kalshi markets and books.
type Connector struct {
	api          API
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

// New creates a Kalshi connector.
func New(api API, store connector.Store, logger *slog.Logger, opts ...Option) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connector{
		api:          api,
		store:        store,
		pub:          connector.NopPublisher{},
		logger:       logger.With(slog.String("component", "kalshi")),
		pollInterval: PollInterval,
		pause:        connector.RequestPause,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Source implements connector.Connector.
func (c *Connector) Source() domain.Source { return domain.SourceKalshi }

// Normalize decodes one Kalshi market record without event context.
func (c *Connector) Normalize(raw []byte) (domain.Market, bool) {
	km, ok := c.decode(raw)
	if !ok {
		return domain.Market{}, false
	}
	return normalize(&km, nil)
}

func (c *Connector) decode(raw []byte) (ks.KalshiMarket, bool) {
	var km ks.KalshiMarket
	if err := json.Unmarshal(raw, &km); err != nil {
		c.logger.Warn("decode market", slog.String("error", err.Error()))
		return ks.KalshiMarket{}, false
	}
	return km, true
}

// mapStatus returns the canonical status and whether the market is tradable.
func mapStatus(status string) (domain.MarketStatus, bool) {
	switch strings.ToLower(status) {
	case "settled", "finalized", "determined", "deactivated":
		return "", false
	case "closed":
		return domain.MarketStatusClosed, true
	default:
		// open, active, initialized and an absent status
		return domain.MarketStatusActive, true
	}
}

// yesPrice converts the cent bid/ask to a probability: the midpoint when both
// sides exist, else whichever side exists, else 0.
func yesPrice(bidCents, askCents float64) float64 {
	bid, ask := bidCents/100, askCents/100
	switch {
	case bid > 0 && ask > 0:
		return (bid + ask) / 2
	case bid > 0:
		return bid
	default:
		return ask
	}
}

func normalize(km *ks.KalshiMarket, ev *ks.KalshiEvent) (domain.Market, bool) {
	ticker := km.Ticker
	if ticker == "" || strings.HasPrefix(ticker, multivariatePref) {
		return domain.Market{}, false
	}
	status, ok := mapStatus(km.Status)
	if !ok {
		return domain.Market{}, false
	}

	yes := yesPrice(km.YesBid, km.YesAsk)
	no := 0.0
	if yes > 0 {
		no = 1 - yes
	}
	yesName, noName := km.YesSubTitle, km.NoSubTitle
	if yesName == "" {
		yesName = "Yes"
	}
	if noName == "" {
		noName = "No"
	}

	m := domain.Market{
		MarketID:    ticker,
		Title:       km.Title,
		Description: km.RulesPrimary,
		Ticker:      ticker,
		Source:      domain.SourceKalshi,
		SourceID:    ticker,
		Status:      status,
		Volume24h:   km.Volume24H,
		Liquidity:   km.Liquidity / 100,
		Tags:        []string{},
		Outcomes: []domain.Outcome{
			{OutcomeID: ticker + "_yes", Name: yesName, Price: yes},
			{OutcomeID: ticker + "_no", Name: noName, Price: no},
		},
	}
	if m.Title == "" {
		m.Title = "Unknown Market"
	}

	category := km.Category
	if ev != nil {
		subtitle := km.YesSubTitle
		if subtitle == "" {
			subtitle = km.Subtitle
		}
		if subtitle != "" {
			eventTitle := ev.Title
			if eventTitle == "" {
				eventTitle = m.Title
			}
			m.Title = eventTitle + " - " + subtitle
		}
		category = ev.Category
	}
	m.Category = category
	m.Sector = taxonomy.SectorFromKalshiCategory(category)
	if category != "" {
		m.Tags = []string{category}
	}
	return m, true
}

// PollOrderBook fetches the book of a cached Kalshi market. Kalshi publishes
// bids for both sides; NO bids become YES asks at the complement price. Only
// the yes outcome receives a book and a quote.
func (c *Connector) PollOrderBook(ctx context.Context, marketID string) {
	m, ok := c.store.GetMarket(marketID)
	if !ok || m.Source != domain.SourceKalshi || len(m.Outcomes) == 0 {
		return
	}

	ob, err := c.api.GetOrderbook(ctx, m.SourceID)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Debug("book unavailable",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	bids, asks := BookLevels(ob)
	connector.ApplyBook(c.store, c.pub, marketID, m.Outcomes[0].OutcomeID, bids, asks)
}

// BookLevels converts a Kalshi book into YES bids and asks in probability
// units.
func BookLevels(ob ks.KalshiOrderbook) (bids, asks []domain.OrderBookLevel) {
	bids = make([]domain.OrderBookLevel, 0, len(ob.Yes))
	for _, l := range ob.YesLevels() {
		bids = append(bids, domain.OrderBookLevel{P: l.Price / 100, S: l.Quantity})
	}
	asks = make([]domain.OrderBookLevel, 0, len(ob.No))
	for _, l := range ob.NoLevels() {
		asks = append(asks, domain.OrderBookLevel{P: 1 - l.Price/100, S: l.Quantity})
	}
	return bids, asks
}

// SpawnPoller implements connector.Connector.
func (c *Connector) SpawnPoller(ctx context.Context, marketID string) *poller.Task {
	return poller.Start(ctx, c.pollInterval, func(ctx context.Context) {
		c.PollOrderBook(ctx, marketID)
	})
}

// Search looks in the cache, then tries the query as an exact ticker, then
// scans open events page by page.
func (c *Connector) Search(ctx context.Context, query string) []domain.Market {
	query = strings.TrimSpace(query)
	col := connector.NewCollector()
	if query == "" {
		return col.Markets()
	}

	for _, m := range connector.CachedMatches(c.store, domain.SourceKalshi, query) {
		if !col.Add(m) {
			return col.Markets()
		}
	}

	if !strings.ContainsAny(query, " \t") {
		km, err := c.api.GetMarket(ctx, strings.ToUpper(query))
		if err != nil {
			c.logger.Debug("ticker lookup failed", slog.String("query", query), slog.String("error", err.Error()))
		} else if m, ok := normalize(&km, nil); ok {
			c.store.UpdateMarket(m)
			if !col.Add(m) {
				return col.Markets()
			}
		}
		if !connector.Pause(ctx, c.pause) {
			return col.Markets()
		}
	}

	q := strings.ToLower(query)
	cursor := ""
	for page := 0; page < searchMaxPages; page++ {
		if page > 0 && !connector.Pause(ctx, c.pause) {
			break
		}
		events, next, err := c.api.GetEvents(ctx, ks.EventsQuery{
			Limit:             searchPageSize,
			Cursor:            cursor,
			Status:            "open",
			WithNestedMarkets: true,
		})
		if err != nil {
			c.logger.Warn("event scan failed",
				slog.String("query", query),
				slog.Int("page", page),
				slog.String("error", err.Error()),
			)
			break
		}

		for i := range events {
			ev := &events[i]
			eventHit := strings.Contains(strings.ToLower(ev.Title), q)
			for _, raw := range ev.Markets {
				km, ok := c.decode(raw)
				if !ok || (!eventHit && !marketMatches(&km, q)) {
					continue
				}
				m, ok := normalize(&km, ev)
				if !ok {
					continue
				}
				c.store.UpdateMarket(m)
				if !col.Add(m) {
					return col.Markets()
				}
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}
	return col.Markets()
}

func marketMatches(km *ks.KalshiMarket, q string) bool {
	for _, s := range []string{km.Title, km.Subtitle, km.YesSubTitle, km.Ticker} {
		if s != "" && strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

// LoadInitial stores the first markets of the first events Kalshi returns.
func (c *Connector) LoadInitial(ctx context.Context) int {
	events, _, err := c.api.GetEvents(ctx, ks.EventsQuery{Limit: initialEvents})
	if err != nil {
		c.logger.Error("load initial events", slog.String("error", err.Error()))
		return 0
	}
	if len(events) > initialKeep {
		events = events[:initialKeep]
	}

	count := 0
	for i := range events {
		ev := &events[i]
		if ev.EventTicker == "" {
			continue
		}
		if i > 0 && !connector.Pause(ctx, c.pause) {
			break
		}

		records, err := c.api.GetEventMarkets(ctx, ev.EventTicker, perEventFetch)
		if err != nil {
			c.logger.Warn("load event markets",
				slog.String("event", ev.EventTicker),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(records) > perEventKeep {
			records = records[:perEventKeep]
		}
		for _, raw := range records {
			km, ok := c.decode(raw)
			if !ok {
				continue
			}
			m, ok := normalize(&km, ev)
			if !ok {
				continue
			}
			c.store.UpdateMarket(m)
			count++
		}
	}
	return count
}
