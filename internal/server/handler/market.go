package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/marketstream/internal/domain"
	"github.com/alanyoungcy/marketstream/internal/matching"
	"github.com/alanyoungcy/marketstream/internal/search"
)

// MarketReader is the read-only query surface of the state store.
type MarketReader interface {
	GetMarket(id string) (domain.Market, bool)
	GetAllMarkets() []domain.Market
	History(marketID, outcomeID string, rangeSeconds float64) []domain.QuotePoint
	OrderBook(marketID, outcomeID string) (domain.OrderBook, bool)
}

// MarketHandler serves catalog, history and book endpoints from the cache.
type MarketHandler struct {
	markets MarketReader
	logger  *slog.Logger
}

func NewMarketHandler(markets MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logHandler(logger, "market"),
	}
}

// ListMarkets ranks, filters and pages the cached catalog.
// GET /api/markets?q=&source=&sector=&tags=&limit=&offset=
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	src, err := querySource(r)
	if err != nil {
		writeError(w, statusFor(err), "unknown source")
		return
	}
	q := r.URL.Query()
	res := search.Run(h.markets.GetAllMarkets(), search.Query{
		Text:   q.Get("q"),
		Source: src,
		Sector: q.Get("sector"),
		Tags:   queryList(r, "tags"),
		Limit:  queryInt(r, "limit", search.DefaultLimit),
		Offset: queryInt(r, "offset", 0),
	})
	writeJSON(w, http.StatusOK, res)
}

// GetMarket returns a single cached market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type historyResponse struct {
	MarketID  string              `json:"market_id"`
	OutcomeID string              `json:"outcome_id"`
	Points    []domain.QuotePoint `json:"points"`
}

// GetHistory returns the retained quote points for one outcome, oldest
// first. range is in seconds; omitted or zero means the whole buffer.
// GET /api/markets/{id}/history?outcome_id=&range=
func (h *MarketHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	outcomeID, ok := resolveOutcome(w, r, m)
	if !ok {
		return
	}

	var rangeSeconds float64
	if v := r.URL.Query().Get("range"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeError(w, http.StatusBadRequest, "range must be a non-negative number of seconds")
			return
		}
		rangeSeconds = f
	}

	points := h.markets.History(m.MarketID, outcomeID, rangeSeconds)
	if points == nil {
		points = []domain.QuotePoint{}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		MarketID:  m.MarketID,
		OutcomeID: outcomeID,
		Points:    points,
	})
}

// GetOrderBook returns the latest snapshot for one outcome.
// GET /api/markets/{id}/orderbook?outcome_id=
func (h *MarketHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	outcomeID, ok := resolveOutcome(w, r, m)
	if !ok {
		return
	}
	book, ok := h.markets.OrderBook(m.MarketID, outcomeID)
	if !ok {
		writeError(w, http.StatusNotFound, "no order book yet")
		return
	}
	if book.Bids == nil {
		book.Bids = []domain.OrderBookLevel{}
	}
	if book.Asks == nil {
		book.Asks = []domain.OrderBookLevel{}
	}
	writeJSON(w, http.StatusOK, book)
}

type relatedResponse struct {
	Market domain.Market `json:"market"`
	Score  float64       `json:"score"`
}

// GetRelated returns the closest market on another exchange by title.
// GET /api/markets/{id}/related
func (h *MarketHandler) GetRelated(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	match, found := matching.Related(m, h.markets.GetAllMarkets())
	if !found {
		writeError(w, http.StatusNotFound, "no related market")
		return
	}
	h.logger.DebugContext(r.Context(), "handler: related market",
		slog.String("market_id", m.MarketID),
		slog.String("related_id", match.Market.MarketID),
		slog.Float64("score", match.Score),
	)
	writeJSON(w, http.StatusOK, relatedResponse{Market: match.Market, Score: match.Score})
}

func (h *MarketHandler) lookup(w http.ResponseWriter, r *http.Request) (domain.Market, bool) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return domain.Market{}, false
	}
	m, ok := h.markets.GetMarket(id)
	if !ok {
		writeError(w, http.StatusNotFound, "market not found")
		return domain.Market{}, false
	}
	return m, true
}

// resolveOutcome picks outcome_id from the query or the market's first
// outcome.
func resolveOutcome(w http.ResponseWriter, r *http.Request, m domain.Market) (string, bool) {
	if id := r.URL.Query().Get("outcome_id"); id != "" {
		if _, ok := m.Outcome(id); !ok {
			writeError(w, http.StatusNotFound, "outcome not found")
			return "", false
		}
		return id, true
	}
	if len(m.Outcomes) == 0 {
		writeError(w, http.StatusNotFound, "market has no outcomes")
		return "", false
	}
	return m.Outcomes[0].OutcomeID, true
}
