package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

const defaultSearchTimeout = 20 * time.Second

// Searcher fans a query out to the exchange connectors. Results are upserted
// into the cache as a side effect.
type Searcher interface {
	Search(ctx context.Context, query string, sources ...domain.Source) []domain.Market
}

// SearchHandler runs upstream searches. Concurrent identical queries share
// one upstream round.
type SearchHandler struct {
	searcher Searcher
	group    singleflight.Group
	timeout  time.Duration
	logger   *slog.Logger
}

// NewSearchHandler creates a SearchHandler. A zero timeout selects the
// default.
func NewSearchHandler(searcher Searcher, timeout time.Duration, logger *slog.Logger) *SearchHandler {
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}
	return &SearchHandler{
		searcher: searcher,
		timeout:  timeout,
		logger:   logHandler(logger, "search"),
	}
}

type searchResponse struct {
	Query   string          `json:"query"`
	Source  domain.Source   `json:"source,omitempty"`
	Count   int             `json:"count"`
	Shared  bool            `json:"shared"`
	Markets []domain.Market `json:"markets"`
}

// Search queries the exchanges directly.
// GET /api/search?q=&source=
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	src, err := querySource(r)
	if err != nil {
		writeError(w, statusFor(err), "unknown source")
		return
	}

	key := string(src) + "\x00" + strings.ToLower(query)
	v, _, shared := h.group.Do(key, func() (any, error) {
		// Detached so one caller going away does not cut the others short.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
		defer cancel()
		start := time.Now()
		var sources []domain.Source
		if src != "" {
			sources = []domain.Source{src}
		}
		markets := h.searcher.Search(ctx, query, sources...)
		h.logger.InfoContext(r.Context(), "handler: upstream search",
			slog.String("query", query),
			slog.String("source", string(src)),
			slog.Int("results", len(markets)),
			slog.Duration("duration", time.Since(start)),
		)
		return markets, nil
	})

	markets, _ := v.([]domain.Market)
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:   query,
		Source:  src,
		Count:   len(markets),
		Shared:  shared,
		Markets: markets,
	})
}
