package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/marketstream/internal/domain"
	"github.com/alanyoungcy/marketstream/internal/feed"
	"github.com/alanyoungcy/marketstream/internal/state"
	"github.com/alanyoungcy/marketstream/internal/subscription"
)

// StoreStats is the part of the state store the status page reads.
type StoreStats interface {
	Stats() state.Stats
}

// RegistryStats is the part of the subscription registry the status page
// reads.
type RegistryStats interface {
	Stats() subscription.Stats
}

// FeedStats is the part of the fan-out dispatcher the status page reads.
type FeedStats interface {
	Stats() feed.Stats
}

// StatusHandler reports cache, subscription and fan-out counters.
type StatusHandler struct {
	store     StoreStats
	registry  RegistryStats
	feed      FeedStats
	sources   []domain.Source
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler. fanout may be nil.
func NewStatusHandler(store StoreStats, registry RegistryStats, fanout FeedStats, sources []domain.Source, startedAt time.Time) *StatusHandler {
	return &StatusHandler{
		store:     store,
		registry:  registry,
		feed:      fanout,
		sources:   sources,
		startedAt: startedAt,
	}
}

type statusResponse struct {
	Sources       []domain.Source    `json:"sources"`
	Store         state.Stats        `json:"store"`
	Subscriptions subscription.Stats `json:"subscriptions"`
	Feed          *feed.Stats        `json:"feed,omitempty"`
	StartedAt     string             `json:"started_at"`
	UptimeSeconds int64              `json:"uptime_seconds"`
}

// GetStatus responds with the current counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Sources:       h.sources,
		Store:         h.store.Stats(),
		Subscriptions: h.registry.Stats(),
		StartedAt:     h.startedAt.UTC().Format(time.RFC3339),
		UptimeSeconds: max(0, int64(time.Since(h.startedAt).Seconds())),
	}
	if resp.Sources == nil {
		resp.Sources = []domain.Source{}
	}
	if h.feed != nil {
		st := h.feed.Stats()
		resp.Feed = &st
	}
	writeJSON(w, http.StatusOK, resp)
}
