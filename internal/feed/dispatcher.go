// Package feed fans connector change events out to websocket subscribers and
// the optional external mirrors.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

const (
	defaultQueueSize  = 4096
	defaultBatchSize  = 500
	defaultFlushEvery = 5 * time.Second
	mirrorTimeout     = 2 * time.Second
)

// Broadcaster delivers a payload to every subscriber of a market.
type Broadcaster interface {
	Broadcast(marketID string, payload []byte) int
}

// Config selects the optional mirrors. Nil fields are skipped.
type Config struct {
	Quotes     domain.QuoteCache
	Books      domain.OrderbookCache
	Bus        domain.SignalBus
	Ticks      domain.TickSink
	SourceOf   func(marketID string) domain.Source
	QueueSize  int
	BatchSize  int
	FlushEvery time.Duration
}

type mirrorJob struct {
	quote   *domain.QuoteChangeEvent
	book    *domain.OrderBookChangeEvent
	payload []byte
}

// Stats counts dispatcher activity.
type Stats struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"mirror_dropped"`
	Ticks     int64 `json:"ticks_archived"`
}

// Dispatcher implements connector.Publisher. Broadcast happens on the
// caller's goroutine so per-market ordering follows poll order; mirrors run
// on a single background worker fed by a bounded queue and are dropped when
// the queue is full.
type Dispatcher struct {
	broadcaster Broadcaster
	cfg         Config
	queue       chan mirrorJob
	logger      *slog.Logger

	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
	ticks     atomic.Int64
}

// NewDispatcher creates a Dispatcher. Call Run to start the mirror worker.
func NewDispatcher(b Broadcaster, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = defaultFlushEvery
	}
	return &Dispatcher{
		broadcaster: b,
		cfg:         cfg,
		queue:       make(chan mirrorJob, cfg.QueueSize),
		logger:      logger.With(slog.String("component", "feed")),
	}
}

func (d *Dispatcher) mirrored() bool {
	return d.cfg.Quotes != nil || d.cfg.Books != nil || d.cfg.Bus != nil || d.cfg.Ticks != nil
}

// PublishQuote broadcasts a quote change and queues it for mirroring.
func (d *Dispatcher) PublishQuote(ev domain.QuoteChangeEvent) {
	payload, err := json.Marshal(ev.Payload())
	if err != nil {
		d.logger.Error("marshal quote", slog.String("error", err.Error()))
		return
	}
	d.broadcast(ev.MarketID, payload)
	d.enqueue(mirrorJob{quote: &ev, payload: payload})
}

// PublishOrderBook broadcasts a book change and queues it for mirroring.
func (d *Dispatcher) PublishOrderBook(ev domain.OrderBookChangeEvent) {
	payload, err := json.Marshal(ev.Payload())
	if err != nil {
		d.logger.Error("marshal orderbook", slog.String("error", err.Error()))
		return
	}
	d.broadcast(ev.MarketID, payload)
	d.enqueue(mirrorJob{book: &ev, payload: payload})
}

func (d *Dispatcher) broadcast(marketID string, payload []byte) {
	d.published.Add(1)
	if d.broadcaster == nil {
		return
	}
	d.delivered.Add(int64(d.broadcaster.Broadcast(marketID, payload)))
}

func (d *Dispatcher) enqueue(job mirrorJob) {
	if !d.mirrored() {
		return
	}
	select {
	case d.queue <- job:
	default:
		if n := d.dropped.Add(1); n%1000 == 1 {
			d.logger.Warn("mirror queue full, dropping events", slog.Int64("dropped_total", n))
		}
	}
}

// Stats returns activity counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Published: d.published.Load(),
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Ticks:     d.ticks.Load(),
	}
}

// Run drains the mirror queue until ctx is cancelled, then flushes pending
// ticks.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("feed dispatcher started", slog.Bool("mirrors", d.mirrored()))
	defer d.logger.Info("feed dispatcher stopped")

	ticker := time.NewTicker(d.cfg.FlushEvery)
	defer ticker.Stop()

	var pending []domain.QuoteTick
	flush := func() {
		if len(pending) == 0 || d.cfg.Ticks == nil {
			pending = pending[:0]
			return
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
		defer cancel()
		n, err := d.cfg.Ticks.WriteTicks(fctx, pending)
		if err != nil {
			d.logger.Warn("archive ticks",
				slog.Int("count", len(pending)),
				slog.String("error", err.Error()),
			)
		}
		d.ticks.Add(n)
		pending = pending[:0]
	}
	defer flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			flush()
		case job := <-d.queue:
			if tick, ok := d.mirror(ctx, job); ok && d.cfg.Ticks != nil {
				pending = append(pending, tick)
				if len(pending) >= d.cfg.BatchSize {
					flush()
				}
			}
		}
	}
}

// mirror writes one event to the caches and the bus. For quotes it also
// returns the tick to archive.
func (d *Dispatcher) mirror(ctx context.Context, job mirrorJob) (domain.QuoteTick, bool) {
	mctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	var marketID, kind string
	switch {
	case job.quote != nil:
		ev := job.quote
		marketID, kind = ev.MarketID, domain.PayloadQuote
		if d.cfg.Quotes != nil {
			if err := d.cfg.Quotes.SetQuote(mctx, ev.MarketID, ev.OutcomeID, ev.Point()); err != nil {
				d.logger.Debug("mirror quote", slog.String("market_id", ev.MarketID), slog.String("error", err.Error()))
			}
		}
	case job.book != nil:
		ev := job.book
		marketID, kind = ev.MarketID, domain.PayloadOrderBook
		if d.cfg.Books != nil {
			if err := d.cfg.Books.SetSnapshot(mctx, ev.Book()); err != nil {
				d.logger.Debug("mirror orderbook", slog.String("market_id", ev.MarketID), slog.String("error", err.Error()))
			}
		}
	default:
		return domain.QuoteTick{}, false
	}

	if d.cfg.Bus != nil {
		if err := d.cfg.Bus.Publish(mctx, Channel(kind, marketID), job.payload); err != nil {
			d.logger.Debug("publish signal", slog.String("market_id", marketID), slog.String("error", err.Error()))
		}
	}

	if job.quote == nil {
		return domain.QuoteTick{}, false
	}
	ev := job.quote
	tick := domain.QuoteTick{
		MarketID:  ev.MarketID,
		OutcomeID: ev.OutcomeID,
		Mid:       ev.Mid,
		Bid:       ev.Bid,
		Ask:       ev.Ask,
		Time:      domain.EpochTime(ev.TS),
	}
	if d.cfg.SourceOf != nil {
		tick.Source = d.cfg.SourceOf(ev.MarketID)
	}
	return tick, true
}

// Channel is the signal bus channel for a payload type and market.
func Channel(kind, marketID string) string {
	return "marketstream:" + kind + ":" + marketID
}
