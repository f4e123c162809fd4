package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/marketstream/internal/blob/s3"
	"github.com/alanyoungcy/marketstream/internal/domain"
)

const (
	// multipartThreshold switches uploads to the multipart manager.
	multipartThreshold = 8 * 1024 * 1024
	exportPartSize     = 8 * 1024 * 1024
)

// HistorySource is the read side of the state store used by the exporter.
type HistorySource interface {
	GetAllMarkets() []domain.Market
	History(marketID, outcomeID string, rangeSeconds float64) []domain.QuotePoint
}

// SeriesRecord is one line of an export file: the new points of one
// (market, outcome) series since the previous export.
type SeriesRecord struct {
	MarketID  string              `json:"market_id"`
	OutcomeID string              `json:"outcome_id"`
	Source    domain.Source       `json:"source"`
	Title     string              `json:"title"`
	Points    []domain.QuotePoint `json:"points"`
}

type seriesKey struct{ market, outcome string }

// Exporter periodically uploads quote history to object storage as JSONL.
// Each run only carries points newer than the last successful upload, so the
// files of consecutive runs do not overlap. Not safe for concurrent RunOnce
// calls.
type Exporter struct {
	src    HistorySource
	writer domain.BlobWriter
	logger *slog.Logger
	now    func() time.Time

	last map[seriesKey]float64
}

// NewExporter creates an Exporter.
func NewExporter(src HistorySource, writer domain.BlobWriter, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		src:    src,
		writer: writer,
		logger: logger.With(slog.String("component", "exporter")),
		now:    time.Now,
		last:   make(map[seriesKey]float64),
	}
}

// exportPath partitions export files by UTC day.
//
//	history/2026-10-16/153000.jsonl
func exportPath(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("history/%s/%s.jsonl", at.Format("2006-01-02"), at.Format("150405"))
}

// collect gathers the unexported points and the per-series high-water marks
// they would advance to.
func (e *Exporter) collect() ([]SeriesRecord, map[seriesKey]float64, int) {
	var records []SeriesRecord
	marks := make(map[seriesKey]float64)
	points := 0
	for _, m := range e.src.GetAllMarkets() {
		for _, o := range m.Outcomes {
			key := seriesKey{m.MarketID, o.OutcomeID}
			last, seen := e.last[key]

			var fresh []domain.QuotePoint
			for _, p := range e.src.History(m.MarketID, o.OutcomeID, 0) {
				if !seen || p.TS > last {
					fresh = append(fresh, p)
				}
			}
			if len(fresh) == 0 {
				continue
			}
			records = append(records, SeriesRecord{
				MarketID:  m.MarketID,
				OutcomeID: o.OutcomeID,
				Source:    m.Source,
				Title:     m.Title,
				Points:    fresh,
			})
			marks[key] = fresh[len(fresh)-1].TS
			points += len(fresh)
		}
	}
	return records, marks, points
}

// RunOnce uploads one export file and returns the number of points written.
// Nothing is uploaded when no series has new points.
func (e *Exporter) RunOnce(ctx context.Context) (int, error) {
	records, marks, points := e.collect()
	if len(records) == 0 {
		return 0, nil
	}

	data, err := s3blob.EncodeJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("pipeline: encode export: %w", err)
	}

	path := exportPath(e.now())
	if len(data) > multipartThreshold {
		err = e.writer.PutMultipart(ctx, path, bytes.NewReader(data), exportPartSize)
	} else {
		err = e.writer.Put(ctx, path, bytes.NewReader(data), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("pipeline: upload export %s: %w", path, err)
	}

	for k, ts := range marks {
		e.last[k] = ts
	}
	e.logger.Info("history exported",
		slog.String("path", path),
		slog.Int("series", len(records)),
		slog.Int("points", points),
		slog.Int("bytes", len(data)),
	)
	return points, nil
}

// RunLoop exports every interval until ctx is cancelled. Failed runs are
// logged and retried on the next tick with the same points.
func (e *Exporter) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.RunOnce(ctx); err != nil {
				e.logger.Error("history export failed", slog.String("error", err.Error()))
			}
		}
	}
}
