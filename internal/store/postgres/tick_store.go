package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

var tickColumns = []string{"market_id", "outcome_id", "source", "mid", "bid", "ask", "ts"}

// TickStore implements domain.TickSink on the quote_ticks table.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore creates a TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

func tickRows(ticks []domain.QuoteTick) [][]any {
	rows := make([][]any, len(ticks))
	for i, t := range ticks {
		rows[i] = []any{t.MarketID, t.OutcomeID, string(t.Source), t.Mid, t.Bid, t.Ask, t.Time.UTC()}
	}
	return rows
}

// WriteTicks bulk-loads ticks with COPY and returns the number of rows written.
func (s *TickStore) WriteTicks(ctx context.Context, ticks []domain.QuoteTick) (int64, error) {
	if len(ticks) == 0 {
		return 0, nil
	}
	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"quote_ticks"},
		tickColumns,
		pgx.CopyFromRows(tickRows(ticks)),
	)
	if err != nil {
		return n, fmt.Errorf("postgres: copy %d quote ticks: %w", len(ticks), err)
	}
	return n, nil
}

// Prune deletes ticks older than before and returns how many were removed.
func (s *TickStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM quote_ticks WHERE ts < $1", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres: prune quote ticks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TickSink = (*TickStore)(nil)
