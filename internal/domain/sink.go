package domain

import (
	"context"
	"io"
	"time"
)

// QuoteTick is one archived quote sample.
type QuoteTick struct {
	MarketID  string
	OutcomeID string
	Source    Source
	Mid       float64
	Bid       float64
	Ask       float64
	Time      time.Time
}

// TickSink receives quote samples for write-only archival. Nothing is ever
// read back into the state store.
type TickSink interface {
	WriteTicks(ctx context.Context, ticks []QuoteTick) (int64, error)
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
