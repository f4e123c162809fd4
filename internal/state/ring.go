package state

import "github.com/alanyoungcy/marketstream/internal/domain"

// ring is a fixed-capacity FIFO of quote points. Once full, each push
// overwrites the oldest point.
type ring struct {
	buf   []domain.QuotePoint
	start int
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]domain.QuotePoint, capacity)}
}

func (r *ring) push(p domain.QuotePoint) {
	if len(r.buf) == 0 {
		return
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = p
		r.n++
		return
	}
	r.buf[r.start] = p
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) len() int { return r.n }

// since returns a copy of every point with TS >= from, oldest first.
func (r *ring) since(from float64) []domain.QuotePoint {
	out := make([]domain.QuotePoint, 0, r.n)
	for i := 0; i < r.n; i++ {
		p := r.buf[(r.start+i)%len(r.buf)]
		if p.TS >= from {
			out = append(out, p)
		}
	}
	return out
}
