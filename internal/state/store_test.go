package state

import (
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testMarket(id string, src domain.Source) domain.Market {
	return domain.Market{
		MarketID: id,
		Title:    "Market " + id,
		Source:   src,
		SourceID: id,
		Status:   domain.MarketStatusActive,
		Outcomes: []domain.Outcome{
			{OutcomeID: id + "_yes", Name: "Yes"},
			{OutcomeID: id + "_no", Name: "No"},
		},
	}
}

func TestStore_UpdateMarketPreservesInsertionOrder(t *testing.T) {
	s := New()
	s.UpdateMarket(testMarket("b", domain.SourceKalshi))
	s.UpdateMarket(testMarket("a", domain.SourcePolymarket))
	s.UpdateMarket(testMarket("c", domain.SourceKalshi))

	replaced := testMarket("b", domain.SourceKalshi)
	replaced.Title = "renamed"
	s.UpdateMarket(replaced)

	all := s.GetAllMarkets()
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	want := []string{"b", "a", "c"}
	for i, id := range want {
		if all[i].MarketID != id {
			t.Errorf("all[%d] = %s, want %s", i, all[i].MarketID, id)
		}
	}
	if all[0].Title != "renamed" {
		t.Errorf("title = %q, want overwritten value", all[0].Title)
	}
}

func TestStore_UpdateMarketOverwritesFields(t *testing.T) {
	s := New()
	m := testMarket("m1", domain.SourcePolymarket)
	m.Description = "first"
	m.Tags = []string{"x"}
	s.UpdateMarket(m)

	s.UpdateMarket(domain.Market{MarketID: "m1", Title: "bare", Source: domain.SourcePolymarket})

	got, ok := s.GetMarket("m1")
	if !ok {
		t.Fatal("market missing")
	}
	if got.Description != "" || got.Tags != nil || len(got.Outcomes) != 0 {
		t.Errorf("expected full replacement, got %+v", got)
	}
}

func TestStore_GetMarketReturnsCopy(t *testing.T) {
	s := New()
	s.UpdateMarket(testMarket("m1", domain.SourceKalshi))

	got, _ := s.GetMarket("m1")
	got.Outcomes[0].Name = "mutated"

	again, _ := s.GetMarket("m1")
	if again.Outcomes[0].Name != "Yes" {
		t.Errorf("store aliased caller memory: %q", again.Outcomes[0].Name)
	}
}

func TestStore_UpdateQuoteRefreshesOutcomePrice(t *testing.T) {
	s := New()
	s.UpdateMarket(testMarket("m1", domain.SourceKalshi))

	ev := s.UpdateQuote("m1", "m1_yes", 0.55, 0.54, 0.56, 100)
	if ev.MarketID != "m1" || ev.OutcomeID != "m1_yes" || ev.TS != 100 || ev.Mid != 0.55 {
		t.Fatalf("unexpected event %+v", ev)
	}
	p := ev.Payload()
	if p.Type != domain.PayloadQuote || p.Bid != 0.54 || p.Ask != 0.56 {
		t.Errorf("unexpected payload %+v", p)
	}

	m, _ := s.GetMarket("m1")
	if m.Outcomes[0].Price != 0.55 {
		t.Errorf("outcome price = %v, want 0.55", m.Outcomes[0].Price)
	}
	if m.Outcomes[1].Price != 0 {
		t.Errorf("other outcome price changed to %v", m.Outcomes[1].Price)
	}
}

func TestStore_UpdateQuoteDefaultsTimestamp(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := New(WithClock(clock.Now))

	ev := s.UpdateQuote("m1", "o1", 0.5, 0.5, 0.5, 0)
	if ev.TS != 1_700_000_000 {
		t.Errorf("ts = %v, want clock time", ev.TS)
	}
}

func TestStore_HistoryEvictsOldest(t *testing.T) {
	s := New()
	for i := 1; i <= DefaultHistoryCapacity+5; i++ {
		s.UpdateQuote("m1", "o1", 0.5, 0.5, 0.5, float64(i))
	}

	h := s.History("m1", "o1", 0)
	if len(h) != DefaultHistoryCapacity {
		t.Fatalf("len = %d, want %d", len(h), DefaultHistoryCapacity)
	}
	if h[0].TS != 6 {
		t.Errorf("oldest ts = %v, want 6", h[0].TS)
	}
	if h[len(h)-1].TS != float64(DefaultHistoryCapacity+5) {
		t.Errorf("newest ts = %v", h[len(h)-1].TS)
	}
	for i := 1; i < len(h); i++ {
		if h[i].TS < h[i-1].TS {
			t.Fatalf("history not ordered at %d", i)
		}
	}
}

func TestStore_HistoryRange(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := New(WithClock(clock.Now))

	for _, ts := range []float64{100, 500, 900, 950, 1000} {
		s.UpdateQuote("m1", "o1", 0.5, 0.5, 0.5, ts)
	}

	tests := []struct {
		name  string
		rng   float64
		count int
	}{
		{"all", 0, 5},
		{"negative means all", -10, 5},
		{"last 100s", 100, 3},
		{"last 50s", 50, 2},
		{"wide", 10_000, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(s.History("m1", "o1", tt.rng)); got != tt.count {
				t.Errorf("len = %d, want %d", got, tt.count)
			}
		})
	}

	if got := s.History("missing", "o1", 0); got == nil || len(got) != 0 {
		t.Errorf("missing series = %v, want empty slice", got)
	}
}

func TestStore_OrderBookLastWriteWins(t *testing.T) {
	s := New()
	if _, ok := s.OrderBook("m1", "o1"); ok {
		t.Fatal("unexpected book before update")
	}

	s.UpdateOrderBook("m1", "o1", []domain.OrderBookLevel{{P: 0.4, S: 10}}, nil, 1)
	ev := s.UpdateOrderBook("m1", "o1", []domain.OrderBookLevel{{P: 0.45, S: 5}}, []domain.OrderBookLevel{{P: 0.5, S: 7}}, 2)
	if ev.Payload().Type != domain.PayloadOrderBook {
		t.Errorf("payload type = %q", ev.Payload().Type)
	}

	b, ok := s.OrderBook("m1", "o1")
	if !ok {
		t.Fatal("book missing")
	}
	if b.TS != 2 || len(b.Bids) != 1 || b.Bids[0].P != 0.45 || len(b.Asks) != 1 {
		t.Errorf("unexpected book %+v", b)
	}
}

func TestStore_Stats(t *testing.T) {
	s := New()
	s.UpdateMarket(testMarket("m1", domain.SourceKalshi))
	s.UpdateQuote("m1", "m1_yes", 0.5, 0.5, 0.5, 1)
	s.UpdateQuote("m1", "m1_yes", 0.5, 0.5, 0.5, 2)
	s.UpdateOrderBook("m1", "m1_yes", nil, nil, 1)

	st := s.Stats()
	if st.Markets != 1 || st.QuoteSeries != 1 || st.QuotePoints != 2 || st.OrderBooks != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New(WithHistoryCapacity(16))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.UpdateMarket(testMarket("m1", domain.SourceKalshi))
				s.UpdateQuote("m1", "m1_yes", 0.5, 0.5, 0.5, float64(j+1))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = s.History("m1", "m1_yes", 0)
				_ = s.GetAllMarkets()
			}
		}()
	}
	wg.Wait()

	if got := len(s.History("m1", "m1_yes", 0)); got != 16 {
		t.Errorf("len = %d, want 16", got)
	}
}
