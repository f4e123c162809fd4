package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/marketstream/internal/domain"
	pm "github.com/alanyoungcy/marketstream/internal/platform/polymarket"
	"github.com/alanyoungcy/marketstream/internal/state"
	"github.com/alanyoungcy/marketstream/internal/taxonomy"
)

const (
	condA = "0x1111111111111111111111111111111111111111111111111111111111111111"
	condB = "0x2222222222222222222222222222222222222222222222222222222222222222"
)

type recordingPublisher struct {
	mu     sync.Mutex
	quotes []domain.QuoteChangeEvent
	books  []domain.OrderBookChangeEvent
}

func (p *recordingPublisher) PublishQuote(ev domain.QuoteChangeEvent) {
	p.mu.Lock()
	p.quotes = append(p.quotes, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) PublishOrderBook(ev domain.OrderBookChangeEvent) {
	p.mu.Lock()
	p.books = append(p.books, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.quotes), len(p.books)
}

func marketJSON(cond, question, slug string) string {
	return fmt.Sprintf(`{"conditionId":%q,"question":%q,"slug":%q,"active":true,"closed":false,`+
		`"clobTokenIds":"[\"111\",\"222\"]","outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.6\",\"0.4\"]"}`,
		cond, question, slug)
}

func newTestConnector(t *testing.T, gammaURL, clobURL string, store *state.Store, pub *recordingPublisher) *Connector {
	t.Helper()
	c := New(pm.NewGammaClient(gammaURL), pm.NewClobClient(clobURL), store, nil, WithPublisher(pub))
	c.pause = 0
	c.pollInterval = 10 * time.Millisecond
	return c
}

func TestNormalize(t *testing.T) {
	c := New(nil, nil, state.New(), nil)

	t.Run("tokens", func(t *testing.T) {
		raw := `{"conditionId":"0xabc","question":"Will it rain?","slug":"will-it-rain","active":true,"closed":false,
			"clobTokenIds":"[\"111\",\"222\",\"333\"]","outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"0.25\"]",
			"volume24hr":500,"tags":[{"label":"Climate","slug":"climate"}]}`
		m, ok := c.Normalize([]byte(raw))
		if !ok {
			t.Fatal("market dropped")
		}
		if m.MarketID != "0xabc" || m.SourceID != "will-it-rain" || m.Source != domain.SourcePolymarket {
			t.Errorf("ids = %s %s %s", m.MarketID, m.SourceID, m.Source)
		}
		if m.Status != domain.MarketStatusActive {
			t.Errorf("status = %s", m.Status)
		}
		if len(m.Outcomes) != 3 {
			t.Fatalf("outcomes = %d, want 3", len(m.Outcomes))
		}
		if m.Outcomes[0].OutcomeID != "111" || m.Outcomes[0].Name != "Yes" || m.Outcomes[0].Price != 0.25 {
			t.Errorf("outcome[0] = %+v", m.Outcomes[0])
		}
		if m.Outcomes[2].Name != "Outcome 2" || m.Outcomes[2].Price != 0 {
			t.Errorf("outcome[2] = %+v", m.Outcomes[2])
		}
		if m.Sector != taxonomy.SectorScience || len(m.Tags) != 1 || m.Tags[0] != "Climate" {
			t.Errorf("sector = %q tags = %v", m.Sector, m.Tags)
		}
		if m.Volume24h != 500 {
			t.Errorf("volume = %v", m.Volume24h)
		}
	})

	t.Run("synthetic outcomes", func(t *testing.T) {
		m, ok := c.Normalize([]byte(`{"conditionId":"0xdef","question":"Q","clobTokenIds":"oops","active":true,"closed":true}`))
		if !ok {
			t.Fatal("market dropped")
		}
		if len(m.Outcomes) != 2 || m.Outcomes[0].OutcomeID != "0xdef_yes" || m.Outcomes[1].OutcomeID != "0xdef_no" {
			t.Errorf("outcomes = %+v", m.Outcomes)
		}
		if m.SourceID != "0xdef" {
			t.Errorf("source id = %q, want condition id fallback", m.SourceID)
		}
		if m.Status != domain.MarketStatusClosed {
			t.Errorf("status = %s", m.Status)
		}
	})

	t.Run("idempotent id", func(t *testing.T) {
		raw := []byte(marketJSON(condA, "Q", "q-slug"))
		m1, _ := c.Normalize(raw)
		m2, _ := c.Normalize(raw)
		if m1.MarketID != m2.MarketID {
			t.Errorf("ids differ: %s vs %s", m1.MarketID, m2.MarketID)
		}
	})

	for _, raw := range []string{`{"question":"no id"}`, `{not json`, `[]`} {
		if _, ok := c.Normalize([]byte(raw)); ok {
			t.Errorf("Normalize(%s) should drop", raw)
		}
	}
}

func TestValidators(t *testing.T) {
	if !ValidTokenID("71321045679252212594626385532706912750332728571942532289631379312455583992563") {
		t.Error("real token id rejected")
	}
	for _, id := range []string{"", "0x1f", "abc_yes", "-1", "1" + strings.Repeat("0", 80)} {
		if ValidTokenID(id) {
			t.Errorf("ValidTokenID(%q) = true", id)
		}
	}
	if !IsConditionID(condA) {
		t.Error("condition id rejected")
	}
	if IsConditionID("0x1234") || IsConditionID("bitcoin") {
		t.Error("short or non-hex value accepted")
	}
}

func TestPollOrderBook(t *testing.T) {
	var requests atomic.Int32
	clob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		switch r.URL.Query().Get("token_id") {
		case "111":
			w.Write([]byte(`{"bids":[{"price":"0.40","size":"10"},{"price":"0.45","size":"5"}],"asks":[{"price":"0.60","size":"3"},{"price":"0.55","size":"8"}]}`))
		case "222":
			w.Write([]byte(`{"bids":[{"price":"0.35","size":"1"}],"asks":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer clob.Close()

	store := state.New()
	pub := &recordingPublisher{}
	c := newTestConnector(t, "http://unused", clob.URL, store, pub)

	store.UpdateMarket(domain.Market{
		MarketID: condA,
		Source:   domain.SourcePolymarket,
		Outcomes: []domain.Outcome{
			{OutcomeID: "111", Name: "Yes"},
			{OutcomeID: "222", Name: "No"},
			{OutcomeID: "999", Name: "Missing"},
			{OutcomeID: condA + "_maybe", Name: "Synthetic"},
		},
	})

	c.PollOrderBook(context.Background(), condA)

	if got := requests.Load(); got != 3 {
		t.Errorf("requests = %d, want 3 (synthetic id skipped)", got)
	}

	book, ok := store.OrderBook(condA, "111")
	if !ok {
		t.Fatal("book for 111 missing")
	}
	if book.Bids[0].P != 0.45 || book.Asks[0].P != 0.55 {
		t.Errorf("book not sorted: %+v", book)
	}

	h := store.History(condA, "111", 0)
	if len(h) != 1 || h[0].Bid != 0.45 || h[0].Ask != 0.55 || h[0].Mid != 0.5 {
		t.Errorf("quote 111 = %+v", h)
	}

	h = store.History(condA, "222", 0)
	if len(h) != 1 || h[0].Bid != 0.35 || h[0].Ask != 0.35 || h[0].Mid != 0.35 {
		t.Errorf("single-sided quote = %+v", h)
	}

	if _, ok := store.OrderBook(condA, "999"); ok {
		t.Error("missing book should be skipped")
	}

	quotes, books := pub.counts()
	if quotes != 2 || books != 2 {
		t.Errorf("published quotes=%d books=%d, want 2/2", quotes, books)
	}

	m, _ := store.GetMarket(condA)
	if m.Outcomes[0].Price != 0.5 {
		t.Errorf("outcome price = %v, want refreshed mid", m.Outcomes[0].Price)
	}
}

func TestPollOrderBook_IgnoresOtherSources(t *testing.T) {
	var requests atomic.Int32
	clob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer clob.Close()

	store := state.New()
	c := newTestConnector(t, "http://unused", clob.URL, store, &recordingPublisher{})
	store.UpdateMarket(domain.Market{
		MarketID: "KX-1",
		Source:   domain.SourceKalshi,
		Outcomes: []domain.Outcome{{OutcomeID: "123"}},
	})

	c.PollOrderBook(context.Background(), "KX-1")
	c.PollOrderBook(context.Background(), "unknown")
	if requests.Load() != 0 {
		t.Errorf("unexpected upstream requests: %d", requests.Load())
	}
}

func TestSpawnPoller(t *testing.T) {
	var requests atomic.Int32
	clob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"bids":[{"price":"0.5","size":"1"}],"asks":[]}`))
	}))
	defer clob.Close()

	store := state.New()
	c := newTestConnector(t, "http://unused", clob.URL, store, &recordingPublisher{})
	store.UpdateMarket(domain.Market{
		MarketID: condA,
		Source:   domain.SourcePolymarket,
		Outcomes: []domain.Outcome{{OutcomeID: "111"}},
	})

	task := c.SpawnPoller(context.Background(), condA)

	deadline := time.Now().Add(2 * time.Second)
	for requests.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if requests.Load() < 2 {
		t.Fatalf("requests = %d, want repeated polling", requests.Load())
	}

	task.Cancel()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestSearch(t *testing.T) {
	var searches, exacts atomic.Int32
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets":
			exacts.Add(1)
			q := r.URL.Query()
			switch {
			case q.Get("condition_ids") == condB:
				fmt.Fprintf(w, "[%s]", marketJSON(condB, "Exact by id", "exact-by-id"))
			case q.Get("slug") == "exact-slug":
				fmt.Fprintf(w, "[%s]", marketJSON(condB, "Exact by slug", "exact-slug"))
			default:
				w.Write([]byte(`[]`))
			}
		case "/public-search":
			searches.Add(1)
			fmt.Fprintf(w, `{"events":[{"title":"Rates","category":"Economics","tags":[{"label":"Economy","slug":"economy"}],"markets":[%s,%s]}]}`,
				marketJSON(condA, "Fed cuts in June?", "fed-june"),
				marketJSON(condB, "Fed cuts in July?", "fed-july"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer gamma.Close()

	store := state.New()
	c := newTestConnector(t, gamma.URL, "http://unused", store, &recordingPublisher{})

	t.Run("native search upserts", func(t *testing.T) {
		got := c.Search(context.Background(), "fed")
		if len(got) != 2 {
			t.Fatalf("results = %d, want 2", len(got))
		}
		if _, ok := store.GetMarket(condA); !ok {
			t.Error("result not upserted")
		}
		if got[0].Sector != taxonomy.SectorEconomics {
			t.Errorf("sector from event tags = %q", got[0].Sector)
		}
	})

	t.Run("cache hit deduplicates", func(t *testing.T) {
		got := c.Search(context.Background(), "Fed cuts")
		seen := map[string]bool{}
		for _, m := range got {
			if seen[m.MarketID] {
				t.Errorf("duplicate %s", m.MarketID)
			}
			seen[m.MarketID] = true
		}
		if len(got) != 2 {
			t.Errorf("results = %d, want 2", len(got))
		}
	})

	t.Run("condition id lookup", func(t *testing.T) {
		before := exacts.Load()
		got := c.Search(context.Background(), condB)
		if exacts.Load() != before+1 {
			t.Error("exact lookup not attempted")
		}
		if len(got) == 0 || got[0].MarketID != condB {
			t.Errorf("results = %+v", got)
		}
	})

	t.Run("slug lookup", func(t *testing.T) {
		got := c.Search(context.Background(), "exact-slug")
		found := false
		for _, m := range got {
			if m.SourceID == "exact-slug" {
				found = true
			}
		}
		if !found {
			t.Errorf("slug result missing: %+v", got)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		if got := c.Search(context.Background(), "   "); len(got) != 0 {
			t.Errorf("results = %d", len(got))
		}
	})
}

func TestSearch_UpstreamErrors(t *testing.T) {
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gamma.Close()

	c := newTestConnector(t, gamma.URL, "http://unused", state.New(), &recordingPublisher{})
	got := c.Search(context.Background(), "anything")
	if got == nil || len(got) != 0 {
		t.Errorf("results = %v, want empty slice", got)
	}
}

func TestSearch_CapsResults(t *testing.T) {
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var markets []string
		for i := 0; i < 150; i++ {
			markets = append(markets, marketJSON(fmt.Sprintf("0x%064x", i+1), fmt.Sprintf("Cap %d", i), fmt.Sprintf("cap-%d", i)))
		}
		fmt.Fprintf(w, `{"events":[{"markets":[%s]}]}`, strings.Join(markets, ","))
	}))
	defer gamma.Close()

	c := newTestConnector(t, gamma.URL, "http://unused", state.New(), &recordingPublisher{})
	if got := c.Search(context.Background(), "cap"); len(got) != 100 {
		t.Errorf("results = %d, want 100", len(got))
	}
}

func TestSearch_SkipsMalformedRecords(t *testing.T) {
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets":
			fmt.Fprintf(w, `[{"conditionId":%q,"liquidity":{"bad":true}},%s]`, condA, marketJSON(condB, "Good by slug", "good-slug"))
		case "/public-search":
			fmt.Fprintf(w, `{"events":[{"title":"Elections","markets":[%s,{"conditionId":%q,"question":"Broken","volume24hr":"n/a"}]}]}`,
				marketJSON(condA, "Senate control?", "senate-control"), condB)
		}
	}))
	defer gamma.Close()

	t.Run("public search batch", func(t *testing.T) {
		store := state.New()
		c := newTestConnector(t, gamma.URL, "http://unused", store, &recordingPublisher{})
		got := c.Search(context.Background(), "senate")
		if len(got) != 1 || got[0].MarketID != condA {
			t.Fatalf("results = %+v, want only the well-formed market", got)
		}
		if n := len(store.GetAllMarkets()); n != 1 {
			t.Errorf("catalog = %d, want 1", n)
		}
	})

	t.Run("exact lookup batch", func(t *testing.T) {
		store := state.New()
		c := newTestConnector(t, gamma.URL, "http://unused", store, &recordingPublisher{})
		got := c.Search(context.Background(), "good-slug")
		found := false
		for _, m := range got {
			if m.MarketID == condB && m.Title == "Good by slug" {
				found = true
			}
		}
		if !found {
			t.Errorf("results = %+v, want the well-formed slug match", got)
		}
	})
}

func TestRepeatedIngestKeepsOneEntry(t *testing.T) {
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets":
			fmt.Fprintf(w, "[%s,%s]", marketJSON(condA, "Fed cuts in June?", "fed-june"), marketJSON(condB, "Fed cuts in July?", "fed-july"))
		case "/public-search":
			fmt.Fprintf(w, `{"events":[{"title":"Rates","markets":[%s,%s]}]}`,
				marketJSON(condA, "Fed cuts in June?", "fed-june"),
				marketJSON(condB, "Fed cuts in July?", "fed-july"))
		}
	}))
	defer gamma.Close()

	store := state.New()
	c := newTestConnector(t, gamma.URL, "http://unused", store, &recordingPublisher{})

	c.LoadInitial(context.Background())
	c.LoadInitial(context.Background())
	if n := len(store.GetAllMarkets()); n != 2 {
		t.Fatalf("after repeated load catalog = %d, want 2", n)
	}

	// A query that misses the cache goes upstream and returns the same records.
	c.Search(context.Background(), "rates")
	c.Search(context.Background(), "rates")
	if n := len(store.GetAllMarkets()); n != 2 {
		t.Errorf("after repeated search catalog = %d, want 2", n)
	}
}

func TestLoadInitial(t *testing.T) {
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		records := make([]json.RawMessage, 0, 50)
		records = append(records, json.RawMessage(`{"question":"dropped, no id"}`))
		for i := 0; i < 49; i++ {
			records = append(records, json.RawMessage(marketJSON(fmt.Sprintf("0x%064x", i+1), "Q", fmt.Sprintf("q-%d", i))))
		}
		json.NewEncoder(w).Encode(records)
	}))
	defer gamma.Close()

	store := state.New()
	c := newTestConnector(t, gamma.URL, "http://unused", store, &recordingPublisher{})

	if n := c.LoadInitial(context.Background()); n != 29 {
		t.Errorf("loaded = %d, want 29 (first 30 records, one dropped)", n)
	}
	if got := len(store.GetAllMarkets()); got != 29 {
		t.Errorf("stored = %d", got)
	}
}
