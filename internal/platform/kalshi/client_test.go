package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

func TestClient_GetOrderbook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/MARKET-1/orderbook" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("KALSHI-ACCESS-KEY") != "" {
			t.Error("unsigned client sent auth headers")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"orderbook":{"yes":[[52,100],[51,200],[7]],"no":[[48,150]]}}`))
	}))
	defer server.Close()

	ob, err := NewClient(server.URL, "").GetOrderbook(context.Background(), "MARKET-1")
	if err != nil {
		t.Fatalf("GetOrderbook: %v", err)
	}

	yes := ob.YesLevels()
	if len(yes) != 2 {
		t.Fatalf("yes levels = %d, want 2 (malformed level dropped)", len(yes))
	}
	if yes[0].Price != 52 || yes[0].Quantity != 100 {
		t.Errorf("yes[0] = %+v", yes[0])
	}
	no := ob.NoLevels()
	if len(no) != 1 || no[0].Price != 48 {
		t.Errorf("no levels = %+v", no)
	}
}

func TestClient_NullOrderbookSides(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"orderbook":{"yes":null,"no":null}}`))
	}))
	defer server.Close()

	ob, err := NewClient(server.URL, "").GetOrderbook(context.Background(), "EMPTY")
	if err != nil {
		t.Fatalf("GetOrderbook: %v", err)
	}
	if len(ob.YesLevels()) != 0 || len(ob.NoLevels()) != 0 {
		t.Errorf("expected empty book, got %+v", ob)
	}
}

func TestClient_GetEventsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "open" || q.Get("with_nested_markets") != "true" || q.Get("limit") != "200" || q.Get("cursor") != "abc" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"events":[` +
			`{"event_ticker":"EV","title":"Fed","category":"Economics","markets":[{"ticker":"EV-1","volume_24h":12.5},{"ticker":"EV-2","volume":"lots"}]},` +
			`{"event_ticker":7}],"cursor":"next"}`))
	}))
	defer server.Close()

	events, cursor, err := NewClient(server.URL, "").GetEvents(context.Background(), EventsQuery{
		Limit:             200,
		Cursor:            "abc",
		Status:            "open",
		WithNestedMarkets: true,
	})
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if cursor != "next" {
		t.Errorf("cursor = %q", cursor)
	}
	if len(events) != 1 || events[0].EventTicker != "EV" {
		t.Fatalf("events = %+v, want the malformed event skipped", events)
	}
	if len(events[0].Markets) != 2 {
		t.Fatalf("markets = %d, want both records kept raw", len(events[0].Markets))
	}
	var km KalshiMarket
	if err := json.Unmarshal(events[0].Markets[0], &km); err != nil || km.Ticker != "EV-1" || km.Volume24H != 12.5 {
		t.Errorf("market[0] = %+v, err = %v", km, err)
	}
}

func TestClient_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"not_found","message":"market not found"}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "").GetMarket(context.Background(), "NOPE")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestClient_SignedRequest(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("KALSHI-ACCESS-KEY"); got != "key-id" {
			t.Errorf("access key = %q", got)
		}
		ts := r.Header.Get("KALSHI-ACCESS-TIMESTAMP")
		if ts != "1700000000000" {
			t.Errorf("timestamp = %q", ts)
		}
		sig, err := base64.StdEncoding.DecodeString(r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		if err != nil {
			t.Errorf("decode signature: %v", err)
		}
		hash := sha256.Sum256([]byte(ts + http.MethodGet + "/trade-api/v2/markets/T1"))
		if err := rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hash[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}); err != nil {
			t.Errorf("signature does not verify: %v", err)
		}
		w.Write([]byte(`{"market":{"ticker":"T1","status":"active"}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL+"/trade-api/v2", "key-id")
	if err := c.SetRSAPrivateKey(pemBytes); err != nil {
		t.Fatalf("SetRSAPrivateKey: %v", err)
	}
	c.nowFunc = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	if !c.Signed() {
		t.Fatal("client should sign")
	}

	m, err := c.GetMarket(context.Background(), "T1")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if m.Ticker != "T1" {
		t.Errorf("ticker = %q", m.Ticker)
	}
}

func TestClient_SetRSAPrivateKeyRejectsGarbage(t *testing.T) {
	if err := NewClient("http://x", "id").SetRSAPrivateKey([]byte("not a pem")); err == nil {
		t.Fatal("expected error")
	}
}
