package redis

import (
	"testing"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

func TestClientKey(t *testing.T) {
	c := newClient(nil, ClientConfig{})
	if got := c.key("quote", "0xabc", "123"); got != "marketstream:quote:0xabc:123" {
		t.Errorf("key = %q", got)
	}
	if c.ttl != defaultMirrorTTL {
		t.Errorf("ttl = %v", c.ttl)
	}

	c = newClient(nil, ClientConfig{KeyPrefix: "staging"})
	if got := c.key("book", "K1", "K1_yes"); got != "staging:book:K1:K1_yes" {
		t.Errorf("key = %q", got)
	}
}

func TestQuoteFields(t *testing.T) {
	vol := 1234.5
	fields := quoteFields(domain.QuotePoint{TS: 1700000000.25, Mid: 0.515, Bid: 0.51, Ask: 0.52, Volume: &vol})
	want := map[string]string{
		"ts":     "1700000000.25",
		"mid":    "0.515",
		"bid":    "0.51",
		"ask":    "0.52",
		"volume": "1234.5",
	}
	if len(fields) != len(want) {
		t.Fatalf("fields = %v", fields)
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s = %v, want %s", k, fields[k], v)
		}
	}

	fields = quoteFields(domain.QuotePoint{TS: 1, Mid: 0.5, Bid: 0.4, Ask: 0.6})
	if _, ok := fields["volume"]; ok {
		t.Error("volume written without a value")
	}
}
