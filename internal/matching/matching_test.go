package matching

import (
	"math"
	"testing"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"tide", "diet", 0.25},
		{"diet", "tide", 0.5},
		{"abcd", "bcde", 0.75},
		{"ABCD", "abcd", 1},
		{"", "", 1},
		{"abc", "", 0},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRelated(t *testing.T) {
	target := domain.Market{MarketID: "0x1", Source: domain.SourcePolymarket, Title: "Will Trump win the 2024 election?"}
	candidates := []domain.Market{
		target,
		{MarketID: "0x2", Source: domain.SourcePolymarket, Title: "Will Trump win the 2024 election?"},
		{MarketID: "FED-24", Source: domain.SourceKalshi, Title: "Fed cuts rates in March"},
		{MarketID: "PRES-24", Source: domain.SourceKalshi, Title: "Will Donald Trump win the 2024 presidential election?"},
	}

	m, ok := Related(target, candidates)
	if !ok {
		t.Fatal("expected a related market")
	}
	if m.Market.MarketID != "PRES-24" {
		t.Errorf("related = %s, want PRES-24", m.Market.MarketID)
	}
	if m.Score < Threshold || m.Score > 0.8 {
		t.Errorf("score = %v", m.Score)
	}
}

func TestRelated_BelowThreshold(t *testing.T) {
	target := domain.Market{MarketID: "0x1", Source: domain.SourcePolymarket, Title: "Fed cuts rates in March"}
	candidates := []domain.Market{
		{MarketID: "BTC", Source: domain.SourceKalshi, Title: "Bitcoin above 100k"},
	}
	if _, ok := Related(target, candidates); ok {
		t.Error("unrelated titles matched")
	}
}

func TestRelated_TiesKeepFirst(t *testing.T) {
	target := domain.Market{MarketID: "K", Source: domain.SourceKalshi, Title: "Rain in LA"}
	candidates := []domain.Market{
		{MarketID: "first", Source: domain.SourcePolymarket, Title: "Rain in LA"},
		{MarketID: "second", Source: domain.SourcePolymarket, Title: "rain in la"},
	}
	m, ok := Related(target, candidates)
	if !ok || m.Market.MarketID != "first" {
		t.Errorf("Related = %+v, %v", m, ok)
	}
}
