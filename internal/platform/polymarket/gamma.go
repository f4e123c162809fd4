package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery, metadata, and search.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListOpenMarkets returns up to limit markets that are not closed, as raw
// JSON records.
func (g *GammaClient) ListOpenMarkets(ctx context.Context, limit int) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(limit))

	body, err := g.get(ctx, "/markets", params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: list markets: %w", err)
	}

	return decodeMarkets(body)
}

// GetMarketsByConditionID looks a market up by its 0x condition id. Records
// are returned raw so that one malformed market does not fail the batch.
func (g *GammaClient) GetMarketsByConditionID(ctx context.Context, conditionID string) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("condition_ids", conditionID)

	body, err := g.get(ctx, "/markets", params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get market %s: %w", conditionID, err)
	}
	return decodeMarkets(body)
}

// GetMarketsBySlug looks a market up by its URL slug.
func (g *GammaClient) GetMarketsBySlug(ctx context.Context, slug string) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("slug", slug)

	body, err := g.get(ctx, "/markets", params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}
	return decodeMarkets(body)
}

// PublicSearch runs the Gamma full-text search and returns the matching
// events with their nested markets left raw. Events that fail to decode are
// skipped.
func (g *GammaClient) PublicSearch(ctx context.Context, query string) ([]APIEvent, error) {
	params := url.Values{}
	params.Set("q", query)

	body, err := g.get(ctx, "/public-search", params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: search %q: %w", query, err)
	}

	var resp APISearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode search results: %w", err)
	}
	events := make([]APIEvent, 0, len(resp.Events))
	for _, raw := range resp.Events {
		var ev APIEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeMarkets(body []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	return records, nil
}

func (g *GammaClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := g.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return doGet(ctx, g.httpClient, u)
}
