// Package search filters, ranks and paginates the cached market catalog.
package search

import (
	"sort"
	"strings"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500

	topTags        = 20
	tagsPerMarket  = 3
	scoreTitle     = 10
	scoreTitleHead = 5
	scoreDesc      = 3
	scoreTag       = 2
	scoreOutcome   = 1
)

// Query selects and pages markets. Zero-valued fields do not filter.
type Query struct {
	Text   string
	Source domain.Source
	Sector string
	Tags   []string
	Limit  int
	Offset int
}

// TagCount is one entry of the tag facet.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Facets summarize the whole catalog, independent of the query.
type Facets struct {
	Sectors map[string]int `json:"sectors"`
	Sources map[string]int `json:"sources"`
	Tags    []TagCount     `json:"tags"`
}

// Result is one page of matches.
type Result struct {
	Markets []domain.Market `json:"markets"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	Facets  Facets          `json:"facets"`
}

// Run applies q to catalog. With a text query, markets are ranked by
// relevance and non-matching ones dropped; without one they are ordered by
// 24h volume, then title.
func Run(catalog []domain.Market, q Query) Result {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := max(q.Offset, 0)

	matches := filter(catalog, q)
	if text := strings.ToLower(strings.TrimSpace(q.Text)); text != "" {
		matches = rank(matches, text)
	} else {
		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].Volume24h != matches[j].Volume24h {
				return matches[i].Volume24h > matches[j].Volume24h
			}
			return matches[i].Title < matches[j].Title
		})
	}

	total := len(matches)
	page := []domain.Market{}
	if offset < total {
		page = matches[offset:min(offset+limit, total)]
	}
	return Result{
		Markets: page,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		Facets:  BuildFacets(catalog),
	}
}

func filter(catalog []domain.Market, q Query) []domain.Market {
	wantTags := make(map[string]bool, len(q.Tags))
	for _, t := range q.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			wantTags[t] = true
		}
	}

	out := make([]domain.Market, 0, len(catalog))
	for _, m := range catalog {
		if q.Source != "" && m.Source != q.Source {
			continue
		}
		if q.Sector != "" && !strings.EqualFold(m.Sector, q.Sector) {
			continue
		}
		if len(wantTags) > 0 && !hasAnyTag(m.Tags, wantTags) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func hasAnyTag(tags []string, want map[string]bool) bool {
	for _, t := range tags {
		if want[strings.ToLower(t)] {
			return true
		}
	}
	return false
}

type scored struct {
	market domain.Market
	score  int
}

func rank(markets []domain.Market, text string) []domain.Market {
	hits := make([]scored, 0, len(markets))
	for _, m := range markets {
		if s := Score(m, text); s > 0 {
			hits = append(hits, scored{market: m, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]domain.Market, len(hits))
	for i, h := range hits {
		out[i] = h.market
	}
	return out
}

// Score rates how well m matches the lower-cased query text.
func Score(m domain.Market, text string) int {
	score := 0
	title := strings.ToLower(m.Title)
	if strings.Contains(title, text) {
		score += scoreTitle
		if strings.HasPrefix(title, text) {
			score += scoreTitleHead
		}
	}
	if m.Description != "" && strings.Contains(strings.ToLower(m.Description), text) {
		score += scoreDesc
	}
	for _, t := range m.Tags {
		if strings.Contains(strings.ToLower(t), text) {
			score += scoreTag
			break
		}
	}
	for _, o := range m.Outcomes {
		if strings.Contains(strings.ToLower(o.Name), text) {
			score += scoreOutcome
			break
		}
	}
	return score
}

// BuildFacets counts sectors, sources and the most common leading tags across
// the catalog.
func BuildFacets(catalog []domain.Market) Facets {
	f := Facets{
		Sectors: make(map[string]int),
		Sources: make(map[string]int, len(domain.Sources)),
	}
	for _, s := range domain.Sources {
		f.Sources[string(s)] = 0
	}

	tags := make(map[string]int)
	for _, m := range catalog {
		if m.Sector != "" {
			f.Sectors[m.Sector]++
		}
		f.Sources[string(m.Source)]++
		for i, t := range m.Tags {
			if i == tagsPerMarket {
				break
			}
			tags[t]++
		}
	}

	f.Tags = make([]TagCount, 0, len(tags))
	for t, n := range tags {
		f.Tags = append(f.Tags, TagCount{Tag: t, Count: n})
	}
	sort.Slice(f.Tags, func(i, j int) bool {
		if f.Tags[i].Count != f.Tags[j].Count {
			return f.Tags[i].Count > f.Tags[j].Count
		}
		return f.Tags[i].Tag < f.Tags[j].Tag
	})
	if len(f.Tags) > topTags {
		f.Tags = f.Tags[:topTags]
	}
	return f
}
