// Package taxonomy maps exchange-specific tags and categories onto a small
// set of sectors shared across sources.
package taxonomy

import "strings"

const (
	SectorSports        = "Sports"
	SectorPolitics      = "Politics"
	SectorCrypto        = "Crypto"
	SectorEconomics     = "Economics"
	SectorTech          = "Tech"
	SectorEntertainment = "Entertainment"
	SectorScience       = "Science"
	SectorOther         = "Other"
)

// Sectors lists every sector in display order.
var Sectors = []string{
	SectorSports,
	SectorPolitics,
	SectorCrypto,
	SectorEconomics,
	SectorTech,
	SectorEntertainment,
	SectorScience,
	SectorOther,
}

// MaxTags caps the number of tag labels kept per market.
const MaxTags = 10

// polymarketTagSectors is keyed by lower-cased Polymarket tag slug.
var polymarketTagSectors = map[string]string{
	"sports": SectorSports,

	"politics":      SectorPolitics,
	"u.s. politics": SectorPolitics,
	"world":         SectorPolitics,
	"election":      SectorPolitics,
	"trump":         SectorPolitics,
	"biden":         SectorPolitics,

	"crypto":   SectorCrypto,
	"bitcoin":  SectorCrypto,
	"ethereum": SectorCrypto,
	"defi":     SectorCrypto,

	"economy":  SectorEconomics,
	"finance":  SectorEconomics,
	"stocks":   SectorEconomics,
	"business": SectorEconomics,
	"ipos":     SectorEconomics,
	"gdp":      SectorEconomics,

	"tech":                   SectorTech,
	"ai":                     SectorTech,
	"openai":                 SectorTech,
	"science and technology": SectorTech,

	"entertainment": SectorEntertainment,
	"movies":        SectorEntertainment,
	"tv":            SectorEntertainment,
	"music":         SectorEntertainment,

	"science": SectorScience,
	"climate": SectorScience,
	"space":   SectorScience,
}

var kalshiCategorySectors = map[string]string{
	"World":                  SectorPolitics,
	"Politics":               SectorPolitics,
	"US Politics":            SectorPolitics,
	"Climate and Weather":    SectorScience,
	"Science and Technology": SectorTech,
	"Economics":              SectorEconomics,
	"Financials":             SectorEconomics,
	"Entertainment":          SectorEntertainment,
	"Sports":                 SectorSports,
}

// Tag is the subset of an exchange tag the taxonomy needs.
type Tag struct {
	Label string
	Slug  string
}

// SectorFromPolymarketTags returns the sector of the first tag whose slug is
// known, or Other.
func SectorFromPolymarketTags(tags []Tag) string {
	for _, t := range tags {
		if s, ok := polymarketTagSectors[strings.ToLower(t.Slug)]; ok {
			return s
		}
	}
	return SectorOther
}

// SectorFromKalshiCategory maps a Kalshi event category. Matching is exact.
func SectorFromKalshiCategory(category string) string {
	if s, ok := kalshiCategorySectors[category]; ok {
		return s
	}
	return SectorOther
}

// TagLabels returns up to MaxTags non-empty labels, using the slug when a tag
// has no label.
func TagLabels(tags []Tag) []string {
	labels := make([]string, 0, len(tags))
	for _, t := range tags {
		label := t.Label
		if label == "" {
			label = t.Slug
		}
		if label == "" {
			continue
		}
		labels = append(labels, label)
		if len(labels) == MaxTags {
			break
		}
	}
	return labels
}

// IsSector reports whether name is a known sector, ignoring case.
func IsSector(name string) bool {
	for _, s := range Sectors {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}
