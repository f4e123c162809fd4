// Package matching pairs a market with its closest counterpart on another
// exchange by title similarity.
package matching

import (
	"strings"

	"github.com/alanyoungcy/marketstream/internal/domain"
)

// Threshold is the minimum title similarity for two markets to be related.
const Threshold = 0.6

// Match is a related market and its similarity score.
type Match struct {
	Market domain.Market `json:"market"`
	Score  float64       `json:"score"`
}

// Related returns the candidate from a different source whose title is most
// similar to target's. On equal scores the earlier candidate wins.
func Related(target domain.Market, candidates []domain.Market) (Match, bool) {
	title := []rune(strings.ToLower(target.Title))

	var best Match
	found := false
	for _, m := range candidates {
		if m.Source == target.Source || m.MarketID == target.MarketID {
			continue
		}
		score := ratio(title, []rune(strings.ToLower(m.Title)))
		if score < Threshold {
			continue
		}
		if !found || score > best.Score {
			best = Match{Market: m, Score: score}
			found = true
		}
	}
	return best, found
}

// Similarity returns the Ratcliff/Obershelp ratio of the lower-cased titles,
// in [0,1].
func Similarity(a, b string) float64 {
	return ratio([]rune(strings.ToLower(a)), []rune(strings.ToLower(b)))
}

// ratio is 2*M/T where M is the number of matched runes and T the total
// length of both inputs.
func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	return 2 * float64(matched(a, b)) / float64(total)
}

type span struct{ alo, ahi, blo, bhi int }

// matched sums the lengths of the matching blocks found by repeatedly taking
// the longest common substring and recursing on both sides of it.
func matched(a, b []rune) int {
	n := 0
	stack := []span{{0, len(a), 0, len(b)}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		i, j, k := longestMatch(a, b, s)
		if k == 0 {
			continue
		}
		n += k
		if s.alo < i && s.blo < j {
			stack = append(stack, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			stack = append(stack, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return n
}

// longestMatch finds the longest common substring of a[alo:ahi] and
// b[blo:bhi]. Ties resolve to the match starting earliest in a, then in b.
func longestMatch(a, b []rune, s span) (int, int, int) {
	besti, bestj, bestk := s.alo, s.blo, 0
	width := s.bhi - s.blo + 1
	prev := make([]int, width)
	cur := make([]int, width)
	for i := s.alo; i < s.ahi; i++ {
		for j := s.blo; j < s.bhi; j++ {
			c := j - s.blo + 1
			if a[i] != b[j] {
				cur[c] = 0
				continue
			}
			k := prev[c-1] + 1
			cur[c] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		prev, cur = cur, prev
	}
	return besti, bestj, bestk
}
