package catalog

import (
	"sort"
	"strings"

	"keywatch/internal/model"
)

const (
	// DefaultTopN is the number of results returned for UI selection.
	DefaultTopN = 10

	// Candidates scoring below the floor are dropped entirely.
	minSimilarity = 0.30

	// Fixed deduction for DLC/edition/bundle variants so base games win at
	// equal textual similarity.
	variantPenalty = 0.15
)

var variantMarkers = []string{
	"dlc", "season pass", "soundtrack", "ost", "expansion", "map pack",
	"bundle", "edition", "upgrade", "add-on", "addon", "dedicated server",
	"prepaid",
}

// Score ranks candidates against query and returns at most topN entries in
// descending score order. Pure and deterministic: ties break on shorter
// display name, then lexically. An empty candidate set or no match above
// the similarity floor yields an empty result, never an error.
func Score(query string, candidates []model.CatalogEntry, topN int) []model.ScoredEntry {
	if topN <= 0 {
		topN = DefaultTopN
	}
	q := normalize(query)
	if q == "" || len(candidates) == 0 {
		return nil
	}

	scored := make([]model.ScoredEntry, 0, topN*2)
	for _, c := range candidates {
		s := scoreOne(q, normalize(c.Name))
		if s < minSimilarity {
			continue
		}
		scored = append(scored, model.ScoredEntry{CatalogEntry: c, Score: s})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if len(scored[i].Name) != len(scored[j].Name) {
			return len(scored[i].Name) < len(scored[j].Name)
		}
		return scored[i].Name < scored[j].Name
	})

	if len(scored) > topN {
		scored = scored[:topN]
	}
	return scored
}

func scoreOne(query, name string) float64 {
	var s float64
	switch {
	case name == query:
		s = 1.0
	default:
		s = levenshteinSimilarity(query, name)
		if t := tokenOverlap(query, name); t > s {
			s = t
		}
		// Substring containment scores by how much of the candidate the
		// query covers, so "Game" ranks above "Game: Huge Bundle Pack".
		if strings.Contains(name, query) {
			if c := 0.60 + 0.35*float64(len(query))/float64(len(name)); c > s {
				s = c
			}
		}
	}

	if hasVariantMarker(name) && !hasVariantMarker(query) {
		s -= variantPenalty
	}
	if s < 0 {
		s = 0
	}
	return s
}

func hasVariantMarker(name string) bool {
	for _, m := range variantMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// normalize lowercases and strips punctuation so scoring compares words,
// not formatting.
func normalize(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

func tokenOverlap(a, b string) float64 {
	at := strings.Fields(a)
	bt := strings.Fields(b)
	if len(at) == 0 || len(bt) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(at))
	for _, t := range at {
		set[t] = struct{}{}
	}
	union := len(set)
	shared := 0
	for _, t := range bt {
		if _, ok := set[t]; ok {
			shared++
			delete(set, t)
			continue
		}
		union++
	}
	return float64(shared) / float64(union)
}

func levenshteinSimilarity(a, b string) float64 {
	ar := []rune(a)
	br := []rune(b)
	longest := len(ar)
	if len(br) > longest {
		longest = len(br)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ar, br))/float64(longest)
}

// levenshtein is the classic two-row edit-distance DP.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
