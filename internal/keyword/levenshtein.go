package keyword

import (
	"strings"
	"unicode"
)

// LevenshteinDistance returns the number of single-rune insertions, deletions or
// substitutions needed to turn a into b.
func LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// WithinDistance reports whether a and b are at most max edits apart.
func WithinDistance(a, b string, max int) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	if la-lb > max || lb-la > max {
		return false
	}
	return LevenshteinDistance(a, b) <= max
}

// Terms splits text into unique lowercase letter/number runs in order of appearance.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// MatchesAny reports whether word is within maxDist edits of any of the lowercase terms.
func MatchesAny(word string, terms []string, maxDist int) bool {
	w := strings.ToLower(word)
	for _, t := range terms {
		if WithinDistance(w, t, maxDist) {
			return true
		}
	}
	return false
}
