package catalog

import (
	"strings"
	"unicode"
)

// normalize lowercases s and reduces punctuation to single spaces.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "'", "")
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

// tokens splits s into normalized, singular words.
func tokens(s string) []string {
	fields := strings.Fields(normalize(s))
	for i, f := range fields {
		fields[i] = singular(f)
	}
	return fields
}

func singular(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 4 && (strings.HasSuffix(w, "ches") || strings.HasSuffix(w, "shes") || strings.HasSuffix(w, "xes")):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}

// tokenMatch compares two normalized tokens, allowing small typos on
// longer words.
func tokenMatch(a, b string) bool {
	if a == b {
		return true
	}
	n := min(len([]rune(a)), len([]rune(b)))
	allowed := 0
	switch {
	case n >= 8:
		allowed = 2
	case n >= 4:
		allowed = 1
	}
	if allowed == 0 {
		return false
	}
	return levenshtein(a, b, allowed) <= allowed
}

// phraseMatch reports whether every token of want appears in have.
func phraseMatch(want, have string) bool {
	wt := tokens(want)
	if len(wt) == 0 {
		return false
	}
	ht := tokens(have)
	for _, w := range wt {
		found := false
		for _, h := range ht {
			if tokenMatch(w, h) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// levenshtein returns the edit distance between a and b, stopping early
// once it is certain to exceed limit.
func levenshtein(a, b string, limit int) int {
	ra, rb := []rune(a), []rune(b)
	if d := len(ra) - len(rb); d > limit || -d > limit {
		return limit + 1
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, cur[j])
		}
		if rowMin > limit {
			return limit + 1
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
