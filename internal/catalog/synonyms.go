package catalog

// Synonyms pairs color words with the stones customers mean by them. Every
// pair applies in both directions.
var Synonyms = [][2]string{
	{"green", "emerald"},
	{"red", "ruby"},
	{"white", "diamond"},
	{"blue", "sapphire"},
	{"blue", "aquamarine"},
	{"pink", "pink sapphire"},
}

// Expand returns term followed by every synonym of it.
func Expand(term string) []string {
	out := []string{term}
	if len(tokens(term)) == 0 {
		return out
	}
	for _, pair := range Synonyms {
		switch {
		case sameTerm(term, pair[0]):
			out = append(out, pair[1])
		case sameTerm(term, pair[1]):
			out = append(out, pair[0])
		}
	}
	return out
}

// Equivalent reports whether a and b name the same stone or color, either
// directly or through the synonym table. It is symmetric.
func Equivalent(a, b string) bool {
	for _, x := range Expand(a) {
		if sameTerm(x, b) {
			return true
		}
	}
	return false
}

// sameTerm reports whether a and b carry the same words, modulo case,
// plurals and small typos.
func sameTerm(a, b string) bool {
	return phraseMatch(a, b) && phraseMatch(b, a)
}
