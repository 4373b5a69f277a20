package resolve

import "strings"

// TrigramSimilarity returns the Jaccard similarity of the padded character
// trigram sets of a and b, in [0,1]. This is the in-process equivalent of
// the pg_trgm similarity() used for SQL-side fuzzy matching elsewhere in
// the stack; matching here runs over in-memory stage tables.
func TrigramSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for g := range ta {
		if tb[g] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// trigrams returns the set of 3-grams of s, uppercased and padded with two
// leading and one trailing space as pg_trgm does.
func trigrams(s string) map[string]bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	padded := "  " + s + " "
	out := make(map[string]bool, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		out[padded[i:i+3]] = true
	}
	return out
}
