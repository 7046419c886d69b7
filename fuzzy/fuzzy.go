// Package fuzzy matches search queries against translation texts.
//
// IsSubsequence is the boolean filter used by translation search: the query
// must appear in the candidate in order, not necessarily contiguously.
// Rank is an opt-in scored variant for interactive listings.
package fuzzy

import (
	"strings"
	"unicode"

	ranker "github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalize case-folds s and puts it in NFC so that composed and decomposed
// accents compare equal.
func normalize(s string) string {
	return norm.NFC.String(cases.Fold().String(s))
}

// stripSpace removes all whitespace from s.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// IsSubsequence reports whether query occurs in candidate as a subsequence,
// ignoring case. Whitespace is removed from the query only.
func IsSubsequence(query, candidate string) bool {
	q := []rune(normalize(stripSpace(query)))
	c := []rune(normalize(candidate))

	if len(q) > len(c) {
		return false
	}
	if len(q) == len(c) {
		return string(q) == string(c)
	}

	j := 0
outer:
	for _, qr := range q {
		for j < len(c) {
			j++
			if c[j-1] == qr {
				continue outer
			}
		}
		return false
	}
	return true
}

// Ranked is a candidate index with its match score, higher is better.
type Ranked struct {
	Index int
	Score int
}

// Rank scores the candidates matching query, best first. Ties keep the
// candidates' original order.
func Rank(query string, candidates []string) []Ranked {
	q := normalize(stripSpace(query))
	if q == "" {
		out := make([]Ranked, len(candidates))
		for i := range candidates {
			out[i] = Ranked{Index: i}
		}
		return out
	}

	folded := make([]string, len(candidates))
	for i, c := range candidates {
		folded[i] = normalize(c)
	}

	matches := ranker.Find(q, folded)
	out := make([]Ranked, 0, len(matches))
	for _, m := range matches {
		out = append(out, Ranked{Index: m.Index, Score: m.Score})
	}
	return out
}
