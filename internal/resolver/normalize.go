package resolver

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize case-folds s and collapses whitespace. With fuzzy set it also
// strips diacritics and turns punctuation into spaces, so "Beyoncé - Halo!"
// and "beyonce halo" normalize to the same string.
func Normalize(s string, fuzzy bool) string {
	if fuzzy {
		t := transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			runes.Map(punctuationToSpace),
			norm.NFC,
		)
		if folded, _, err := transform.String(t, s); err == nil {
			s = folded
		}
	}
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Tokens splits a normalized string into whitespace-delimited tokens
func Tokens(s string, fuzzy bool) []string {
	return strings.Fields(Normalize(s, fuzzy))
}

func punctuationToSpace(r rune) rune {
	if unicode.IsPunct(r) || unicode.IsSymbol(r) {
		return ' '
	}
	return r
}
