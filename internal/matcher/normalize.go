package matcher

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases s, folds diacritics, turns punctuation into spaces
// and collapses whitespace: "Zürich-Nord  Ph.2" -> "zurich nord ph 2".
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// tokens splits a normalized string.
func tokens(s string) []string {
	return strings.Fields(s)
}

func sortedTokens(s string) string {
	toks := tokens(s)
	sort.Strings(toks)
	return strings.Join(toks, " ")
}
