package index

import (
	"strings"
	"unicode"
)

// Tokenize lowercases the text and splits it on every run of
// non-alphanumeric characters. Digits are kept so identifiers like
// "ipv6" survive intact.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	return strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// termCounts returns the raw term frequency of each token.
func termCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	return counts
}
