// Package textnorm holds the text normalization shared by the keyword
// classifier and the library matcher.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key lowercases, trims and collapses internal whitespace.
// Two texts with the same Key are the same library entry.
func Key(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Fold is Key with diacritics stripped ("Conscientização" -> "conscientizacao").
func Fold(text string) string {
	// transform.Chain keeps state, so build one per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, Key(text))
	if err != nil {
		return Key(text)
	}
	return folded
}

// Tokens splits the lowercased text on whitespace
func Tokens(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// WordCount returns the number of whitespace-separated words
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Excerpt returns the first n runes of text, with "..." appended when cut
func Excerpt(text string, n int) string {
	text = strings.TrimSpace(text)
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	r := []rune(text)
	return string(r[:n]) + "..."
}
