// Package matcher looks up texts in the library by exact normalized text
// or by shared significant words.
package matcher

import (
	"unicode/utf8"

	"github.com/pbaille/hot/internal/domain"
	"github.com/pbaille/hot/internal/textnorm"
)

const (
	// MinTokenLen is exclusive: only tokens longer than this count
	MinTokenLen = 3
	// MinOverlap is the number of shared tokens needed for a partial match
	MinOverlap = 2
)

// FindExact returns the entry whose normalized text equals the query's
func FindExact(text string, entries []domain.LibraryEntry) *domain.LibraryEntry {
	key := textnorm.Key(text)
	if key == "" {
		return nil
	}
	for i := range entries {
		if entryKey(&entries[i]) == key {
			return &entries[i]
		}
	}
	return nil
}

// FindPartial returns the entry sharing the most significant tokens with
// text, provided it shares at least MinOverlap. Ties go to the higher
// reuse count, then to the earlier entry.
func FindPartial(text string, entries []domain.LibraryEntry) *domain.LibraryEntry {
	query := significant(text)
	if len(query) < MinOverlap {
		return nil
	}

	var best *domain.LibraryEntry
	bestOverlap := 0
	for i := range entries {
		e := &entries[i]
		n := overlap(query, significant(e.Text))
		if n < MinOverlap {
			continue
		}
		if best == nil || n > bestOverlap || (n == bestOverlap && e.ReuseCount > best.ReuseCount) {
			best = e
			bestOverlap = n
		}
	}
	return best
}

// Overlap counts distinct significant tokens shared by a and b
func Overlap(a, b string) int {
	return overlap(significant(a), significant(b))
}

func overlap(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			n++
		}
	}
	return n
}

func significant(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range textnorm.Tokens(text) {
		if utf8.RuneCountInString(tok) > MinTokenLen {
			out[tok] = struct{}{}
		}
	}
	return out
}

func entryKey(e *domain.LibraryEntry) string {
	if e.Key != "" {
		// re-normalize: entries may come from a backend or import that did not go through Confirm
		return textnorm.Key(e.Key)
	}
	return textnorm.Key(e.Text)
}
