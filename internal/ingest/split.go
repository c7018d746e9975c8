// Package ingest turns raw submissions into individual measure texts.
package ingest

import (
	"strings"

	"github.com/pbaille/hot/internal/textnorm"
)

// SplitMeasures splits raw input on newlines, commas and semicolons.
// Blank pieces are dropped and repeats (after normalization) keep only
// their first occurrence.
func SplitMeasures(raw string) []string {
	pieces := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ',' || r == ';'
	})

	seen := make(map[string]bool, len(pieces))
	var out []string
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := textnorm.Key(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
