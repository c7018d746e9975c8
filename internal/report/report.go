// Package report renders the library for export and summarizes it.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pbaille/hot/internal/domain"
)

// WriteCSV writes entries as semicolon-separated rows with a header
func WriteCSV(w io.Writer, entries []domain.LibraryEntry) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write([]string{"Category", "Measure", "ReuseCount"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range entries {
		row := []string{e.Category.Label(), e.Text, strconv.Itoa(e.ReuseCount)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteText writes a plain-text listing grouped by category
func WriteText(w io.Writer, entries []domain.LibraryEntry, now time.Time) error {
	groups := groupByCategory(entries)

	if _, err := fmt.Fprintf(w, "H/O/T measure library\nGenerated: %s\nTotal: %d\n",
		now.Format("2006-01-02 15:04"), len(entries)); err != nil {
		return err
	}

	for _, cat := range domain.Categories {
		group := groups[cat]
		if len(group) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n%s (%d)\n", cat.Label(), len(group)); err != nil {
			return err
		}
		for _, e := range group {
			if _, err := fmt.Fprintf(w, "  - %s (reused %dx)\n", e.Text, e.ReuseCount); err != nil {
				return err
			}
		}
	}
	return nil
}

func groupByCategory(entries []domain.LibraryEntry) map[domain.Category][]domain.LibraryEntry {
	groups := make(map[domain.Category][]domain.LibraryEntry, len(domain.Categories))
	for _, e := range entries {
		groups[e.Category] = append(groups[e.Category], e)
	}
	return groups
}

// Stats summarizes the library
type Stats struct {
	Total       int                     `json:"total"`
	ByCategory  map[domain.Category]int `json:"by_category"`
	TotalReuses int                     `json:"total_reuses"`
	// MostReused is nil for an empty library
	MostReused *domain.LibraryEntry `json:"most_reused,omitempty"`
}

// Summarize computes Stats over entries
func Summarize(entries []domain.LibraryEntry) Stats {
	s := Stats{
		Total:      len(entries),
		ByCategory: make(map[domain.Category]int, len(domain.Categories)),
	}
	for _, cat := range domain.Categories {
		s.ByCategory[cat] = 0
	}
	for i, e := range entries {
		s.ByCategory[e.Category]++
		s.TotalReuses += e.ReuseCount
		if s.MostReused == nil || e.ReuseCount > s.MostReused.ReuseCount {
			s.MostReused = &entries[i]
		}
	}
	return s
}
