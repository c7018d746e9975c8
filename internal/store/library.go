package store

import (
	"errors"
	"sort"
	"strings"

	"github.com/pbaille/hot/internal/domain"
	"github.com/pbaille/hot/internal/textnorm"
)

// ErrNotFound is returned when an item or library entry does not exist
var ErrNotFound = errors.New("not found")

// LibraryOrder selects how library entries are sorted
type LibraryOrder string

const (
	// OrderReuse sorts by reuse count desc, then most recently updated.
	// This is the library fetch order seen by the matcher.
	OrderReuse  LibraryOrder = "reuse"
	OrderText   LibraryOrder = "text"
	OrderRecent LibraryOrder = "recent"
)

// ParseLibraryOrder maps "" to OrderReuse and rejects unknown values
func ParseLibraryOrder(s string) (LibraryOrder, bool) {
	switch LibraryOrder(s) {
	case "", OrderReuse:
		return OrderReuse, true
	case OrderText, OrderRecent:
		return LibraryOrder(s), true
	}
	return "", false
}

// LibraryQuery filters library listings
type LibraryQuery struct {
	// Search matches entries whose text contains it, case-insensitive
	Search   string
	Category domain.Category
	Order    LibraryOrder
}

// filterEntries applies q to entries in place order, then sorts.
// Used by the backends that cannot filter server-side.
func filterEntries(entries []domain.LibraryEntry, q LibraryQuery) []domain.LibraryEntry {
	search := textnorm.Key(q.Search)
	out := make([]domain.LibraryEntry, 0, len(entries))
	for _, e := range entries {
		if q.Category != domain.CategoryNone && e.Category != q.Category {
			continue
		}
		if search != "" && !strings.Contains(textnorm.Key(e.Text), search) {
			continue
		}
		out = append(out, e)
	}
	sortEntries(out, q.Order)
	return out
}

func sortEntries(entries []domain.LibraryEntry, order LibraryOrder) {
	switch order {
	case OrderText:
		sort.SliceStable(entries, func(i, j int) bool {
			return textnorm.Key(entries[i].Text) < textnorm.Key(entries[j].Text)
		})
	case OrderRecent:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].ReuseCount != entries[j].ReuseCount {
				return entries[i].ReuseCount > entries[j].ReuseCount
			}
			return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
		})
	}
}
