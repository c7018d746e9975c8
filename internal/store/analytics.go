package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pbaille/hot/internal/domain"
)

// Window filters compare through julianday so rows written with different
// zone offsets still order correctly. Day buckets are UTC dates.

// SetClock replaces the clock used to stamp rows
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// CountItemsByStatus counts items created at or after since, per status
func (s *Store) CountItemsByStatus(ctx context.Context, since time.Time) (map[domain.ItemStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM items WHERE julianday(created_at) >= julianday(?) GROUP BY status",
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	counts, err := scanCounts(rows)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}

	out := make(map[domain.ItemStatus]int, len(counts))
	for k, n := range counts {
		out[domain.ItemStatus(k)] = n
	}
	return out, nil
}

// CountConfirmedByCategory counts items confirmed at or after since, per category
func (s *Store) CountConfirmedByCategory(ctx context.Context, since time.Time) (map[domain.Category]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT confirmed_category, COUNT(*) FROM items
		WHERE status = ? AND confirmed_category IS NOT NULL AND julianday(updated_at) >= julianday(?)
		GROUP BY confirmed_category`,
		string(domain.StatusConfirmed), since,
	)
	if err != nil {
		return nil, fmt.Errorf("count confirmations: %w", err)
	}
	counts, err := scanCounts(rows)
	if err != nil {
		return nil, fmt.Errorf("count confirmations: %w", err)
	}

	out := make(map[domain.Category]int, len(counts))
	for k, n := range counts {
		out[domain.Category(k)] = n
	}
	return out, nil
}

// CountActivityByAction counts activity records at or after since, per action
func (s *Store) CountActivityByAction(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT action, COUNT(*) FROM activity WHERE julianday(created_at) >= julianday(?) GROUP BY action",
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("count activity: %w", err)
	}
	out, err := scanCounts(rows)
	if err != nil {
		return nil, fmt.Errorf("count activity: %w", err)
	}
	return out, nil
}

// DailyItemCounts counts items created at or after since, keyed by UTC date (YYYY-MM-DD)
func (s *Store) DailyItemCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT date(created_at), COUNT(*) FROM items WHERE julianday(created_at) >= julianday(?) GROUP BY 1",
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("daily items: %w", err)
	}
	out, err := scanCounts(rows)
	if err != nil {
		return nil, fmt.Errorf("daily items: %w", err)
	}
	return out, nil
}

// DailyActivityCounts counts activity records with one of actions at or
// after since, keyed by UTC date. No actions means no rows.
func (s *Store) DailyActivityCounts(ctx context.Context, since time.Time, actions ...string) (map[string]int, error) {
	if len(actions) == 0 {
		return map[string]int{}, nil
	}

	args := make([]any, 0, len(actions)+1)
	args = append(args, since)
	for _, a := range actions {
		args = append(args, a)
	}
	query := fmt.Sprintf(
		"SELECT date(created_at), COUNT(*) FROM activity WHERE julianday(created_at) >= julianday(?) AND action IN (%s) GROUP BY 1",
		strings.TrimSuffix(strings.Repeat("?,", len(actions)), ","),
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("daily activity: %w", err)
	}
	out, err := scanCounts(rows)
	if err != nil {
		return nil, fmt.Errorf("daily activity: %w", err)
	}
	return out, nil
}

func scanCounts(rows *sql.Rows) (map[string]int, error) {
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key sql.NullString
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key.String] += n
	}
	return out, rows.Err()
}
