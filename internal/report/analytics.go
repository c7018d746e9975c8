package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pbaille/hot/internal/domain"
)

// Period is the look-back window of an analytics query
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ErrUnknownPeriod is returned by ParsePeriod for unrecognized names
var ErrUnknownPeriod = errors.New("unknown period")

var periodAliases = map[string]Period{
	"day": PeriodDay, "dia": PeriodDay,
	"week": PeriodWeek, "semana": PeriodWeek,
	"month": PeriodMonth, "mes": PeriodMonth, "mês": PeriodMonth,
	"year": PeriodYear, "ano": PeriodYear,
}

// ParsePeriod accepts English or Portuguese period names. Blank means a month.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PeriodMonth, nil
	}
	p, ok := periodAliases[s]
	if !ok {
		return "", fmt.Errorf("%w %q (want day, week, month or year)", ErrUnknownPeriod, s)
	}
	return p, nil
}

// Start returns the beginning of the window that ends at now
func (p Period) Start(now time.Time) time.Time {
	switch p {
	case PeriodDay:
		return now.AddDate(0, 0, -1)
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodYear:
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, -1, 0)
	}
}

// WindowData is what the stores report for one window
type WindowData struct {
	Period Period
	Since  time.Time
	Now    time.Time

	ItemsByStatus map[domain.ItemStatus]int
	Confirmations map[domain.Category]int
	// Library may hold the whole library; entries created before Since are skipped
	Library             []domain.LibraryEntry
	AutoConfirmations   int
	ManualConfirmations int
	// Recent is newest first and may reach past Since
	Recent []domain.Activity
}

// Analytics summarizes review work over a window
type Analytics struct {
	Period        Period                  `json:"period"`
	Since         time.Time               `json:"since"`
	GeneratedAt   time.Time               `json:"generated_at"`
	Items         ItemTotals              `json:"items"`
	Confirmations map[domain.Category]int `json:"confirmations"`
	Library       LibraryWindow           `json:"library"`
	Efficiency    Efficiency              `json:"efficiency"`
	Recent        []domain.Activity       `json:"recent_activity"`
}

// ItemTotals counts items created in the window
type ItemTotals struct {
	Total         int `json:"total"`
	Confirmed     int `json:"confirmed"`
	Pending       int `json:"pending"`
	PendingReview int `json:"pending_review"`
	Unclassified  int `json:"unclassified"`
	// ClassificationRate is the confirmed share in percent
	ClassificationRate float64 `json:"classification_rate"`
}

// LibraryWindow counts library entries added in the window
type LibraryWindow struct {
	Added      int                     `json:"added"`
	ByCategory map[domain.Category]int `json:"by_category"`
	Reuses     int                     `json:"reuses"`
}

// Efficiency splits confirmations between auto-classification and reviewers.
// Both percentages are 0 when nothing was confirmed.
type Efficiency struct {
	Auto          int     `json:"auto"`
	Manual        int     `json:"manual"`
	AutoPercent   float64 `json:"auto_percent"`
	ManualPercent float64 `json:"manual_percent"`
}

const recentLimit = 10

// BuildAnalytics computes the summary for one window
func BuildAnalytics(d WindowData) Analytics {
	a := Analytics{
		Period:        d.Period,
		Since:         d.Since,
		GeneratedAt:   d.Now,
		Confirmations: zeroCategories(),
		Library:       LibraryWindow{ByCategory: zeroCategories()},
		Recent:        []domain.Activity{},
	}

	for status, n := range d.ItemsByStatus {
		a.Items.Total += n
		switch status {
		case domain.StatusConfirmed:
			a.Items.Confirmed += n
		case domain.StatusPending:
			a.Items.Pending += n
		case domain.StatusPendingReview:
			a.Items.PendingReview += n
		case domain.StatusUnclassified:
			a.Items.Unclassified += n
		}
	}
	a.Items.ClassificationRate = percent(a.Items.Confirmed, a.Items.Total)

	for cat, n := range d.Confirmations {
		if cat.Valid() {
			a.Confirmations[cat] += n
		}
	}

	for _, e := range d.Library {
		if e.CreatedAt.Before(d.Since) {
			continue
		}
		a.Library.Added++
		a.Library.ByCategory[e.Category]++
		a.Library.Reuses += e.ReuseCount
	}

	a.Efficiency = Efficiency{Auto: d.AutoConfirmations, Manual: d.ManualConfirmations}
	if total := d.AutoConfirmations + d.ManualConfirmations; total > 0 {
		a.Efficiency.AutoPercent = percent(d.AutoConfirmations, total)
		a.Efficiency.ManualPercent = 100 - a.Efficiency.AutoPercent
	}

	for _, act := range d.Recent {
		if len(a.Recent) == recentLimit {
			break
		}
		if act.CreatedAt.Before(d.Since) {
			continue
		}
		a.Recent = append(a.Recent, act)
	}
	return a
}

// DailyPoint is one day of the temporal series
type DailyPoint struct {
	Date       string `json:"date"`
	Created    int    `json:"created"`
	Classified int    `json:"classified"`
}

// Temporal is a per-day series covering a window
type Temporal struct {
	Period Period       `json:"period"`
	Since  time.Time    `json:"since"`
	Points []DailyPoint `json:"points"`
}

const dayLayout = "2006-01-02"

// BuildTemporal lays created and classified counts, keyed by UTC date, over
// every day from since to now inclusive. Days without records are zero.
func BuildTemporal(p Period, since, now time.Time, created, classified map[string]int) Temporal {
	t := Temporal{Period: p, Since: since, Points: []DailyPoint{}}

	day := truncateDay(since)
	last := truncateDay(now)
	for !day.After(last) {
		key := day.Format(dayLayout)
		t.Points = append(t.Points, DailyPoint{
			Date:       key,
			Created:    created[key],
			Classified: classified[key],
		})
		day = day.AddDate(0, 0, 1)
	}
	return t
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func zeroCategories() map[domain.Category]int {
	m := make(map[domain.Category]int, len(domain.Categories))
	for _, cat := range domain.Categories {
		m[cat] = 0
	}
	return m
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// WriteAnalytics writes a plain-text rendering of a
func WriteAnalytics(w io.Writer, a Analytics) error {
	_, err := fmt.Fprintf(w,
		"Period: %s (since %s)\nItems: %d total, %d confirmed, %d pending, %d awaiting review, %d unclassified\nClassification rate: %.1f%%\n",
		a.Period, a.Since.Format("2006-01-02 15:04"),
		a.Items.Total, a.Items.Confirmed, a.Items.Pending, a.Items.PendingReview, a.Items.Unclassified,
		a.Items.ClassificationRate,
	)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w, "\nConfirmations:"); err != nil {
		return err
	}
	for _, cat := range domain.Categories {
		if _, err := fmt.Fprintf(w, "  %s: %d\n", cat.Label(), a.Confirmations[cat]); err != nil {
			return err
		}
	}

	_, err = fmt.Fprintf(w,
		"\nLibrary: %d added, %d reuses\nAuto: %d (%.1f%%)  Manual: %d (%.1f%%)\n",
		a.Library.Added, a.Library.Reuses,
		a.Efficiency.Auto, a.Efficiency.AutoPercent, a.Efficiency.Manual, a.Efficiency.ManualPercent,
	)
	return err
}

// WriteTemporal writes one line per day
func WriteTemporal(w io.Writer, t Temporal) error {
	if _, err := fmt.Fprintln(w, "Date        Created  Classified"); err != nil {
		return err
	}
	for _, p := range t.Points {
		if _, err := fmt.Fprintf(w, "%s  %7d  %10d\n", p.Date, p.Created, p.Classified); err != nil {
			return err
		}
	}
	return nil
}
