// Package billingperiod computes billing period boundaries. All periods are
// half-open UTC windows [Start, End).
package billingperiod

import (
	"errors"
	"time"
)

// Granularity selects the period length for a bucket or fixed fee.
type Granularity string

const (
	GranularityMonthly Granularity = "monthly"
	GranularityWeekly  Granularity = "weekly"
)

var ErrInvalidGranularity = errors.New("invalid_granularity")

type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// For returns the period containing t. Monthly periods run from the first of
// the month; weekly periods start Monday.
func For(t time.Time, g Granularity) (Period, error) {
	t = t.UTC()
	switch g {
	case GranularityMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: start.AddDate(0, 1, 0)}, nil
	case GranularityWeekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		start := day.AddDate(0, 0, -offset)
		return Period{Start: start, End: start.AddDate(0, 0, 7)}, nil
	default:
		return Period{}, ErrInvalidGranularity
	}
}

// Previous returns the period immediately before p, assuming p was produced
// by For with the same granularity.
func Previous(p Period, g Granularity) (Period, error) {
	return For(p.Start.Add(-time.Second), g)
}

// Days returns the number of whole days covered by the period.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours() / 24)
}

// Contains reports whether t falls inside the half-open window.
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start) && t.Before(p.End)
}

// Key is a stable string form used in lock keys and log fields.
func (p Period) Key() string {
	return p.Start.Format("2006-01-02")
}

func (p Period) IsZero() bool {
	return p.Start.IsZero() && p.End.IsZero()
}
