// Package period defines the billing period value type. A period is a fixed
// UTC window derived from a timestamp by truncation; there is no process-wide
// "current period" state, callers pass periods explicitly.
package period

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Granularity selects the billing window size.
type Granularity string

const (
	Monthly Granularity = "month"
	Daily   Granularity = "day"
)

var ErrInvalidGranularity = errors.New("invalid_granularity")

// ParseGranularity normalizes a configured granularity string.
func ParseGranularity(value string) (Granularity, error) {
	switch Granularity(strings.ToLower(strings.TrimSpace(value))) {
	case Monthly:
		return Monthly, nil
	case Daily:
		return Daily, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, value)
	}
}

// Period is a half-open window [Start, End) at a fixed granularity.
type Period struct {
	Start       time.Time
	Granularity Granularity
}

// Of truncates a timestamp to the period containing it.
func Of(t time.Time, g Granularity) Period {
	t = t.UTC()
	switch g {
	case Daily:
		return Period{
			Start:       time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
			Granularity: Daily,
		}
	default:
		return Period{
			Start:       time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC),
			Granularity: Monthly,
		}
	}
}

// End returns the exclusive upper bound of the period.
func (p Period) End() time.Time {
	switch p.Granularity {
	case Daily:
		return p.Start.AddDate(0, 0, 1)
	default:
		return p.Start.AddDate(0, 1, 0)
	}
}

// Contains reports whether t falls inside [Start, End).
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start) && t.Before(p.End())
}

// ClosedAt reports whether the period has fully elapsed at the given instant.
// Charges for periods that are still open are provisional.
func (p Period) ClosedAt(now time.Time) bool {
	return !now.UTC().Before(p.End())
}

// Key returns the canonical key used to bucket usage, e.g. "2024-11" for a
// monthly period or "2024-11-03" for a daily one.
func (p Period) Key() string {
	switch p.Granularity {
	case Daily:
		return p.Start.Format("2006-01-02")
	default:
		return p.Start.Format("2006-01")
	}
}

func (p Period) String() string { return p.Key() }
