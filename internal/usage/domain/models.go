// Package domain contains the raw and aggregated usage types.
package domain

import (
	"errors"
	"sort"
	"time"

	"github.com/smallbiznis/meterline/internal/period"
)

// Event is one append-only metered record handed to the engine by upstream
// systems. Metadata is opaque and never interpreted.
type Event struct {
	ID         string
	CustomerID string
	ProductID  string
	Quantity   int64
	Timestamp  time.Time
	Metadata   map[string]any
}

// Key addresses one aggregation bucket.
type Key struct {
	CustomerID string
	ProductID  string
	Period     period.Period
}

// Aggregate is the folded total for a key. Derived and recomputable; the
// same multiset of events always produces the same aggregate.
type Aggregate struct {
	Key        Key
	Quantity   int64
	EventCount int
}

// AggregateSet maps keys to folded totals.
type AggregateSet map[Key]*Aggregate

// Sorted returns the aggregates in canonical order: customer, product,
// period start. Iterating the map directly is never deterministic.
func (s AggregateSet) Sorted() []Aggregate {
	out := make([]Aggregate, 0, len(s))
	for _, agg := range s {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.CustomerID != b.CustomerID {
			return a.CustomerID < b.CustomerID
		}
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		return a.Period.Start.Before(b.Period.Start)
	})
	return out
}

// Rejection records an event the fold refused, with the offending key
// context preserved for the run's error manifest.
type Rejection struct {
	EventID    string
	CustomerID string
	ProductID  string
	Err        error
}

var (
	ErrDuplicateEventID = errors.New("duplicate_event_id")
	ErrInvalidUsage     = errors.New("invalid_usage")
	ErrMissingEventID   = errors.New("missing_event_id")
)
