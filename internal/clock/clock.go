// Package clock abstracts wall-clock reads so period closedness decisions
// stay testable. Engine code never calls time.Now directly.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// New returns the system clock.
func New() Clock { return systemClock{} }
