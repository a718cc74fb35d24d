// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements jobs.Clock. Times are UTC with the monotonic reading
// stripped, so they compare equal after a JSON or database round trip.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Round(0)
}
