// Package system provides wall and fixed clocks.
package system

import "time"

// Clock implements crawler.Clock with the wall clock in UTC.
type Clock struct{}

// New returns a wall Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns T. Tests use it to pin timestamps.
type Fixed struct {
	T time.Time
}

// Now returns f.T.
func (f Fixed) Now() time.Time {
	return f.T
}
