// Package system provides the clocks the crawl controller reads "now" from.
package system

import "time"

// Clock implements perm.Clock using the process wall clock.
type Clock struct{}

// New creates a wall Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current instant in UTC. Callers convert to the source zone.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a perm.Clock frozen at one instant. Replays of a past "latest"
// crawl and tests use it.
type Fixed struct {
	At time.Time
}

// Now returns f.At normalized to UTC.
func (f Fixed) Now() time.Time {
	return f.At.UTC()
}
