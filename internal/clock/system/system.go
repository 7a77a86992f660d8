// Package system provides the wall-clock implementation of scrape.Clock.
package system

import "time"

// Clock reports real time in UTC.
type Clock struct{}

// New constructs a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (c *Clock) Now() time.Time {
	return time.Now().UTC()
}
