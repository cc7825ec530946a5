// Package system is the wall clock used outside tests.
package system

import "time"

// Clock reports the current time in UTC so job timestamps serialize
// consistently regardless of the host's zone.
type Clock struct{}

// New returns a Clock.
func New() Clock {
	return Clock{}
}

// Now implements crawler.Clock.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
