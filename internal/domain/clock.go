package domain

import "time"

// Clock provides the current time. The dev identity backend and the token
// minter take it as a dependency so code expiry can be driven from tests.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

// Expired reports whether deadline is strictly before the clock's current time.
// A zero deadline never expires.
func Expired(c Clock, deadline time.Time) bool {
	if deadline.IsZero() {
		return false
	}
	return c.Now().After(deadline)
}

var _ Clock = RealClock{}
