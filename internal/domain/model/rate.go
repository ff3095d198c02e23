package model

import "time"

// RatePolicy is a fixed-window budget for one endpoint class.
type RatePolicy struct {
	MaxRequests int
	Window      time.Duration
}

// RateWindow is the current state of one (endpoint class, identifier) counter.
type RateWindow struct {
	Count   int
	ResetAt time.Time
}

// RateDecision is returned on every request so callers can back off.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time left until the window resets, never negative.
func (d RateDecision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.After(now) {
		return d.ResetAt.Sub(now)
	}
	return 0
}
