// Package otp runs the one-time-password verification leg of the enrollment
// wizard: a resend countdown, a debounced auto-verify, and a verification
// state machine sharing its attempt budget with form submission.
package otp

import (
	"sync"
	"time"
)

// Countdown is the single resend timer. It is deadline-based rather than
// tick-based: Remaining is computed from the stored deadline, so restoring
// a session mid-countdown re-arms the same timer instead of stacking a
// second one.
type Countdown struct {
	mu       sync.Mutex
	deadline time.Time
}

// Start arms the countdown for the full duration, replacing any countdown
// already running.
func (c *Countdown) Start(now time.Time, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = now.Add(d)
}

// Resume arms the countdown with the remainder carried over from a restored
// session. A non-positive remainder leaves the countdown expired.
func (c *Countdown) Resume(now time.Time, remaining time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remaining <= 0 {
		c.deadline = time.Time{}
		return
	}
	c.deadline = now.Add(remaining)
}

// Cancel expires the countdown immediately.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = time.Time{}
}

// Remaining reports the whole seconds left, zero once expired.
func (c *Countdown) Remaining(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deadline.IsZero() {
		return 0
	}
	left := c.deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// Active reports whether the countdown is still running.
func (c *Countdown) Active(now time.Time) bool {
	return c.Remaining(now) > 0
}
