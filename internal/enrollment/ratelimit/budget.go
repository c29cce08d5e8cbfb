// Package ratelimit guards the enrollment endpoints that cost money or spam
// the customer: form submission and OTP verification draw from one shared
// attempt budget, and submissions additionally observe a short cooldown.
package ratelimit

import (
	"sync"
	"time"
)

// Budget is the per-session attempt ledger. Submissions and OTP
// verifications charge the same counter; once the ceiling is reached the
// session is locked out until the inactivity reset elapses.
type Budget struct {
	mu          sync.Mutex
	max         int
	cooldown    time.Duration
	resetAfter  time.Duration
	attempts    int
	lastAttempt time.Time
}

// NewBudget returns an unused budget.
func NewBudget(max int, cooldown, resetAfter time.Duration) *Budget {
	return &Budget{max: max, cooldown: cooldown, resetAfter: resetAfter}
}

// Restore seeds the counter from a persisted snapshot. The last-attempt
// time comes from the snapshot's submission timestamp when present.
func (b *Budget) Restore(attempts int, lastAttempt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = attempts
	b.lastAttempt = lastAttempt
}

// Attempts reports the charges so far, applying the inactivity reset first.
func (b *Budget) Attempts(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeResetLocked(now)
	return b.attempts
}

// Exhausted reports whether the ceiling has been reached.
func (b *Budget) Exhausted(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeResetLocked(now)
	return b.attempts >= b.max
}

// Remaining reports the attempts left before lockout.
func (b *Budget) Remaining(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeResetLocked(now)
	if left := b.max - b.attempts; left > 0 {
		return left
	}
	return 0
}

// InCooldown reports whether a charge landed within the cooldown window,
// and how long until the window opens again.
func (b *Budget) InCooldown(now time.Time) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeResetLocked(now)
	if b.lastAttempt.IsZero() {
		return 0, false
	}
	elapsed := now.Sub(b.lastAttempt)
	if elapsed < b.cooldown {
		return b.cooldown - elapsed, true
	}
	return 0, false
}

// Snapshot reports the counter and the last charge time for persistence,
// applying the inactivity reset first.
func (b *Budget) Snapshot(now time.Time) (int, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeResetLocked(now)
	return b.attempts, b.lastAttempt
}

// Charge consumes one attempt and returns the new count. The charge is
// recorded before the guarded operation runs, so a failed or timed-out
// operation still costs an attempt.
func (b *Budget) Charge(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeResetLocked(now)
	b.attempts++
	b.lastAttempt = now
	return b.attempts
}

// Reset clears the budget, e.g. after a verified enrollment.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
	b.lastAttempt = time.Time{}
}

func (b *Budget) maybeResetLocked(now time.Time) {
	if b.attempts == 0 || b.lastAttempt.IsZero() {
		return
	}
	if now.Sub(b.lastAttempt) >= b.resetAfter {
		b.attempts = 0
		b.lastAttempt = time.Time{}
	}
}
