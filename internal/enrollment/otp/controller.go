package otp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Space2024/chitenv/internal/enrollment/ratelimit"
	"github.com/Space2024/chitenv/internal/enrollment/remote"
	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
	"github.com/Space2024/chitenv/pkg/requestcontext"
)

// Status is the verification state. Transitions only move forward within
// one challenge: Idle -> Sent -> Verifying -> Verified/Failed, with
// LockedOut terminal until the budget's inactivity reset.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSent      Status = "sent"
	StatusVerifying Status = "verifying"
	StatusVerified  Status = "verified"
	StatusFailed    Status = "failed"
	StatusLockedOut Status = "locked_out"
)

// CodeLength is the expected OTP length; shorter input never triggers an
// automatic verification.
const CodeLength = 6

// Config carries the controller's timing knobs.
type Config struct {
	CountdownWindow time.Duration // resend lockout after each send
	Debounce        time.Duration // quiet period before auto-verify fires
}

// Controller drives one OTP challenge. Verification attempts charge the
// shared budget before the network call, so a timeout costs the same as a
// rejection.
type Controller struct {
	client remote.Client
	budget *ratelimit.Budget
	logger *slog.Logger
	cfg    Config

	mu         sync.Mutex
	countdown  Countdown
	status     Status
	mobile     string
	sessionID  string
	pending    *time.Timer
	generation uint64

	onVerified func(context.Context)
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithVerifiedCallback registers the hook run once after a successful
// verification, outside the controller's lock.
func WithVerifiedCallback(fn func(context.Context)) Option {
	return func(c *Controller) { c.onVerified = fn }
}

// New returns an idle controller.
func New(client remote.Client, budget *ratelimit.Budget, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		budget: budget,
		logger: slog.Default(),
		cfg:    cfg,
		status: StatusIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Arm records that a challenge was sent to the given mobile and starts the
// resend countdown from the full window.
func (c *Controller) Arm(now time.Time, mobile, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusSent
	c.mobile = mobile
	c.sessionID = sessionID
	c.countdown.Start(now, c.cfg.CountdownWindow)
}

// Resume rebuilds controller state from a restored session: the countdown
// picks up whatever remains of the original window instead of restarting.
func (c *Controller) Resume(now time.Time, sentAt time.Time, mobile, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusSent
	c.mobile = mobile
	c.sessionID = sessionID
	c.countdown.Resume(now, c.cfg.CountdownWindow-now.Sub(sentAt))
}

// Status reports the current verification state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ResendRemaining reports the seconds before another resend is allowed.
func (c *Controller) ResendRemaining(now time.Time) int {
	return c.countdown.Remaining(now)
}

// Offer records a partially-typed code. A complete numeric code arms the
// debounced auto-verify; anything else cancels a pending one. Each new offer
// restarts the quiet period.
func (c *Controller) Offer(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	if !validCode(code) {
		return
	}
	if c.status == StatusVerifying || c.status == StatusVerified || c.status == StatusLockedOut {
		return
	}

	gen := c.generation
	c.pending = time.AfterFunc(c.cfg.Debounce, func() {
		c.mu.Lock()
		stale := gen != c.generation
		c.mu.Unlock()
		if stale {
			return
		}
		if _, err := c.Verify(context.Background(), code); err != nil {
			c.logger.Warn("auto verification failed", "error", err)
		}
	})
}

// Verify submits the code upstream. The attempt is charged before the call;
// acceptance fires the verified callback, rejection moves to Failed, and the
// fifth failure locks the challenge out.
func (c *Controller) Verify(ctx context.Context, code string) (bool, error) {
	now := requestcontext.Now(ctx)

	c.mu.Lock()
	if c.status == StatusVerified {
		c.mu.Unlock()
		return true, nil
	}
	if c.status == StatusVerifying {
		c.mu.Unlock()
		return false, dErrors.New(dErrors.CodeConflict, "verification already in progress")
	}
	if c.budget.Exhausted(now) {
		c.status = StatusLockedOut
		c.mu.Unlock()
		return false, dErrors.New(dErrors.CodeLocked, "maximum attempts reached, please try again later")
	}
	if !validCode(code) {
		c.mu.Unlock()
		return false, dErrors.New(dErrors.CodeInvalidInput, "please enter the 6-digit code")
	}

	// Supersede any queued auto-verify.
	c.generation++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.status = StatusVerifying
	mobile, sessionID := c.mobile, c.sessionID
	c.budget.Charge(now)
	c.mu.Unlock()

	accepted, err := c.client.VerifyOTP(ctx, code, mobile, sessionID)

	c.mu.Lock()
	if err != nil {
		c.status = StatusFailed
		locked := c.budget.Exhausted(now)
		if locked {
			c.status = StatusLockedOut
		}
		c.mu.Unlock()
		return false, err
	}
	if !accepted {
		c.status = StatusFailed
		if c.budget.Exhausted(now) {
			c.status = StatusLockedOut
			c.mu.Unlock()
			return false, dErrors.New(dErrors.CodeLocked, "maximum attempts reached, please try again later")
		}
		c.mu.Unlock()
		return false, dErrors.New(dErrors.CodeInvalidInput, "invalid OTP, please try again")
	}
	c.status = StatusVerified
	c.countdown.Cancel()
	cb := c.onVerified
	c.mu.Unlock()

	if cb != nil {
		cb(ctx)
	}
	return true, nil
}

// Resend asks the upstream for a fresh code. Refused while the countdown is
// running or a verification is in flight; a successful resend restarts the
// countdown but never refunds spent attempts.
func (c *Controller) Resend(ctx context.Context) error {
	now := requestcontext.Now(ctx)

	c.mu.Lock()
	switch c.status {
	case StatusVerifying:
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "verification already in progress")
	case StatusVerified:
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "code already verified")
	case StatusIdle:
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeInvariantViolation, "no challenge to resend")
	}
	if c.countdown.Active(now) {
		remaining := c.countdown.Remaining(now)
		c.mu.Unlock()
		return dErrors.Newf(dErrors.CodeRateLimited, "please wait %d seconds before resending", remaining)
	}
	mobile, sessionID := c.mobile, c.sessionID
	c.mu.Unlock()

	if err := c.client.ResendOTP(ctx, mobile, sessionID); err != nil {
		return err
	}

	c.mu.Lock()
	c.status = StatusSent
	c.countdown.Start(now, c.cfg.CountdownWindow)
	c.mu.Unlock()
	return nil
}

// Close cancels any queued auto-verify. The controller is unusable after.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

func validCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
