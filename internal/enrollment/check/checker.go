// Package check owns the asynchronous duplicate/pending-chit cross-check and
// the mobile-based prefill. Both are advisory: failures are logged and fail
// open, they never surface to the user or block the wizard on their own.
package check

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Space2024/chitenv/internal/enrollment/models"
	"github.com/Space2024/chitenv/internal/enrollment/remote"
)

// Checker evaluates the duplicate-chit status of a (mobile, relationship)
// pair. Identical pairs are queried at most once; a result that arrives after
// a newer evaluation has started is discarded rather than committed, so stale
// responses can never clobber the flags for the pair currently on screen.
type Checker struct {
	client remote.Client
	logger *slog.Logger

	mu         sync.Mutex
	generation uint64
	state      models.CheckState
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) { c.logger = logger }
}

// New builds a Checker over the given upstream client.
func New(client remote.Client, opts ...Option) *Checker {
	c := &Checker{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Restore seeds the checker from a persisted snapshot so a reload does not
// re-query a pair that was already checked.
func (c *Checker) Restore(state models.CheckState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// State returns the current flags.
func (c *Checker) State() models.CheckState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Evaluate re-checks the pair if it warrants a lookup. It returns the flags
// in effect afterwards. The remote lookups run in parallel; any failure fails
// open (flags cleared, cause logged).
func (c *Checker) Evaluate(ctx context.Context, mobile, relationship string) models.CheckState {
	relationship = strings.ToLower(relationship)

	if len(mobile) != 10 || relationship == "" {
		return c.commit(c.bump(), models.CheckState{})
	}

	// Guardian-enrolled minors are exempt from duplicate-chit blocking.
	if models.RelationshipSkipsChitCheck(relationship) {
		return c.commit(c.bump(), models.CheckState{})
	}

	c.mu.Lock()
	if c.state.LastMobile == mobile && c.state.LastRelationship == relationship {
		state := c.state
		c.mu.Unlock()
		return state
	}
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	var userExists bool
	var chit remote.ChitStatus

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		exists, err := c.client.CheckUser(gctx, mobile)
		if err != nil {
			return err
		}
		userExists = exists
		return nil
	})
	g.Go(func() error {
		status, err := c.client.ChitUser(gctx, mobile, relationship)
		if err != nil {
			return err
		}
		chit = status
		return nil
	})
	if err := g.Wait(); err != nil {
		// Advisory check: fail open, do not remember the pair so a retry can
		// re-query it.
		c.logger.WarnContext(ctx, "chit status check failed",
			"mobile", mobile,
			"relationship", relationship,
			"error", err.Error(),
		)
		return c.commit(gen, models.CheckState{})
	}

	next := models.CheckState{
		LastMobile:       mobile,
		LastRelationship: relationship,
		MobileExists:     userExists,
	}
	switch {
	case chit.Exists && chit.Status == remote.ChitStatusActive:
		next.MobileExists = true
		next.PendingStatus = false
	case chit.Exists && chit.Status == remote.ChitStatusPending:
		next.MobileExists = true
		next.PendingStatus = true
	default:
		next.MobileExists = false
		next.PendingStatus = false
	}

	return c.commit(gen, next)
}

func (c *Checker) bump() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.generation
}

// commit installs the result unless a newer evaluation superseded it.
func (c *Checker) commit(gen uint64, next models.CheckState) models.CheckState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		// Stale result; the newer evaluation owns the flags now.
		return c.state
	}
	c.state = next
	return c.state
}

// Prefill loads an existing customer's profile for a complete mobile number
// and maps it onto a form record. It returns nil when the upstream has no
// usable record. Failures are silent by contract.
func (c *Checker) Prefill(ctx context.Context, mobile string) *models.FormRecord {
	if len(mobile) != 10 {
		return nil
	}
	profile, err := c.client.Customer(ctx, mobile)
	if err != nil {
		c.logger.WarnContext(ctx, "customer prefill failed",
			"mobile", mobile,
			"error", err.Error(),
		)
		return nil
	}
	if profile == nil || (profile.Status != remote.ChitStatusActive && profile.Status != remote.ChitStatusPending) {
		return nil
	}

	record := models.Empty()
	for key, value := range profile.Fields {
		if value == "" {
			continue
		}
		// Unknown upstream keys are ignored; the field schema is closed.
		_ = record.Set(models.FieldName(key), value)
	}
	return &record
}
