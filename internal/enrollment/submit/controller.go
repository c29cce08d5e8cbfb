// Package submit drives the enrollment form submission: local rate limiting,
// photograph retrieval, and the upstream multipart call.
package submit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Space2024/chitenv/internal/enrollment/models"
	"github.com/Space2024/chitenv/internal/enrollment/ratelimit"
	"github.com/Space2024/chitenv/internal/enrollment/remote"
	"github.com/Space2024/chitenv/internal/enrollment/session"
	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
	"github.com/Space2024/chitenv/pkg/platform/sentinel"
	"github.com/Space2024/chitenv/pkg/requestcontext"
)

// Controller gates and performs submissions. Throttling decisions are made
// locally before any network traffic: a cooldown rejection or lockout never
// reaches the upstream.
type Controller struct {
	client remote.Client
	budget *ratelimit.Budget
	assets session.AssetStore
	logger *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New returns a submission controller drawing on the given attempt budget.
func New(client remote.Client, budget *ratelimit.Budget, assets session.AssetStore, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		budget: budget,
		assets: assets,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit sends the completed form upstream. The attempt is charged and the
// submission timestamp recorded before the network call, so a failed
// submission still consumes budget; on success the wizard moves to the OTP
// stage.
func (c *Controller) Submit(ctx context.Context, record *models.FormRecord, state *models.WizardState, sessionID, branch string) error {
	now := requestcontext.Now(ctx)

	if remaining, active := c.budget.InCooldown(now); active {
		return dErrors.Newf(dErrors.CodeRateLimited, "please wait %.0f seconds before submitting again", remaining.Seconds())
	}
	if c.budget.Exhausted(now) {
		return dErrors.New(dErrors.CodeLocked, "maximum attempts reached, please try again later")
	}

	images, err := c.collectImages(ctx, record, sessionID)
	if err != nil {
		return err
	}

	attempts := c.budget.Charge(now)
	ts := now.UnixMilli()
	state.SubmissionAttempts = attempts
	state.SubmissionTimestamp = &ts

	req := remote.SubmitRequest{
		Record:    record,
		SessionID: sessionID,
		Branch:    branch,
		Images:    images,
	}
	if err := c.client.Submit(ctx, req); err != nil {
		c.logger.ErrorContext(ctx, "form submission failed",
			"session_id", sessionID,
			"attempt", attempts,
			"error", err,
		)
		return err
	}

	state.FormSubmitted = true
	state.OtpSent = true
	c.logger.InfoContext(ctx, "form submitted",
		"session_id", sessionID,
		"attempt", attempts,
		"images", len(images),
	)
	return nil
}

func (c *Controller) collectImages(ctx context.Context, record *models.FormRecord, sessionID string) ([]remote.SubmitImage, error) {
	var images []remote.SubmitImage
	for _, slot := range []models.PhotoSlot{models.SlotPhoto1, models.SlotPhoto2} {
		meta := record.Photo(slot)
		if meta == nil {
			continue
		}
		asset, err := c.assets.Get(ctx, sessionID, slot)
		if errors.Is(err, sentinel.ErrNotFound) {
			// Metadata without bytes means the asset expired under us.
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "photo %s is no longer available, please attach it again", slot)
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attached photo")
		}
		images = append(images, remote.SubmitImage{
			Slot:        slot,
			ContentType: asset.ContentType,
			Data:        asset.Data,
		})
	}
	return images, nil
}
