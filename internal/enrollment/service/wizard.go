package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Space2024/chitenv/internal/enrollment/models"
	"github.com/Space2024/chitenv/internal/enrollment/otp"
	"github.com/Space2024/chitenv/internal/enrollment/qr"
	"github.com/Space2024/chitenv/internal/enrollment/session"
	"github.com/Space2024/chitenv/internal/enrollment/validate"
	"github.com/Space2024/chitenv/internal/imaging"
	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
	"github.com/Space2024/chitenv/pkg/platform/sentinel"
	"github.com/Space2024/chitenv/pkg/requestcontext"
)

// toastDismissMS is the auto-dismiss window for transient notifications.
const toastDismissMS = 5000

// Notification is one user-visible message queued on the session and drained
// with the next view. AutoDismissMS of zero means the message is persistent.
type Notification struct {
	ID            string `json:"id"`
	Level         string `json:"level"`
	Message       string `json:"message"`
	AutoDismissMS int    `json:"autoDismissMs"`
}

// View is the session state returned to the client after every operation.
type View struct {
	SessionID         string             `json:"sessionId"`
	Branch            string             `json:"branch"`
	CurrentStep       int                `json:"currentStep"`
	Form              models.FormRecord  `json:"form"`
	State             models.WizardState `json:"state"`
	MobileExists      bool               `json:"mobileExists"`
	PendingStatus     bool               `json:"pendingStatus"`
	Blocked           bool               `json:"blocked"`
	CanAdvance        bool               `json:"canAdvance"`
	OtpStatus         otp.Status         `json:"otpStatus"`
	ResendRemaining   int                `json:"resendRemaining"`
	AttemptsRemaining int                `json:"attemptsRemaining"`
	Notifications     []Notification     `json:"notifications"`
}

// View assembles the client-facing state and drains queued notifications.
func (s *Service) View(ctx context.Context, sess *WizardSession) View {
	now := requestcontext.Now(ctx)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	check := sess.checker.State()
	sess.noticeMu.Lock()
	notices := sess.notices
	sess.notices = nil
	sess.noticeMu.Unlock()

	return View{
		SessionID:         sess.id,
		Branch:            sess.branch,
		CurrentStep:       sess.state.CurrentStep,
		Form:              sess.record,
		State:             sess.state,
		MobileExists:      check.MobileExists,
		PendingStatus:     check.PendingStatus,
		Blocked:           check.Blocked(),
		CanAdvance:        validate.IsStepValid(sess.state.CurrentStep, &sess.record, check),
		OtpStatus:         sess.otpc.Status(),
		ResendRemaining:   sess.otpc.ResendRemaining(now),
		AttemptsRemaining: sess.budget.Remaining(now),
		Notifications:     notices,
	}
}

// UpdateFields applies scalar field writes, runs field validation, and
// triggers the duplicate check and prefill when the identity fields change.
// Invalid values are still stored; the per-field messages come back for
// inline display and navigation stays gated on the step validator.
func (s *Service) UpdateFields(ctx context.Context, w http.ResponseWriter, sess *WizardSession, fields map[string]string) map[string]string {
	now := requestcontext.Now(ctx)
	fieldErrors := make(map[string]string)

	sess.mu.Lock()
	prevMobile := sess.record.MobileNo
	identityTouched := false
	for name, value := range fields {
		field := models.FieldName(name)
		if err := sess.record.Set(field, value); err != nil {
			fieldErrors[name] = dErrors.MessageOf(err)
			continue
		}
		if err := validate.Field(field, sess.record.Scalars()[name], &sess.record); err != nil {
			fieldErrors[name] = dErrors.MessageOf(err)
		}
		if field == models.FieldMobileNo || field == models.FieldRelationship {
			identityTouched = true
		}
	}
	mobile := sess.record.MobileNo
	relationship := sess.record.Relationship
	sess.mu.Unlock()

	if identityTouched {
		check := sess.checker.Evaluate(ctx, mobile, relationship)
		switch {
		case models.RelationshipSkipsChitCheck(relationship):
			s.metrics.DuplicateChecks.WithLabelValues("skipped").Inc()
		case check.Blocked():
			s.metrics.DuplicateChecks.WithLabelValues("blocked").Inc()
			s.notify(sess, "error", "this mobile number already has an active chit", 0)
		case check.PendingStatus:
			s.metrics.DuplicateChecks.WithLabelValues("pending").Inc()
			s.notify(sess, "warning", "this mobile number has a pending chit request", toastDismissMS)
		default:
			s.metrics.DuplicateChecks.WithLabelValues("clear").Inc()
		}

		if mobile != prevMobile && len(mobile) == 10 {
			s.prefill(ctx, sess, mobile)
		}
	}

	sess.mu.Lock()
	s.persistLocked(w, sess, now)
	sess.mu.Unlock()
	return fieldErrors
}

// prefill merges an existing customer's profile into the record without
// clobbering the identity fields the customer just typed.
func (s *Service) prefill(ctx context.Context, sess *WizardSession, mobile string) {
	pre := sess.checker.Prefill(ctx, mobile)
	if pre == nil {
		return
	}
	empty := models.Empty()
	defaults := empty.Scalars()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	for name, value := range pre.Scalars() {
		if value == "" || value == defaults[name] {
			continue
		}
		field := models.FieldName(name)
		if field == models.FieldMobileNo || field == models.FieldRelationship {
			continue
		}
		_ = sess.record.Set(field, value)
	}
	s.notify(sess, "info", "existing customer details loaded", toastDismissMS)
}

// Advance moves to the next step when the current step validates; advancing
// past the final step submits the form instead.
func (s *Service) Advance(ctx context.Context, w http.ResponseWriter, sess *WizardSession) error {
	now := requestcontext.Now(ctx)

	sess.mu.Lock()
	step := sess.state.CurrentStep
	check := sess.checker.State()

	if step == models.MinStep && check.Blocked() {
		s.notify(sess, "error", "this mobile number already has an active chit", 0)
		s.persistLocked(w, sess, now)
		sess.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "this mobile number already has an active chit")
	}
	if !validate.IsStepValid(step, &sess.record, check) {
		s.notify(sess, "warning", "please complete the required fields", toastDismissMS)
		s.persistLocked(w, sess, now)
		sess.mu.Unlock()
		return dErrors.New(dErrors.CodeInvalidInput, "please complete the required fields")
	}
	if step == models.MaxStep {
		sess.mu.Unlock()
		return s.Submit(ctx, w, sess)
	}
	if step == models.MinStep && check.PendingStatus {
		s.notify(sess, "warning", "this mobile number has a pending chit request", toastDismissMS)
	}
	sess.state.CurrentStep = step + 1
	s.persistLocked(w, sess, now)
	sess.mu.Unlock()
	return nil
}

// Retreat moves one step back, unconditionally. At the first step it is a
// no-op.
func (s *Service) Retreat(ctx context.Context, w http.ResponseWriter, sess *WizardSession) {
	now := requestcontext.Now(ctx)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state.CurrentStep > models.MinStep {
		sess.state.CurrentStep--
	}
	s.persistLocked(w, sess, now)
}

// AttachPhoto compresses uploaded photo bytes, stores them, and records the
// asset metadata on the form. A compression failure leaves any prior asset
// in the slot untouched.
func (s *Service) AttachPhoto(ctx context.Context, w http.ResponseWriter, sess *WizardSession, slot models.PhotoSlot, data []byte) (*models.ImageAsset, error) {
	now := requestcontext.Now(ctx)

	res, err := s.compressor.CompressUpload(data)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCompression(res.Attempts, res.CompressedByteSize)

	if err := s.assets.Put(ctx, sess.id, slot, session.Asset{
		Data:        res.Data,
		ContentType: res.ContentType,
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store photo")
	}

	asset := &models.ImageAsset{
		Slot:               slot,
		ContentType:        res.ContentType,
		OriginalByteSize:   res.OriginalByteSize,
		CompressedByteSize: res.CompressedByteSize,
	}
	sess.mu.Lock()
	sess.record.SetPhoto(slot, asset)
	s.persistLocked(w, sess, now)
	sess.mu.Unlock()
	return asset, nil
}

// CapturePhoto runs the locally-attached camera, then feeds the captured
// frame through the same compression path as an upload.
func (s *Service) CapturePhoto(ctx context.Context, w http.ResponseWriter, sess *WizardSession, slot models.PhotoSlot, facing imaging.Facing) (*models.ImageAsset, error) {
	if s.camera == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "no camera found on this device")
	}
	if err := s.camera.Start(ctx, facing); err != nil {
		return nil, err
	}
	data, err := s.camera.Capture(ctx)
	if err != nil {
		return nil, err
	}
	return s.AttachPhoto(ctx, w, sess, slot, data)
}

// RemovePhoto clears a slot and its stored bytes.
func (s *Service) RemovePhoto(ctx context.Context, w http.ResponseWriter, sess *WizardSession, slot models.PhotoSlot) error {
	now := requestcontext.Now(ctx)
	if err := s.assets.Delete(ctx, sess.id, slot); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove photo")
	}
	sess.mu.Lock()
	sess.record.SetPhoto(slot, nil)
	s.persistLocked(w, sess, now)
	sess.mu.Unlock()
	return nil
}

// Submit validates the whole form and sends it upstream; success arms the
// OTP challenge. Throttle rejections and upstream failures surface as
// notifications and leave the attempt spent.
func (s *Service) Submit(ctx context.Context, w http.ResponseWriter, sess *WizardSession) error {
	now := requestcontext.Now(ctx)
	start := time.Now()

	sess.mu.Lock()
	check := sess.checker.State()
	for step := models.MinStep; step < models.MaxStep; step++ {
		if !validate.IsStepValid(step, &sess.record, check) {
			sess.mu.Unlock()
			return dErrors.Newf(dErrors.CodeInvalidInput, "step %d is incomplete", step)
		}
	}

	err := sess.submitter.Submit(ctx, &sess.record, &sess.state, sess.id, sess.branch)
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeRateLimited:
			s.metrics.RecordSubmission("throttled")
		case dErrors.CodeLocked:
			s.metrics.RecordSubmission("locked")
		default:
			s.metrics.RecordSubmission("rejected")
			s.metrics.ObserveSubmit(start)
		}
		s.notify(sess, "error", dErrors.MessageOf(err), toastDismissMS)
		s.persistLocked(w, sess, now)
		sess.mu.Unlock()
		s.saveChallenge(ctx, sess, now)
		return err
	}

	s.metrics.RecordSubmission("accepted")
	s.metrics.ObserveSubmit(start)
	sess.otpc.Arm(now, sess.record.MobileNo, sess.id)
	s.notify(sess, "success", "OTP sent to your mobile number", toastDismissMS)
	s.persistLocked(w, sess, now)
	sess.mu.Unlock()
	s.saveChallenge(ctx, sess, now)
	return nil
}

// VerifyOTP submits a complete code for verification. Success finishes the
// enrollment: QR issued, session reset, snapshot cleared.
func (s *Service) VerifyOTP(ctx context.Context, w http.ResponseWriter, sess *WizardSession, code string) (bool, error) {
	now := requestcontext.Now(ctx)

	ok, err := sess.otpc.Verify(ctx, code)
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeTimeout:
			s.metrics.RecordVerification("timeout")
		case dErrors.CodeLocked:
			s.metrics.RecordVerification("locked")
		default:
			s.metrics.RecordVerification("rejected")
		}
		s.notify(sess, "error", dErrors.MessageOf(err), toastDismissMS)
	}
	if ok {
		s.metrics.RecordVerification("verified")
	} else {
		s.saveChallenge(ctx, sess, now)
	}

	sess.mu.Lock()
	s.persistLocked(w, sess, now)
	sess.mu.Unlock()
	return ok, err
}

// OfferOTP records a partial code; a complete one verifies automatically
// after the debounce quiet period.
func (s *Service) OfferOTP(sess *WizardSession, code string) {
	sess.otpc.Offer(code)
}

// ResendOTP re-requests the challenge code, subject to the countdown.
func (s *Service) ResendOTP(ctx context.Context, sess *WizardSession) error {
	if err := sess.otpc.Resend(ctx); err != nil {
		s.notify(sess, "warning", dErrors.MessageOf(err), toastDismissMS)
		return err
	}
	s.metrics.OTPResends.Inc()
	s.notify(sess, "info", "a new OTP has been sent", toastDismissMS)
	return nil
}

// QRArtifact returns the live payment artifact for the session's enrolled
// mobile number.
func (s *Service) QRArtifact(ctx context.Context, sess *WizardSession) (*qr.Artifact, error) {
	now := requestcontext.Now(ctx)

	sess.mu.Lock()
	mobile := sess.qrMobile
	sess.mu.Unlock()
	if mobile == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "no payment code available")
	}

	artifact, err := s.qrStore.Get(now, mobile)
	if errors.Is(err, sentinel.ErrExpired) {
		return nil, dErrors.New(dErrors.CodeNotFound, "the payment code has expired")
	}
	if err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no payment code available")
	}
	return artifact, nil
}

// finish completes a verified enrollment: issue the QR artifact, then reset
// the session to a blank first step with a fresh attempt budget. The cookie
// clear happens on the next snapshot write.
func (s *Service) finish(ctx context.Context, sess *WizardSession) {
	now := requestcontext.Now(ctx)

	sess.mu.Lock()
	mobile := sess.record.MobileNo
	id := sess.id
	sess.mu.Unlock()

	artifact, err := s.qrIssuer.Issue(now, mobile, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "qr issuance failed", "session_id", id, "error", err)
	} else {
		s.qrStore.Put(artifact)
		s.metrics.QRIssued.Inc()
	}

	if err := s.assets.DeleteSession(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "asset cleanup failed", "session_id", id, "error", err)
	}
	if err := s.challenges.Delete(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "challenge cleanup failed", "session_id", id, "error", err)
	}

	sess.mu.Lock()
	sess.record = models.Empty()
	sess.state = models.WizardState{CurrentStep: models.MinStep}
	sess.budget.Reset()
	sess.checker.Restore(models.CheckState{})
	sess.qrMobile = mobile
	sess.cleared = true
	s.notify(sess, "success", "enrollment verified successfully", toastDismissMS)
	sess.mu.Unlock()

	s.logger.InfoContext(ctx, "enrollment completed", "session_id", id)
}

// notify queues a notification. The queue carries its own lock so callers
// can notify with or without the session lock held.
func (s *Service) notify(sess *WizardSession, level, message string, autoDismissMS int) {
	sess.noticeMu.Lock()
	defer sess.noticeMu.Unlock()
	sess.notices = append(sess.notices, Notification{
		ID:            uuid.NewString(),
		Level:         level,
		Message:       message,
		AutoDismissMS: autoDismissMS,
	})
}
