package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/Space2024/chitenv/internal/enrollment/models"
	"github.com/Space2024/chitenv/internal/enrollment/otp"
	"github.com/Space2024/chitenv/internal/enrollment/qr"
	"github.com/Space2024/chitenv/internal/enrollment/remote"
	"github.com/Space2024/chitenv/internal/enrollment/session"
	"github.com/Space2024/chitenv/internal/platform/config"
	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
	"github.com/Space2024/chitenv/pkg/platform/sentinel"
	"github.com/Space2024/chitenv/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	client *remote.MockClient
	svc    *Service
	now    time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.client = remote.NewMockClient()
	s.now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	cfg := config.Session{
		CookieName:       "formData",
		ExpirationWindow: 10 * time.Minute,
		OTPTimeout:       60 * time.Second,
		OTPDebounce:      10 * time.Millisecond,
		MaxAttempts:      5,
		SubmitCooldown:   5 * time.Second,
		AttemptReset:     time.Hour,
	}
	s.svc = New(
		s.client,
		session.NewCookieStore(cfg.CookieName, cfg.ExpirationWindow),
		session.NewInMemoryAssetStore(cfg.ExpirationWindow),
		qr.NewIssuer([]byte("test-key"), 20*time.Minute),
		qr.NewStore(),
		cfg,
	)
}

func (s *ServiceSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *ServiceSuite) request(t time.Time, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/XY123/session", nil)
	req = req.WithContext(requestcontext.WithTime(req.Context(), t))
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	return req
}

func (s *ServiceSuite) resolve(t time.Time, cookies ...*http.Cookie) (*WizardSession, *httptest.ResponseRecorder) {
	rr := httptest.NewRecorder()
	sess := s.svc.Resolve(rr, s.request(t, cookies...), "XY123")
	return sess, rr
}

func pngBytes(s *ServiceSuite) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 80, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 80; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 3), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	s.Require().NoError(png.Encode(&buf, img))
	return buf.Bytes()
}

func (s *ServiceSuite) fillStep1(sess *WizardSession, w http.ResponseWriter) {
	errs := s.svc.UpdateFields(s.ctxAt(s.now), w, sess, map[string]string{
		"customerTitle": "Mrs.",
		"customerName":  "Priya",
		"mobileNo":      "9876543210",
		"CustomerType":  "NewCustomer",
		"relationship":  "myself",
	})
	s.Require().Empty(errs)
}

func (s *ServiceSuite) fillStep2(sess *WizardSession, w http.ResponseWriter) {
	errs := s.svc.UpdateFields(s.ctxAt(s.now), w, sess, map[string]string{
		"doorNo":  "12A",
		"street":  "Gandhi Road",
		"pinCode": "641001",
		"area":    "Town Hall",
	})
	s.Require().Empty(errs)
}

func (s *ServiceSuite) fillStep3(sess *WizardSession, w http.ResponseWriter) {
	errs := s.svc.UpdateFields(s.ctxAt(s.now), w, sess, map[string]string{
		"nomineeName":     "Kavitha",
		"nomineeRelation": "Mother",
		"nomineeMobile":   "9000000001",
	})
	s.Require().Empty(errs)
	for _, slot := range []models.PhotoSlot{models.SlotPhoto1, models.SlotPhoto2} {
		_, err := s.svc.AttachPhoto(s.ctxAt(s.now), httptest.NewRecorder(), sess, slot, pngBytes(s))
		s.Require().NoError(err)
	}
}

// walkToReview drives a fresh session through all data entry to step 4.
func (s *ServiceSuite) walkToReview(sess *WizardSession) {
	w := httptest.NewRecorder()
	s.fillStep1(sess, w)
	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), w, sess))
	s.fillStep2(sess, w)
	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), w, sess))
	s.fillStep3(sess, w)
	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), w, sess))
	s.Equal(4, s.svc.View(s.ctxAt(s.now), sess).CurrentStep)
}

func (s *ServiceSuite) TestFreshSessionStartsAtStepOne() {
	sess, _ := s.resolve(s.now)
	view := s.svc.View(s.ctxAt(s.now), sess)
	s.Equal(1, view.CurrentStep)
	s.NotEmpty(view.SessionID)
	s.False(view.CanAdvance)
	s.Equal("No", view.Form.PurchaseWithSKTM)
}

func (s *ServiceSuite) TestAdvanceBlockedUntilStepValid() {
	sess, rr := s.resolve(s.now)
	err := s.svc.Advance(s.ctxAt(s.now), rr, sess)
	s.Require().Error(err)
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
	s.Equal(1, s.svc.View(s.ctxAt(s.now), sess).CurrentStep)
}

func (s *ServiceSuite) TestRetreatIsUnconditionalButFloorsAtOne() {
	sess, rr := s.resolve(s.now)
	s.svc.Retreat(s.ctxAt(s.now), rr, sess)
	s.Equal(1, s.svc.View(s.ctxAt(s.now), sess).CurrentStep)

	s.fillStep1(sess, rr)
	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), rr, sess))
	s.Equal(2, s.svc.View(s.ctxAt(s.now), sess).CurrentStep)
	s.svc.Retreat(s.ctxAt(s.now), rr, sess)
	s.Equal(1, s.svc.View(s.ctxAt(s.now), sess).CurrentStep)
}

func (s *ServiceSuite) TestActiveChitBlocksStepOne() {
	s.client.ExistingUsers["9876543210"] = true
	s.client.ChitStatuses["9876543210/myself"] = remote.ChitStatus{Exists: true, Status: remote.ChitStatusActive}

	sess, rr := s.resolve(s.now)
	s.fillStep1(sess, rr)

	view := s.svc.View(s.ctxAt(s.now), sess)
	s.True(view.Blocked)
	s.False(view.CanAdvance)

	err := s.svc.Advance(s.ctxAt(s.now), rr, sess)
	s.Require().Error(err)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestPendingChitWarnsButAllowsAdvance() {
	s.client.ChitStatuses["9876543210/myself"] = remote.ChitStatus{Exists: true, Status: remote.ChitStatusPending}

	sess, rr := s.resolve(s.now)
	s.fillStep1(sess, rr)

	view := s.svc.View(s.ctxAt(s.now), sess)
	s.True(view.PendingStatus)
	s.False(view.Blocked)

	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), rr, sess))
	s.Equal(2, s.svc.View(s.ctxAt(s.now), sess).CurrentStep)
}

func (s *ServiceSuite) TestSkipRelationshipsNeverQueryUpstream() {
	sess, rr := s.resolve(s.now)
	errs := s.svc.UpdateFields(s.ctxAt(s.now), rr, sess, map[string]string{
		"mobileNo":     "9876543210",
		"relationship": "Son",
	})
	s.Require().Empty(errs)
	s.Equal(0, s.client.CheckUserCalls)
	s.Equal(0, s.client.ChitUserCalls)
}

func (s *ServiceSuite) TestIdenticalPairIsCheckedAtMostOnce() {
	sess, rr := s.resolve(s.now)
	for i := 0; i < 3; i++ {
		s.svc.UpdateFields(s.ctxAt(s.now), rr, sess, map[string]string{
			"mobileNo":     "9876543210",
			"relationship": "myself",
		})
	}
	s.Equal(1, s.client.CheckUserCalls)
	s.Equal(1, s.client.ChitUserCalls)
}

func (s *ServiceSuite) TestPrefillMergesExistingCustomer() {
	s.client.Profiles["9876543210"] = &remote.CustomerProfile{
		Status: remote.ChitStatusActive,
		Fields: map[string]string{
			"customerName": "Priya Raman",
			"doorNo":       "7",
			"street":       "Mill Lane",
			"email":        "priya@example.com",
		},
	}

	sess, rr := s.resolve(s.now)
	s.svc.UpdateFields(s.ctxAt(s.now), rr, sess, map[string]string{
		"mobileNo":     "9876543210",
		"relationship": "myself",
	})

	view := s.svc.View(s.ctxAt(s.now), sess)
	s.Equal("Priya Raman", view.Form.CustomerName)
	s.Equal("Mill Lane", view.Form.Street)
	s.Equal("priya@example.com", view.Form.Email)
	// The typed identity fields are never clobbered by prefill.
	s.Equal("9876543210", view.Form.MobileNo)
}

func (s *ServiceSuite) TestFieldErrorsAreReportedButValuesStored() {
	sess, rr := s.resolve(s.now)
	errs := s.svc.UpdateFields(s.ctxAt(s.now), rr, sess, map[string]string{
		"mobileNo": "12345",
		"email":    "not-an-email",
	})
	s.Contains(errs["mobileNo"], "10 digits")
	s.Contains(errs["email"], "email")

	view := s.svc.View(s.ctxAt(s.now), sess)
	s.Equal("12345", view.Form.MobileNo)
}

func (s *ServiceSuite) TestNomineeMobileCannotMatchPrimary() {
	sess, rr := s.resolve(s.now)
	s.fillStep1(sess, rr)
	errs := s.svc.UpdateFields(s.ctxAt(s.now), rr, sess, map[string]string{
		"nomineeMobile": "9876543210",
	})
	s.Contains(errs["nomineeMobile"], "cannot be same")
}

func (s *ServiceSuite) TestFullWalkSubmitsAndArmsOTP() {
	sess, _ := s.resolve(s.now)
	s.walkToReview(sess)

	rr := httptest.NewRecorder()
	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), rr, sess))

	view := s.svc.View(s.ctxAt(s.now), sess)
	s.True(view.State.FormSubmitted)
	s.True(view.State.OtpSent)
	s.Equal(otp.StatusSent, view.OtpStatus)
	s.Equal(60, view.ResendRemaining)
	s.Equal(1, view.State.SubmissionAttempts)

	s.Require().Len(s.client.Submitted, 1)
	s.Equal("XY123", s.client.Submitted[0].Branch)
	s.Len(s.client.Submitted[0].Images, 2)
}

func (s *ServiceSuite) TestSubmitRejectsIncompleteForm() {
	sess, rr := s.resolve(s.now)
	err := s.svc.Submit(s.ctxAt(s.now), rr, sess)
	s.Require().Error(err)
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
	s.Equal(0, s.client.SubmitCalls)
}

func (s *ServiceSuite) TestVerifiedOTPIssuesQRAndResetsSession() {
	sess, _ := s.resolve(s.now)
	s.walkToReview(sess)
	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), httptest.NewRecorder(), sess))

	rr := httptest.NewRecorder()
	ok, err := s.svc.VerifyOTP(s.ctxAt(s.now), rr, sess, "123456")
	s.Require().NoError(err)
	s.True(ok)

	// Completed enrollment: snapshot cleared, wizard back to a blank step 1.
	cookies := rr.Result().Cookies()
	s.Require().NotEmpty(cookies)
	s.Negative(cookies[len(cookies)-1].MaxAge)

	view := s.svc.View(s.ctxAt(s.now), sess)
	s.Equal(1, view.CurrentStep)
	s.Empty(view.Form.CustomerName)
	s.False(view.State.OtpSent)
	s.Equal(5, view.AttemptsRemaining)

	artifact, err := s.svc.QRArtifact(s.ctxAt(s.now), sess)
	s.Require().NoError(err)
	s.Equal("9876543210", artifact.Mobile)
	s.NotEmpty(artifact.Token)
}

func (s *ServiceSuite) TestQRExpiresAfterDisplayWindow() {
	sess, _ := s.resolve(s.now)
	s.walkToReview(sess)
	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), httptest.NewRecorder(), sess))
	_, err := s.svc.VerifyOTP(s.ctxAt(s.now), httptest.NewRecorder(), sess, "123456")
	s.Require().NoError(err)

	_, err = s.svc.QRArtifact(s.ctxAt(s.now.Add(21*time.Minute)), sess)
	s.Require().Error(err)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestQRBeforeVerification() {
	sess, _ := s.resolve(s.now)
	_, err := s.svc.QRArtifact(s.ctxAt(s.now), sess)
	s.Require().Error(err)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestSnapshotRestoresAfterRestart() {
	sess, rr := s.resolve(s.now)
	s.fillStep1(sess, rr)
	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), rr, sess))

	cookies := rr.Result().Cookies()
	s.Require().NotEmpty(cookies)
	snapshot := cookies[len(cookies)-1]

	// Fresh service, same cookie: the session is rebuilt, not restarted.
	s.SetupTest()
	later := s.now.Add(5 * time.Minute)
	restored, _ := s.resolve(later, &http.Cookie{Name: snapshot.Name, Value: snapshot.Value})

	view := s.svc.View(s.ctxAt(later), restored)
	s.Equal(sess.ID(), restored.ID())
	s.Equal(2, view.CurrentStep)
	s.Equal("Priya", view.Form.CustomerName)
}

func (s *ServiceSuite) TestExpiredSnapshotYieldsFreshSession() {
	sess, rr := s.resolve(s.now)
	s.fillStep1(sess, rr)

	cookies := rr.Result().Cookies()
	snapshot := cookies[len(cookies)-1]

	s.SetupTest()
	later := s.now.Add(11 * time.Minute)
	w := httptest.NewRecorder()
	fresh := s.svc.Resolve(w, s.request(later, &http.Cookie{Name: snapshot.Name, Value: snapshot.Value}), "XY123")

	s.NotEqual(sess.ID(), fresh.ID())
	s.Empty(s.svc.View(s.ctxAt(later), fresh).Form.CustomerName)
}

func (s *ServiceSuite) TestRestoredSessionResumesOTPCountdown() {
	sess, _ := s.resolve(s.now)
	s.walkToReview(sess)
	rr := httptest.NewRecorder()
	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), rr, sess))

	cookies := rr.Result().Cookies()
	snapshot := cookies[len(cookies)-1]

	s.SetupTest()
	later := s.now.Add(25 * time.Second)
	restored, _ := s.resolve(later, &http.Cookie{Name: snapshot.Name, Value: snapshot.Value})

	view := s.svc.View(s.ctxAt(later), restored)
	s.Equal(otp.StatusSent, view.OtpStatus)
	// 60s window minus the 25s already elapsed, not a fresh 60.
	s.Equal(35, view.ResendRemaining)
}

func (s *ServiceSuite) TestSubmitCooldownSurfacesThrottle() {
	sess, _ := s.resolve(s.now)
	s.walkToReview(sess)
	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), httptest.NewRecorder(), sess))

	err := s.svc.Submit(s.ctxAt(s.now.Add(2*time.Second)), httptest.NewRecorder(), sess)
	s.Require().Error(err)
	s.Equal(dErrors.CodeRateLimited, dErrors.CodeOf(err))
	s.Equal(1, s.client.SubmitCalls)
}

func (s *ServiceSuite) TestNotificationsDrainOnce() {
	s.client.ChitStatuses["9876543210/myself"] = remote.ChitStatus{Exists: true, Status: remote.ChitStatusPending}
	sess, rr := s.resolve(s.now)
	s.fillStep1(sess, rr)

	first := s.svc.View(s.ctxAt(s.now), sess)
	s.Require().NotEmpty(first.Notifications)
	s.Equal("warning", first.Notifications[0].Level)
	s.Equal(toastDismissMS, first.Notifications[0].AutoDismissMS)
	s.NotEmpty(first.Notifications[0].ID)

	second := s.svc.View(s.ctxAt(s.now), sess)
	s.Empty(second.Notifications)
}

func (s *ServiceSuite) TestRemovePhotoClearsSlotAndBytes() {
	sess, rr := s.resolve(s.now)
	_, err := s.svc.AttachPhoto(s.ctxAt(s.now), rr, sess, models.SlotPhoto1, pngBytes(s))
	s.Require().NoError(err)
	s.NotNil(s.svc.View(s.ctxAt(s.now), sess).Form.Photo1)

	s.Require().NoError(s.svc.RemovePhoto(s.ctxAt(s.now), rr, sess, models.SlotPhoto1))
	s.Nil(s.svc.View(s.ctxAt(s.now), sess).Form.Photo1)
}

func (s *ServiceSuite) TestAttachRejectsNonImage() {
	sess, rr := s.resolve(s.now)
	_, err := s.svc.AttachPhoto(s.ctxAt(s.now), rr, sess, models.SlotPhoto1, []byte("plain text"))
	s.Require().Error(err)
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
	s.Nil(s.svc.View(s.ctxAt(s.now), sess).Form.Photo1)
}

func (s *ServiceSuite) TestCaptureWithoutCamera() {
	sess, rr := s.resolve(s.now)
	_, err := s.svc.CapturePhoto(s.ctxAt(s.now), rr, sess, models.SlotPhoto1, "user")
	s.Require().Error(err)
	s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestChallengeRecordOutranksSnapshotAttempts() {
	sess, _ := s.resolve(s.now)
	s.walkToReview(sess)
	rr := httptest.NewRecorder()
	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), rr, sess))

	cookies := rr.Result().Cookies()
	snapshot := cookies[len(cookies)-1]
	id := sess.ID()

	// Restarted service whose challenge store remembers more attempts than
	// the replayed cookie claims: the server record wins.
	s.SetupTest()
	later := s.now.Add(time.Minute)
	s.Require().NoError(s.svc.challenges.Put(s.ctxAt(later), id, session.Challenge{
		Attempts:      4,
		LastAttemptMS: later.UnixMilli(),
	}))

	restored, _ := s.resolve(later, &http.Cookie{Name: snapshot.Name, Value: snapshot.Value})
	view := s.svc.View(s.ctxAt(later), restored)
	s.Equal(1, view.AttemptsRemaining)
}

func (s *ServiceSuite) TestVerificationClearsChallengeRecord() {
	sess, _ := s.resolve(s.now)
	s.walkToReview(sess)
	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), httptest.NewRecorder(), sess))

	_, err := s.svc.challenges.Get(s.ctxAt(s.now), sess.ID())
	s.Require().NoError(err)

	ok, err := s.svc.VerifyOTP(s.ctxAt(s.now), httptest.NewRecorder(), sess, "123456")
	s.Require().NoError(err)
	s.Require().True(ok)

	_, err = s.svc.challenges.Get(s.ctxAt(s.now), sess.ID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestFlushPendingClearExpiresSnapshotAfterAutoVerify() {
	sess, _ := s.resolve(s.now)
	s.walkToReview(sess)
	s.Require().NoError(s.svc.Advance(s.ctxAt(s.now), httptest.NewRecorder(), sess))

	// The debounced auto-verify completes in the background, with no
	// response writer in hand to persist the reset to.
	s.svc.OfferOTP(sess, "123456")
	s.Require().Eventually(func() bool {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.cleared
	}, time.Second, 5*time.Millisecond)

	rr := httptest.NewRecorder()
	s.svc.FlushPendingClear(rr, sess)
	cookies := rr.Result().Cookies()
	s.Require().NotEmpty(cookies)
	s.Negative(cookies[len(cookies)-1].MaxAge)

	// The clear is consumed; a later read writes nothing.
	rr = httptest.NewRecorder()
	s.svc.FlushPendingClear(rr, sess)
	s.Empty(rr.Result().Cookies())
}
