// Package service composes the enrollment wizard: the in-memory session
// registry, snapshot persistence, step navigation, field updates, the image
// pipeline, submission and OTP verification, and the post-verification QR
// artifact.
package service

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Space2024/chitenv/internal/enrollment/check"
	"github.com/Space2024/chitenv/internal/enrollment/metrics"
	"github.com/Space2024/chitenv/internal/enrollment/models"
	"github.com/Space2024/chitenv/internal/enrollment/otp"
	"github.com/Space2024/chitenv/internal/enrollment/qr"
	"github.com/Space2024/chitenv/internal/enrollment/ratelimit"
	"github.com/Space2024/chitenv/internal/enrollment/remote"
	"github.com/Space2024/chitenv/internal/enrollment/session"
	"github.com/Space2024/chitenv/internal/enrollment/submit"
	"github.com/Space2024/chitenv/internal/imaging"
	"github.com/Space2024/chitenv/internal/platform/config"
	"github.com/Space2024/chitenv/pkg/requestcontext"
)

// WizardSession is one customer's in-flight enrollment. The in-memory object
// is authoritative; the cookie snapshot written after every mutation exists
// so a reload can rebuild it.
type WizardSession struct {
	mu sync.Mutex

	id     string
	branch string
	record models.FormRecord
	state  models.WizardState

	checker   *check.Checker
	otpc      *otp.Controller
	budget    *ratelimit.Budget
	submitter *submit.Controller

	noticeMu sync.Mutex
	notices  []Notification
	qrMobile string
	// cleared marks that the next snapshot write must clear the cookie
	// instead, after a completed enrollment.
	cleared  bool
	lastSeen time.Time
}

// ID returns the session correlation ID.
func (ws *WizardSession) ID() string { return ws.id }

// Service owns the session registry and the shared collaborators.
type Service struct {
	client     remote.Client
	cookies    *session.CookieStore
	assets     session.AssetStore
	challenges session.ChallengeStore
	compressor *imaging.Compressor
	camera     *imaging.Session
	qrIssuer   *qr.Issuer
	qrStore    *qr.Store
	metrics    *metrics.Metrics
	logger     *slog.Logger
	cfg        config.Session

	mu       sync.Mutex
	sessions map[string]*WizardSession
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCamera attaches a locally-driven camera for kiosk deployments. Without
// one, photo capture endpoints report the camera as unavailable and photos
// arrive as uploads only.
func WithCamera(cam *imaging.Session) Option {
	return func(s *Service) { s.camera = cam }
}

// WithChallengeStore replaces the default in-memory attempt record store,
// e.g. with the Redis-backed one.
func WithChallengeStore(cs session.ChallengeStore) Option {
	return func(s *Service) { s.challenges = cs }
}

// New builds the wizard service.
func New(
	client remote.Client,
	cookies *session.CookieStore,
	assets session.AssetStore,
	qrIssuer *qr.Issuer,
	qrStore *qr.Store,
	cfg config.Session,
	opts ...Option,
) *Service {
	s := &Service{
		client:     client,
		cookies:    cookies,
		assets:     assets,
		challenges: session.NewInMemoryChallengeStore(cfg.ExpirationWindow),
		compressor: imaging.NewCompressor(),
		qrIssuer:   qrIssuer,
		qrStore:    qrStore,
		metrics:    metrics.New(),
		logger:     slog.Default(),
		cfg:        cfg,
		sessions:   make(map[string]*WizardSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the wizard session for the request: the live in-memory
// session when the snapshot points at one, a session rebuilt from the
// snapshot after a restart, or a fresh session otherwise.
func (s *Service) Resolve(w http.ResponseWriter, r *http.Request, branch string) *WizardSession {
	ctx := r.Context()
	now := requestcontext.Now(ctx)
	snap, ok := s.cookies.Load(w, r, now)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)

	if ok && snap.SessionID != "" {
		if sess, found := s.sessions[snap.SessionID]; found {
			sess.mu.Lock()
			sess.lastSeen = now
			sess.mu.Unlock()
			return sess
		}
		sess := s.newSessionLocked(branch, snap.SessionID, now)
		s.restore(ctx, sess, snap, now)
		s.metrics.SessionsRestored.Inc()
		return sess
	}

	return s.newSessionLocked(branch, models.NewSessionID(now), now)
}

func (s *Service) newSessionLocked(branch, id string, now time.Time) *WizardSession {
	budget := ratelimit.NewBudget(s.cfg.MaxAttempts, s.cfg.SubmitCooldown, s.cfg.AttemptReset)
	sess := &WizardSession{
		id:       id,
		branch:   branch,
		record:   models.Empty(),
		state:    models.WizardState{CurrentStep: models.MinStep},
		checker:  check.New(s.client, check.WithLogger(s.logger)),
		budget:   budget,
		lastSeen: now,
	}
	sess.submitter = submit.New(s.client, budget, s.assets, submit.WithLogger(s.logger))
	sess.otpc = otp.New(s.client, budget,
		otp.Config{CountdownWindow: s.cfg.OTPTimeout, Debounce: s.cfg.OTPDebounce},
		otp.WithLogger(s.logger),
		otp.WithVerifiedCallback(func(cbCtx context.Context) { s.finish(cbCtx, sess) }),
	)
	s.sessions[id] = sess
	return sess
}

// restore rebuilds session state from a persisted snapshot, re-arming the
// OTP countdown with whatever remains of the original window. The attempt
// counter prefers the server-side challenge record over the snapshot, so a
// discarded cookie cannot refund attempts.
func (s *Service) restore(ctx context.Context, sess *WizardSession, snap *models.StoredSession, now time.Time) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.record = snap.Data
	sess.state = snap.FormState
	sess.checker.Restore(snap.Check)

	lastAttempt := time.UnixMilli(snap.Timestamp)
	if snap.FormState.SubmissionTimestamp != nil {
		lastAttempt = time.UnixMilli(*snap.FormState.SubmissionTimestamp)
	}
	attempts := snap.FormState.SubmissionAttempts
	if ch, err := s.challenges.Get(ctx, sess.id); err == nil {
		attempts = ch.Attempts
		if ch.LastAttemptMS != 0 {
			lastAttempt = time.UnixMilli(ch.LastAttemptMS)
		}
	}
	sess.budget.Restore(attempts, lastAttempt)

	if snap.FormState.OtpSent && !snap.FormState.OtpVerified && snap.FormState.SubmissionTimestamp != nil {
		sess.otpc.Resume(now, time.UnixMilli(*snap.FormState.SubmissionTimestamp), snap.Data.MobileNo, sess.id)
	}
}

// sweepLocked drops sessions idle past the expiration window. Their
// snapshots and assets expire on their own clocks.
func (s *Service) sweepLocked(now time.Time) {
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := now.Sub(sess.lastSeen)
		sess.mu.Unlock()
		if idle >= s.cfg.ExpirationWindow {
			sess.otpc.Close()
			delete(s.sessions, id)
		}
	}
}

// saveChallenge writes the authoritative attempt record for the session.
// Failures are logged; the cookie snapshot still carries a display copy.
func (s *Service) saveChallenge(ctx context.Context, sess *WizardSession, now time.Time) {
	attempts, last := sess.budget.Snapshot(now)
	ch := session.Challenge{Attempts: attempts}
	if !last.IsZero() {
		ch.LastAttemptMS = last.UnixMilli()
	}
	if err := s.challenges.Put(ctx, sess.id, ch); err != nil {
		s.logger.WarnContext(ctx, "challenge persistence failed", "session_id", sess.id, "error", err)
	}
}

// FlushPendingClear expires the snapshot cookie when a background
// auto-verify finished the enrollment since the last persisting request.
// Read-only endpoints call it so a stale submitted-state snapshot cannot
// outlive the completed enrollment.
func (s *Service) FlushPendingClear(w http.ResponseWriter, sess *WizardSession) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.cleared {
		s.cookies.Clear(w)
		sess.cleared = false
	}
}

// persistLocked writes the snapshot for a session whose lock is held.
func (s *Service) persistLocked(w http.ResponseWriter, sess *WizardSession, now time.Time) {
	if sess.cleared {
		s.cookies.Clear(w)
		sess.cleared = false
		return
	}
	snap := &models.StoredSession{
		Data:      sess.record,
		FormState: sess.state,
		Check:     sess.checker.State(),
		SessionID: sess.id,
	}
	s.cookies.Save(w, snap, now)
}
