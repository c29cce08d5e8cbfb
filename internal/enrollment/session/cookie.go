// Package session persists wizard state across reloads. Scalar form data,
// step position and check results ride in a signed-size browser cookie;
// photograph bytes are too large for a cookie and live in an AssetStore
// keyed by session ID with the same expiry window.
package session

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Space2024/chitenv/internal/enrollment/models"
)

// maxCookieBytes is the practical per-cookie ceiling most browsers enforce.
const maxCookieBytes = 4096

// CookieStore reads and writes the wizard snapshot cookie. Persistence is
// best-effort: failures are logged, never surfaced, so a blocked cookie jar
// degrades to a per-request session instead of an error page.
type CookieStore struct {
	name      string
	window    time.Duration
	logger    *slog.Logger
	onExpired func()
}

// CookieOption configures a CookieStore.
type CookieOption func(*CookieStore)

func WithCookieLogger(l *slog.Logger) CookieOption {
	return func(c *CookieStore) { c.logger = l }
}

// WithExpiredHook registers a callback fired whenever a snapshot is
// discarded for exceeding the expiration window.
func WithExpiredHook(fn func()) CookieOption {
	return func(c *CookieStore) { c.onExpired = fn }
}

// NewCookieStore returns a store writing the named cookie with the given
// expiry window.
func NewCookieStore(name string, window time.Duration, opts ...CookieOption) *CookieStore {
	c := &CookieStore{
		name:   name,
		window: window,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Save writes the snapshot, stamping it with the current write time so a
// later Load can judge staleness. Returns false when the snapshot could not
// be serialized or exceeds the cookie ceiling.
func (c *CookieStore) Save(w http.ResponseWriter, sess *models.StoredSession, now time.Time) bool {
	sess.Timestamp = now.UnixMilli()
	raw, err := json.Marshal(sess)
	if err != nil {
		c.logger.Warn("session snapshot not serializable", "error", err)
		return false
	}
	value := base64.URLEncoding.EncodeToString(raw)
	if len(value) > maxCookieBytes {
		c.logger.Warn("session snapshot exceeds cookie limit", "bytes", len(value))
		return false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.window.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return true
}

// Load returns the stored snapshot when present and fresh. An expired or
// unreadable snapshot is cleared from the browser as a side effect and
// reported as absent.
func (c *CookieStore) Load(w http.ResponseWriter, r *http.Request, now time.Time) (*models.StoredSession, bool) {
	ck, err := r.Cookie(c.name)
	if err != nil {
		return nil, false
	}
	raw, err := base64.URLEncoding.DecodeString(ck.Value)
	if err != nil {
		c.logger.Warn("session cookie not decodable", "error", err)
		c.Clear(w)
		return nil, false
	}
	var sess models.StoredSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		c.logger.Warn("session cookie not parseable", "error", err)
		c.Clear(w)
		return nil, false
	}
	if sess.Expired(now, c.window) {
		if c.onExpired != nil {
			c.onExpired()
		}
		c.Clear(w)
		return nil, false
	}
	return &sess, true
}

// Clear expires the cookie. Idempotent; clearing an absent cookie is a
// no-op in the browser.
func (c *CookieStore) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
