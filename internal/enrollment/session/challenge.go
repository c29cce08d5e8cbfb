package session

import "context"

// Challenge is the server-held attempt/lockout record for one session. The
// cookie snapshot carries a copy for display, but the server record is
// authoritative: clearing the cookie does not refund attempts.
type Challenge struct {
	Attempts      int   `json:"attempts"`
	LastAttemptMS int64 `json:"lastAttemptMs"` // epoch ms, zero when unused
}

// ChallengeStore holds challenge records keyed by session ID. Entries share
// the session expiry window; reads past expiry report sentinel.ErrNotFound.
type ChallengeStore interface {
	Put(ctx context.Context, sessionID string, ch Challenge) error
	Get(ctx context.Context, sessionID string) (Challenge, error)
	Delete(ctx context.Context, sessionID string) error
}
