// Package qr issues the post-verification payment QR artifact: a signed
// token bound to the enrolled mobile number, held for a fixed display window
// and dismissed automatically afterwards.
package qr

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
	"github.com/Space2024/chitenv/pkg/platform/sentinel"
)

// Artifact is one issued QR payload.
type Artifact struct {
	ID        string    `json:"id"`
	Mobile    string    `json:"mobile"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the display window has closed.
func (a *Artifact) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Issuer signs QR tokens with a shared HMAC key.
type Issuer struct {
	key []byte
	ttl time.Duration
}

// NewIssuer returns an issuer producing tokens valid for ttl.
func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	return &Issuer{key: key, ttl: ttl}
}

// Claims are the signed token contents: the mobile as subject plus the
// originating enrollment session.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid,omitempty"`
}

// Issue mints an artifact for the enrolled mobile number.
func (i *Issuer) Issue(now time.Time, mobile, sessionID string) (*Artifact, error) {
	id := uuid.NewString()
	expires := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   mobile,
			Audience:  jwt.ClaimStrings{"chit-payment"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		SessionID: sessionID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue payment code")
	}
	return &Artifact{
		ID:        id,
		Mobile:    mobile,
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: expires,
	}, nil
}

// Verify checks a token's signature and expiry and returns its claims.
func (i *Issuer) Verify(token string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return i.key, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil || !parsed.Valid {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid payment code")
	}
	return claims, nil
}

// Store holds at most one live artifact per mobile number. Expired entries
// are dismissed on the read path.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Artifact
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*Artifact)}
}

// Put records the artifact, replacing any earlier one for the same mobile.
func (s *Store) Put(a *Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[a.Mobile] = a
}

// Get returns the live artifact for the mobile. A past-expiry artifact is
// removed and reported as absent.
func (s *Store) Get(now time.Time, mobile string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.entries[mobile]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if a.Expired(now) {
		delete(s.entries, mobile)
		return nil, sentinel.ErrExpired
	}
	return a, nil
}

// Dismiss drops the artifact for the mobile, if any.
func (s *Store) Dismiss(mobile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, mobile)
}
