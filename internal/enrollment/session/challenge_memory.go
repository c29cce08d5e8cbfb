package session

import (
	"context"
	"sync"
	"time"

	"github.com/Space2024/chitenv/pkg/platform/sentinel"
	"github.com/Space2024/chitenv/pkg/requestcontext"
)

type challengeEntry struct {
	challenge Challenge
	expiresAt time.Time
}

// InMemoryChallengeStore keeps challenge records in process memory with the
// same lazy-expiry discipline as the in-memory asset store.
type InMemoryChallengeStore struct {
	mu         sync.RWMutex
	ttl        time.Duration
	challenges map[string]challengeEntry
}

// NewInMemoryChallengeStore returns an empty store with the given entry TTL.
func NewInMemoryChallengeStore(ttl time.Duration) *InMemoryChallengeStore {
	return &InMemoryChallengeStore{
		ttl:        ttl,
		challenges: make(map[string]challengeEntry),
	}
}

func (s *InMemoryChallengeStore) Put(ctx context.Context, sessionID string, ch Challenge) error {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.challenges {
		if !now.Before(e.expiresAt) {
			delete(s.challenges, k)
		}
	}
	s.challenges[sessionID] = challengeEntry{challenge: ch, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *InMemoryChallengeStore) Get(ctx context.Context, sessionID string) (Challenge, error) {
	now := requestcontext.Now(ctx)
	s.mu.RLock()
	entry, ok := s.challenges[sessionID]
	s.mu.RUnlock()
	if !ok || !now.Before(entry.expiresAt) {
		return Challenge{}, sentinel.ErrNotFound
	}
	return entry.challenge, nil
}

func (s *InMemoryChallengeStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, sessionID)
	return nil
}
