package session

import (
	"context"
	"sync"
	"time"

	"github.com/Space2024/chitenv/internal/enrollment/models"
	"github.com/Space2024/chitenv/pkg/platform/sentinel"
	"github.com/Space2024/chitenv/pkg/requestcontext"
)

type memoryEntry struct {
	asset     Asset
	expiresAt time.Time
}

// InMemoryAssetStore keeps photograph blobs in process memory. Entries
// expire lazily on read and are swept on writes, so an idle store holds at
// most the blobs written during the last expiry window.
type InMemoryAssetStore struct {
	mu     sync.RWMutex
	ttl    time.Duration
	assets map[string]memoryEntry
}

// NewInMemoryAssetStore returns an empty store with the given entry TTL.
func NewInMemoryAssetStore(ttl time.Duration) *InMemoryAssetStore {
	return &InMemoryAssetStore{
		ttl:    ttl,
		assets: make(map[string]memoryEntry),
	}
}

func assetKey(sessionID string, slot models.PhotoSlot) string {
	return sessionID + "/" + string(slot)
}

func (s *InMemoryAssetStore) Put(ctx context.Context, sessionID string, slot models.PhotoSlot, asset Asset) error {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.assets {
		if !now.Before(e.expiresAt) {
			delete(s.assets, k)
		}
	}
	s.assets[assetKey(sessionID, slot)] = memoryEntry{asset: asset, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *InMemoryAssetStore) Get(ctx context.Context, sessionID string, slot models.PhotoSlot) (Asset, error) {
	now := requestcontext.Now(ctx)
	s.mu.RLock()
	entry, ok := s.assets[assetKey(sessionID, slot)]
	s.mu.RUnlock()
	if !ok || !now.Before(entry.expiresAt) {
		return Asset{}, sentinel.ErrNotFound
	}
	return entry.asset, nil
}

func (s *InMemoryAssetStore) Delete(_ context.Context, sessionID string, slot models.PhotoSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assets, assetKey(sessionID, slot))
	return nil
}

func (s *InMemoryAssetStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range []models.PhotoSlot{models.SlotPhoto1, models.SlotPhoto2} {
		delete(s.assets, assetKey(sessionID, slot))
	}
	return nil
}
