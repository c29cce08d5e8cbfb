package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Space2024/chitenv/internal/platform/redis"
	"github.com/Space2024/chitenv/pkg/platform/sentinel"
)

const challengeKeyPrefix = "chitenv:challenge:"

// RedisChallengeStore keeps challenge records in Redis so attempt counters
// survive a process restart. Expiry is delegated to Redis key TTLs.
type RedisChallengeStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisChallengeStore returns a store writing keys with the given TTL.
func NewRedisChallengeStore(client *redis.Client, ttl time.Duration) *RedisChallengeStore {
	return &RedisChallengeStore{client: client, ttl: ttl}
}

func (s *RedisChallengeStore) Put(ctx context.Context, sessionID string, ch Challenge) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	if err := s.client.Set(ctx, challengeKeyPrefix+sessionID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

func (s *RedisChallengeStore) Get(ctx context.Context, sessionID string) (Challenge, error) {
	raw, err := s.client.Get(ctx, challengeKeyPrefix+sessionID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Challenge{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Challenge{}, fmt.Errorf("load challenge: %w", err)
	}
	var ch Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return Challenge{}, fmt.Errorf("decode challenge: %w", err)
	}
	return ch, nil
}

func (s *RedisChallengeStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, challengeKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}
