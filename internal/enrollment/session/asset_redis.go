package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Space2024/chitenv/internal/enrollment/models"
	"github.com/Space2024/chitenv/internal/platform/redis"
	"github.com/Space2024/chitenv/pkg/platform/sentinel"
)

const assetKeyPrefix = "chitenv:asset:"

// RedisAssetStore keeps photograph blobs in Redis so a session survives a
// process restart. Expiry is delegated to Redis key TTLs.
type RedisAssetStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAssetStore returns a store writing keys with the given TTL.
func NewRedisAssetStore(client *redis.Client, ttl time.Duration) *RedisAssetStore {
	return &RedisAssetStore{client: client, ttl: ttl}
}

func redisAssetKey(sessionID string, slot models.PhotoSlot) string {
	return assetKeyPrefix + sessionID + ":" + string(slot)
}

func (s *RedisAssetStore) Put(ctx context.Context, sessionID string, slot models.PhotoSlot, asset Asset) error {
	raw, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("marshal asset: %w", err)
	}
	if err := s.client.Set(ctx, redisAssetKey(sessionID, slot), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("store asset: %w", err)
	}
	return nil
}

func (s *RedisAssetStore) Get(ctx context.Context, sessionID string, slot models.PhotoSlot) (Asset, error) {
	raw, err := s.client.Get(ctx, redisAssetKey(sessionID, slot)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Asset{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Asset{}, fmt.Errorf("load asset: %w", err)
	}
	var asset Asset
	if err := json.Unmarshal(raw, &asset); err != nil {
		return Asset{}, fmt.Errorf("decode asset: %w", err)
	}
	return asset, nil
}

func (s *RedisAssetStore) Delete(ctx context.Context, sessionID string, slot models.PhotoSlot) error {
	if err := s.client.Del(ctx, redisAssetKey(sessionID, slot)).Err(); err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}

func (s *RedisAssetStore) DeleteSession(ctx context.Context, sessionID string) error {
	keys := []string{
		redisAssetKey(sessionID, models.SlotPhoto1),
		redisAssetKey(sessionID, models.SlotPhoto2),
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete session assets: %w", err)
	}
	return nil
}
