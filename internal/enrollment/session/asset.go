package session

import (
	"context"

	"github.com/Space2024/chitenv/internal/enrollment/models"
)

// Asset is a stored photograph blob.
type Asset struct {
	Data        []byte `json:"data"`
	ContentType string `json:"contentType"`
}

// AssetStore holds photograph bytes per session and slot. Entries share the
// session expiry window; reads past expiry report sentinel.ErrNotFound.
type AssetStore interface {
	Put(ctx context.Context, sessionID string, slot models.PhotoSlot, asset Asset) error
	Get(ctx context.Context, sessionID string, slot models.PhotoSlot) (Asset, error)
	Delete(ctx context.Context, sessionID string, slot models.PhotoSlot) error
	DeleteSession(ctx context.Context, sessionID string) error
}
