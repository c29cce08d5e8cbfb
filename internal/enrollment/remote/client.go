// Package remote is the boundary to the upstream enrollment service. Only the
// request/response shapes are owned here; the upstream's internals are not.
package remote

import (
	"context"

	"github.com/Space2024/chitenv/internal/enrollment/models"
)

// Chit status codes returned by the upstream chit_user endpoint.
const (
	ChitStatusActive  = "V"
	ChitStatusPending = "P"
)

// ChitStatus is the outcome of a duplicate/pending-chit lookup.
type ChitStatus struct {
	Exists bool
	Status string // "V", "P", or other
}

// CustomerProfile is the prefill payload for a known mobile number.
type CustomerProfile struct {
	Status string            `json:"status"`
	Fields map[string]string `json:"-"`
}

// SubmitRequest is the multipart submission payload.
type SubmitRequest struct {
	Record    *models.FormRecord
	SessionID string
	Branch    string
	Images    []SubmitImage // at most two, under the "images" key
}

// SubmitImage is one encoded photograph attached to the submission.
type SubmitImage struct {
	Slot        models.PhotoSlot
	ContentType string
	Data        []byte
}

// Client is the thin interface over the upstream's three read and three write
// endpoints. All failures surface as coded domain errors.
type Client interface {
	// CheckUser reports whether an active customer record exists for the mobile.
	CheckUser(ctx context.Context, mobile string) (bool, error)
	// ChitUser reports duplicate/pending chit membership for the pair.
	ChitUser(ctx context.Context, mobile, relationship string) (ChitStatus, error)
	// Customer fetches the prefill profile for the mobile, or nil when unknown.
	Customer(ctx context.Context, mobile string) (*CustomerProfile, error)
	// Submit posts the assembled enrollment record.
	Submit(ctx context.Context, req SubmitRequest) error
	// VerifyOTP posts the entered code; true means the code was accepted.
	VerifyOTP(ctx context.Context, code, mobile, sessionID string) (bool, error)
	// ResendOTP asks the upstream to reissue the challenge code.
	ResendOTP(ctx context.Context, mobile, sessionID string) error
}
