package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Wizard step bounds. The wizard has exactly four data-entry stages.
const (
	MinStep = 1
	MaxStep = 4
)

// WizardState is the navigational state persisted alongside the form record.
// Transitions are monotonic within one enrollment attempt: CurrentStep moves
// by one, SubmissionAttempts only increments until the post-verification reset.
type WizardState struct {
	CurrentStep         int    `json:"currentStep"`
	FormSubmitted       bool   `json:"formSubmitted"`
	OtpSent             bool   `json:"otpSent"`
	OtpVerified         bool   `json:"otpVerified"`
	SubmissionTimestamp *int64 `json:"submissionTimestamp"` // epoch ms
	SubmissionAttempts  int    `json:"submissionAttempts"`
}

// CheckState remembers the outcome of the last duplicate-chit lookup so an
// identical (mobile, relationship) pair is never re-queried.
type CheckState struct {
	LastMobile       string `json:"lastMobile,omitempty"`
	LastRelationship string `json:"lastRelationship,omitempty"`
	MobileExists     bool   `json:"mobileExists"`
	PendingStatus    bool   `json:"pendingStatus"`
}

// Blocked reports whether forward navigation is blocked: a fully-active
// duplicate blocks, a pending duplicate passes with a surfaced warning.
func (c CheckState) Blocked() bool {
	return c.MobileExists && !c.PendingStatus
}

// StoredSession is the persisted snapshot written to the cookie jar after every
// state change. A snapshot older than the expiration window is discarded
// wholesale, never partially reused.
type StoredSession struct {
	Data      FormRecord  `json:"data"`
	Timestamp int64       `json:"timestamp"` // epoch ms of the snapshot
	FormState WizardState `json:"formState"`
	Check     CheckState  `json:"check"`
	SessionID string      `json:"sessionId,omitempty"`
}

// Expired reports whether the snapshot has passed the expiration window.
func (s *StoredSession) Expired(now time.Time, window time.Duration) bool {
	captured := time.UnixMilli(s.Timestamp)
	return now.Sub(captured) >= window
}

// NewSessionID generates the per-browser-session correlation ID: capture
// timestamp plus a random suffix. It is never regenerated while a session
// record is alive.
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}
