// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithSessionID(ctx, "1700000000000-ab12cd34")
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	sessionIDKey    struct{}
	branchKey       struct{}
	requestIDKey    struct{}
	requestTimeKey  struct{}
	deviceMobileKey struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeySessionID    = sessionIDKey{}
	ContextKeyBranch       = branchKey{}
	ContextKeyRequestID    = requestIDKey{}
	ContextKeyRequestTime  = requestTimeKey{}
	ContextKeyDeviceMobile = deviceMobileKey{}
)

// SessionID retrieves the enrollment session ID from the context.
func SessionID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeySessionID).(string); ok {
		return id
	}
	return ""
}

// WithSessionID injects an enrollment session ID into the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, id)
}

// Branch retrieves the decoded branch identifier from the context.
func Branch(ctx context.Context) string {
	if b, ok := ctx.Value(ContextKeyBranch).(string); ok {
		return b
	}
	return ""
}

// WithBranch injects a decoded branch identifier into the context.
func WithBranch(ctx context.Context, branch string) context.Context {
	return context.WithValue(ctx, ContextKeyBranch, branch)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// DeviceMobile reports whether the requesting device was classified as mobile.
// Mobile devices default the camera to the front (user) facing mode.
func DeviceMobile(ctx context.Context) bool {
	if mobile, ok := ctx.Value(ContextKeyDeviceMobile).(bool); ok {
		return mobile
	}
	return false
}

// WithDeviceMobile injects the device classification into a context.
func WithDeviceMobile(ctx context.Context, mobile bool) context.Context {
	return context.WithValue(ctx, ContextKeyDeviceMobile, mobile)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests that don't run the full HTTP middleware chain.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
