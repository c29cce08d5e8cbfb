// Package domainerrors defines the coded error type shared by all enrollment
// services. Stores return sentinel errors; services wrap them here so the HTTP
// layer can translate codes to status codes without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for transport mapping and branching.
type Code string

const (
	// CodeInvalidInput marks field-scoped validation failures. Recoverable;
	// blocks navigation only.
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest marks malformed requests (undecodable body, bad branch).
	CodeBadRequest Code = "bad_request"
	// CodeNotFound marks missing resources.
	CodeNotFound Code = "not_found"
	// CodeConflict marks duplicate-state conflicts (active duplicate chit).
	CodeConflict Code = "conflict"
	// CodeRateLimited marks cooldown and attempt-budget rejections.
	CodeRateLimited Code = "rate_limited"
	// CodeLocked marks a terminal attempt-ceiling lockout.
	CodeLocked Code = "locked"
	// CodeTimeout marks a client-enforced deadline on a remote call,
	// reported distinctly from a server rejection.
	CodeTimeout Code = "timeout"
	// CodeUnavailable marks an unreachable upstream.
	CodeUnavailable Code = "unavailable"
	// CodeInvariantViolation marks a broken internal invariant.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a domain error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message, preserving the cause chain.
// Wrapping nil returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the user-facing message from err. Non-domain errors get
// a generic message so internals never leak to the notification channel.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "an unexpected error occurred"
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited, CodeLocked:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
