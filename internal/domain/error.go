package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// ErrorKind is the closed set of machine-readable failure codes returned to callers.
type ErrorKind string

const (
	KindInvalidFormat          ErrorKind = "invalid_format"
	KindInvalidKey             ErrorKind = "invalid_key"
	KindLicenseExpired         ErrorKind = "license_expired"
	KindLicenseSuspended       ErrorKind = "license_suspended"
	KindLicenseRevoked         ErrorKind = "license_revoked"
	KindActivationLimitReached ErrorKind = "activation_limit_reached"
	KindRestrictionViolation   ErrorKind = "restriction_violation"
	KindRateLimitExceeded      ErrorKind = "rate_limit_exceeded"
	KindServerError            ErrorKind = "server_error"
)

// HTTPStatus returns the stable non-2xx status for the kind.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidFormat:
		return http.StatusBadRequest
	case KindInvalidKey:
		return http.StatusNotFound
	case KindLicenseExpired, KindLicenseSuspended, KindLicenseRevoked, KindRestrictionViolation:
		return http.StatusForbidden
	case KindActivationLimitReached:
		return http.StatusConflict
	case KindRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may retry the same input with backoff.
func (k ErrorKind) Retryable() bool { return k == KindServerError }

// Error is a classified engine failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// WrapServerError classifies an infrastructure failure (storage, timeout) as server_error.
func WrapServerError(err error, msg string) *Error {
	return &Error{Kind: KindServerError, Message: msg, Err: err}
}

// KindOf extracts the kind from err. Unclassified errors are server errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindServerError
}

// MessageOf returns the human-readable message for err.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "storage timeout"
	}
	return "internal server error"
}
