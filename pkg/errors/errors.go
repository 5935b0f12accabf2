package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones and wraps of a
// predefined error still match it through errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Business rule failures. The caller must not retry these unchanged.
var (
	ErrNotFound          = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrInvalidState      = New("INVALID_STATE", http.StatusBadRequest, "resource is not in a valid state")
	ErrCapacityExhausted = New("CAPACITY_EXHAUSTED", http.StatusBadRequest, "no available quota")
	ErrAlreadyExists     = New("ALREADY_EXISTS", http.StatusConflict, "resource already exists")
	ErrValidation        = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrUnauthorized      = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden         = New("FORBIDDEN", http.StatusForbidden, "forbidden")
)

// Infrastructure failures.
var (
	// ErrUnavailable covers transient store failures (connection loss, pool
	// exhaustion, deadlock, serialization failure, timeout). Retry with backoff.
	ErrUnavailable = New("STORE_UNAVAILABLE", http.StatusServiceUnavailable, "store temporarily unavailable")
	ErrInternal    = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss   = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// IsRetryable reports whether err is an infrastructure failure the caller
// may retry. Business failures are never retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsBusiness reports whether err is one of the enrollment business kinds.
func IsBusiness(err error) bool {
	for _, kind := range []*Error{ErrNotFound, ErrInvalidState, ErrCapacityExhausted, ErrAlreadyExists, ErrValidation} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
