package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a recall error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotConfigured    ErrorCode = "NOT_CONFIGURED"    // 401
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrConflict         ErrorCode = "CONFLICT"          // 409
	ErrInternal         ErrorCode = "INTERNAL"          // 500
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE" // 503
)

// RecallError represents a structured error with code, status, and details.
type RecallError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *RecallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *RecallError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *RecallError {
	return &RecallError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotConfigured creates a 401 error for missing credentials or identifiers.
// Retrying does not help; the user has to fix their setup.
func NewNotConfigured(setting, hint string) *RecallError {
	msg := fmt.Sprintf("%s is not configured", setting)
	if hint != "" {
		msg += ": " + hint
	}
	return &RecallError{
		Code:    ErrNotConfigured,
		Status:  401,
		Message: msg,
		Details: map[string]any{"setting": setting},
	}
}

// NewNotFound creates a 404 error for a missing record.
func NewNotFound(kind, identifier string) *RecallError {
	return &RecallError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewConflict creates a 409 error for resources that already exist.
func NewConflict(msg string) *RecallError {
	return &RecallError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewStoreUnavailable creates a 503 error for transient memory store failures.
func NewStoreUnavailable(op string, err error) *RecallError {
	msg := op + " failed"
	if err != nil {
		msg = fmt.Sprintf("%s failed: %v", op, err)
	}
	return &RecallError{
		Code:    ErrStoreUnavailable,
		Status:  503,
		Message: msg,
		Details: map[string]any{"op": op},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *RecallError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &RecallError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error (or anything it wraps) is a RecallError with the given code.
func Is(err error, code ErrorCode) bool {
	var rErr *RecallError
	if stderrors.As(err, &rErr) {
		return rErr.Code == code
	}
	return false
}

// IsRetryable reports whether a later attempt may succeed without user action.
func IsRetryable(err error) bool {
	return Is(err, ErrStoreUnavailable)
}
