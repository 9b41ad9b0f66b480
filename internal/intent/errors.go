package intent

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of qanerd error.
type ErrorCode string

const (
	CodeValidation       ErrorCode = "VALIDATION_FAILED"
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	CodeNotFound         ErrorCode = "INTENT_NOT_FOUND"
)

// Error is a structured error with a code, message and optional cause.
// Matching with errors.Is compares codes, so the sentinels below match any
// error of the same kind.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

var (
	// ErrValidation matches malformed intents rejected on upsert.
	ErrValidation = &Error{Code: CodeValidation, Message: "validation failed"}
	// ErrStoreUnavailable matches failures to reach the index or embedding service.
	ErrStoreUnavailable = &Error{Code: CodeStoreUnavailable, Message: "store unavailable"}
	// ErrNotFound matches lookups of unknown intent IDs.
	ErrNotFound = &Error{Code: CodeNotFound, Message: "intent not found"}
)

// NewValidationError creates a validation error.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewStoreUnavailableError creates an error for an unreachable index.
func NewStoreUnavailableError(message string, cause error) *Error {
	return &Error{Code: CodeStoreUnavailable, Message: message, Cause: cause}
}

// NewNotFoundError creates an error for a missing intent.
func NewNotFoundError(id string) *Error {
	return &Error{Code: CodeNotFound, Message: "intent not found: " + id}
}
