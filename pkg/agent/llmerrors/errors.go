// Package llmerrors provides structured error classification for LLM API
// interactions, feeding the retry layer.
package llmerrors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of LLM errors for retry logic.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents HTTP 200 but no content errors.
	ErrorTypeEmptyResponse

	// Non-retryable error types.

	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed request errors (too long, violates policy).
	ErrorTypeBadPrompt
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error is a classified LLM error.
type Error struct {
	Cause   error
	Message string
	Type    ErrorType
	Status  int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether errors of this type should be retried.
func (e *Error) Retryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse:
		return true
	default:
		return false
	}
}

// NewError creates a classified error.
func NewError(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message}
}

// NewErrorWithCause creates a classified error wrapping a cause.
func NewErrorWithCause(errType ErrorType, cause error, message string) *Error {
	return &Error{Type: errType, Message: message, Cause: cause}
}

// NewErrorWithStatus creates a classified error carrying an HTTP status.
func NewErrorWithStatus(errType ErrorType, status int, message string) *Error {
	return &Error{Type: errType, Message: message, Status: status}
}

// IsRetryable reports whether err is a classified, retryable LLM error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable()
	}
	return false
}
