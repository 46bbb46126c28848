package kalshorb

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures inside the service. Every code is reported
// to HTTP callers under the single PublicErrorCode.
type ErrorCode string

const (
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeUnknownAction ErrorCode = "UNKNOWN_ACTION"
	ErrCodeUpstream      ErrorCode = "UPSTREAM"
	ErrCodeStorage       ErrorCode = "STORAGE"
	ErrCodeNotConfigured ErrorCode = "NOT_CONFIGURED"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
)

// PublicErrorCode is the only error code exposed in responses.
const PublicErrorCode = "KALSHORB_ERROR"

var (
	// ErrNotConfigured is returned by a Completer without an API key.
	ErrNotConfigured = NewError(ErrCodeNotConfigured, "language model API key is not configured")
	// ErrEmptyCompletion is returned when the model produced no text.
	ErrEmptyCompletion = NewError(ErrCodeUpstream, "language model returned an empty completion")
)

// Error represents a structured error with classification code.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors carrying the same code and message, so wrapped copies of
// the sentinels above still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with classification code and additional context.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsErrorCode reports whether any error in err's chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// CodeOf returns the code of the first *Error in err's chain, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
