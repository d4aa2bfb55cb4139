package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for retry and surfacing decisions.
type Code int

const (
	// Client errors
	CodeValidation Code = 1000
	CodeNotFound   Code = 1001

	// Store errors
	CodeConflict       Code = 2000
	CodeTransientInfra Code = 2001
	CodeFatal          Code = 2002
)

// Error is a structured error with a classification code and an optional
// underlying cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to an HTTP status for the handler layer.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Validation creates a client-input error. Never retried.
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

// NotFound creates an absent-row error.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// Conflict creates a retryable store-conflict error (deadlock or
// serialization failure).
func Conflict(message string, cause error) *Error {
	return &Error{Code: CodeConflict, Message: message, Cause: cause}
}

// TransientInfra creates an error for unreachable cache or bus
// infrastructure. Callers log these and continue against the backing store.
func TransientInfra(message string, cause error) *Error {
	return &Error{Code: CodeTransientInfra, Message: message, Cause: cause}
}

// Fatal creates an error for exhausted retry budgets and unclassified
// backing-store failures. Propagated to the caller unchanged.
func Fatal(message string, cause error) *Error {
	return &Error{Code: CodeFatal, Message: message, Cause: cause}
}

// GetCode extracts the classification code from an error chain.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeFatal
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return GetCode(err) == CodeValidation
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return GetCode(err) == CodeNotFound
}

// IsConflict reports whether err is a retryable store conflict.
func IsConflict(err error) bool {
	return GetCode(err) == CodeConflict
}
