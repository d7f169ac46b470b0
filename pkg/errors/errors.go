package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeAuth           ErrorType = "auth"
	ErrorTypeParsing        ErrorType = "parsing"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeServerError    ErrorType = "server_error"
	ErrorTypeMalformedInput ErrorType = "malformed_input"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// Error represents an API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without a cause.
func New(t ErrorType, code int, msg string) *Error {
	return &Error{Type: t, Code: code, Message: msg}
}

// Wrap creates a typed error around cause.
func Wrap(t ErrorType, code int, msg string, cause error) *Error {
	return &Error{Type: t, Code: code, Message: msg, Err: cause}
}

// NewAuthError reports missing or rejected credentials.
func NewAuthError(msg string, cause error) *Error {
	return &Error{Type: ErrorTypeAuth, Code: 401, Message: msg, Err: cause}
}

// NewRateLimitError reports a refused call on a rate-limited endpoint.
func NewRateLimitError(endpoint string) *Error {
	return &Error{Type: ErrorTypeRateLimit, Code: 429, Message: "rate limit exceeded for " + endpoint}
}

// NewMalformedInputError reports an input line that could not be turned into an identifier.
func NewMalformedInputError(line int, msg string, cause error) *Error {
	return &Error{Type: ErrorTypeMalformedInput, Code: line, Message: msg, Err: cause}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown for untyped errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeAuth
}

// IsRateLimit reports whether err is a rate-limit signal.
func IsRateLimit(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeRateLimit
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeMalformedInput:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
