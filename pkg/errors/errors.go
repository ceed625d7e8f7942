package errors

import "fmt"

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeTransport     ErrorType = "transport"
	ErrorTypeRateLimited   ErrorType = "rate_limited"
	ErrorTypeServerError   ErrorType = "server_error"
	ErrorTypeParse         ErrorType = "parse"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeOutOfWindow   ErrorType = "out_of_window"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// Error represents a classified request or pipeline error
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New creates a typed error without an HTTP status code
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewWithCode creates a typed error carrying the HTTP status code that
// produced it.
func NewWithCode(errorType ErrorType, message string, code int) *Error {
	return &Error{Type: errorType, Message: message, Code: code}
}

// TypeOf extracts the error type from err, or ErrorTypeUnknown when
// err is not a classified error.
func TypeOf(err error) ErrorType {
	if e, ok := err.(*Error); ok {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransport, ErrorTypeRateLimited, ErrorTypeServerError:
		return true
	case ErrorTypeParse, ErrorTypeNotFound, ErrorTypeOutOfWindow, ErrorTypeConfiguration:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Transport error
		return true
	case 403, 429, 503: // Wayback throttling responses
		return true
	case 500, 502, 504: // Server errors
		return true
	case 401, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
