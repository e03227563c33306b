// Package errors defines the failure taxonomy shared by the API client layer
// and the console.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies a ServiceError.
type ErrorCode string

const (
	// CodeTransport is a network or transport failure; no response was received.
	CodeTransport ErrorCode = "TRANSPORT_ERROR"
	// CodeUnauthorized is a 401: the session is invalid.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// CodeForbidden is a 403: the session lacks privileges.
	CodeForbidden ErrorCode = "FORBIDDEN"
	// CodeAPI is any other non-2xx response or malformed success body.
	CodeAPI ErrorCode = "API_ERROR"
	// CodeNoSession means an authenticated call was attempted without a token.
	CodeNoSession ErrorCode = "NO_SESSION"
	// CodeInvalidInput is a client-side argument error.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	// CodeRateLimited is returned by the console's login throttle.
	CodeRateLimited ErrorCode = "RATE_LIMITED"
	// CodeInternal is an unexpected local failure.
	CodeInternal ErrorCode = "INTERNAL_ERROR"
)

// DefaultForbiddenMessage is used when a 403 body carries no message.
const DefaultForbiddenMessage = "Access forbidden: admin role required"

// ServiceError is a classified failure carrying a user-facing message.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a detail key/value and returns e.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a ServiceError.
func New(code ErrorCode, status int, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

// Transport wraps a network failure.
func Transport(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeTransport, Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
}

// Unauthorized reports an invalid session.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Unauthorized"
	}
	return New(CodeUnauthorized, http.StatusUnauthorized, message)
}

// Forbidden reports insufficient privileges.
func Forbidden(message string) *ServiceError {
	if message == "" {
		message = DefaultForbiddenMessage
	}
	return New(CodeForbidden, http.StatusForbidden, message)
}

// API reports a non-2xx response that is neither 401 nor 403.
func API(status int, message string) *ServiceError {
	return New(CodeAPI, status, message)
}

// NoSession reports that no bearer token is stored.
func NoSession(message string) *ServiceError {
	return New(CodeNoSession, http.StatusUnauthorized, message)
}

// InvalidInput reports a bad argument supplied by the caller.
func InvalidInput(message string) *ServiceError {
	return New(CodeInvalidInput, http.StatusBadRequest, message)
}

// RateLimitExceeded reports a throttled caller.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(CodeRateLimited, http.StatusTooManyRequests, "Too many attempts, please slow down").
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Internal wraps an unexpected local failure.
func Internal(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// GetServiceError returns the first ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// Is reports whether err carries a ServiceError with the given code.
func Is(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

// IsUnauthorized reports whether err is a 401 failure.
func IsUnauthorized(err error) bool {
	return Is(err, CodeUnauthorized)
}

// IsForbidden reports whether err is a 403 failure.
func IsForbidden(err error) bool {
	return Is(err, CodeForbidden)
}

// Message returns the user-facing message of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if se := GetServiceError(err); se != nil {
		return se.Message
	}
	return err.Error()
}
