package homeai

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors - Configuration
var (
	ErrBaseURLRequired = errors.New("homeai: API base URL is required")
)

// Sentinel errors - Transport
var (
	ErrNetworkUnreachable = errors.New("homeai: API unreachable")
	ErrDecode             = errors.New("homeai: unexpected response shape")
)

// Sentinel errors - HTTP status classes, matched by *APIError.
var (
	ErrUnauthorized = errors.New("homeai: unauthorized")
	ErrForbidden    = errors.New("homeai: forbidden")
	ErrNotFound     = errors.New("homeai: not found")
	ErrRateLimited  = errors.New("homeai: rate limited")
)

// Sentinel errors - Session
var (
	ErrAuth      = errors.New("homeai: authentication failed")
	ErrNoSession = errors.New("homeai: no active session")
)

// Sentinel errors - Render jobs
var (
	ErrValidation   = errors.New("homeai: invalid request")
	ErrPollCanceled = errors.New("homeai: polling canceled")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Status is the HTTP status text, e.g. "Not Found".
	Status string
	// Detail is taken from the JSON "detail" field when present, else the raw body.
	Detail string
	// RequestID is the X-Request-ID sent with the failing request.
	RequestID string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("homeai: %d %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("homeai: %d %s: %s", e.StatusCode, e.Status, e.Detail)
}

// Is maps status codes onto the sentinel errors.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return target == ErrUnauthorized
	case http.StatusForbidden:
		return target == ErrForbidden
	case http.StatusNotFound:
		return target == ErrNotFound
	case http.StatusTooManyRequests:
		return target == ErrRateLimited
	default:
		return false
	}
}

// IsNotFound returns true if the error is a not found error.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized returns true if the server rejected the bearer token.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsClientError returns true for 4xx responses.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// NetworkError is a transport-level failure: DNS, connect, TLS or a broken body.
type NetworkError struct {
	BaseURL string
	Err     error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("homeai: cannot reach API at %s; check API URL, CORS, and server status: %v", e.BaseURL, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports a match against ErrNetworkUnreachable.
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetworkUnreachable
}

// AuthError is returned when the login exchange fails or yields no usable token.
type AuthError struct {
	UserID string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	msg := fmt.Sprintf("homeai: login for %q failed: %s", e.UserID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is reports a match against ErrAuth.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// ValidationError is a client-side precondition failure. It is raised before
// any network call.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("homeai: invalid %s: %s", e.Field, e.Message)
}

// Is reports a match against ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new ValidationError with the given field and message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// DecodeError is returned when a response does not match the expected shape.
type DecodeError struct {
	// Path locates the offending value, e.g. "profile.credits.balance".
	Path string
	Err  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("homeai: decode response: %v", e.Err)
	}
	return fmt.Sprintf("homeai: decode response at %s: %v", e.Path, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports a match against ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func missingField(path string) *DecodeError {
	return &DecodeError{Path: path, Err: errors.New("required field missing")}
}

// IsAPIError checks if an error is an API error and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
