package homeai

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "with detail",
			err:      &APIError{StatusCode: 404, Status: "Not Found", Detail: "Render job not found"},
			expected: "homeai: 404 Not Found: Render job not found",
		},
		{
			name:     "without detail",
			err:      &APIError{StatusCode: 500, Status: "Internal Server Error"},
			expected: "homeai: 500 Internal Server Error",
		},
		{
			name:     "request id is not part of the message",
			err:      &APIError{StatusCode: 503, Status: "Service Unavailable", RequestID: "req-123"},
			expected: "homeai: 503 Service Unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAPIError_Is(t *testing.T) {
	tests := []struct {
		name        string
		apiErr      *APIError
		target      error
		shouldMatch bool
	}{
		{name: "401 matches ErrUnauthorized", apiErr: &APIError{StatusCode: 401}, target: ErrUnauthorized, shouldMatch: true},
		{name: "403 matches ErrForbidden", apiErr: &APIError{StatusCode: 403}, target: ErrForbidden, shouldMatch: true},
		{name: "404 matches ErrNotFound", apiErr: &APIError{StatusCode: 404}, target: ErrNotFound, shouldMatch: true},
		{name: "429 matches ErrRateLimited", apiErr: &APIError{StatusCode: 429}, target: ErrRateLimited, shouldMatch: true},
		{name: "403 does not match ErrUnauthorized", apiErr: &APIError{StatusCode: 403}, target: ErrUnauthorized, shouldMatch: false},
		{name: "500 matches nothing", apiErr: &APIError{StatusCode: 500}, target: ErrNotFound, shouldMatch: false},
		{name: "404 does not match ErrDecode", apiErr: &APIError{StatusCode: 404}, target: ErrDecode, shouldMatch: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldMatch, errors.Is(tt.apiErr, tt.target))
		})
	}
}

func TestAPIError_Helpers(t *testing.T) {
	notFound := &APIError{StatusCode: 404}
	assert.True(t, notFound.IsNotFound())
	assert.True(t, notFound.IsClientError())
	assert.False(t, notFound.IsUnauthorized())

	unauth := &APIError{StatusCode: 401}
	assert.True(t, unauth.IsUnauthorized())

	server := &APIError{StatusCode: 502}
	assert.False(t, server.IsClientError())
}

func TestIsAPIError(t *testing.T) {
	wrapped := fmt.Errorf("poll: %w", &APIError{StatusCode: 404})

	apiErr, ok := IsAPIError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 404, apiErr.StatusCode)

	_, ok = IsAPIError(errors.New("plain"))
	assert.False(t, ok)
}

func TestNetworkError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &NetworkError{BaseURL: "http://localhost:8000", Err: cause}

	assert.True(t, errors.Is(err, ErrNetworkUnreachable))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "cannot reach API at http://localhost:8000")
	assert.Contains(t, err.Error(), "check API URL, CORS, and server status")
}

func TestAuthError(t *testing.T) {
	cause := &APIError{StatusCode: 500, Status: "Internal Server Error"}
	err := &AuthError{UserID: "u1", Reason: "login exchange failed", Err: cause}

	assert.True(t, errors.Is(err, ErrAuth))
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, `homeai: login for "u1" failed: login exchange failed: homeai: 500 Internal Server Error`, err.Error())

	bare := &AuthError{UserID: "u1", Reason: "missing access token"}
	assert.Equal(t, `homeai: login for "u1" failed: missing access token`, bare.Error())
	assert.Nil(t, bare.Unwrap())
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("target_parts", "must contain at least 1 item(s)")

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "homeai: invalid target_parts: must contain at least 1 item(s)", err.Error())
}

func TestDecodeError(t *testing.T) {
	withPath := missingField("profile")
	assert.True(t, errors.Is(withPath, ErrDecode))
	assert.Equal(t, "homeai: decode response at profile: required field missing", withPath.Error())

	noPath := &DecodeError{Err: errors.New("unexpected EOF")}
	assert.Equal(t, "homeai: decode response: unexpected EOF", noPath.Error())
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrBaseURLRequired,
		ErrNetworkUnreachable,
		ErrDecode,
		ErrUnauthorized,
		ErrForbidden,
		ErrNotFound,
		ErrRateLimited,
		ErrAuth,
		ErrNoSession,
		ErrValidation,
		ErrPollCanceled,
	}

	seen := map[string]bool{}
	for _, err := range sentinels {
		msg := err.Error()
		assert.NotEmpty(t, msg)
		assert.False(t, seen[msg], "duplicate sentinel message %q", msg)
		seen[msg] = true
	}
}
