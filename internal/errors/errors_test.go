package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForbidden_DefaultMessage(t *testing.T) {
	err := Forbidden("")
	assert.Equal(t, DefaultForbiddenMessage, err.Message)
	assert.Equal(t, http.StatusForbidden, err.HTTPStatus)
	assert.True(t, IsForbidden(err))
	assert.False(t, IsUnauthorized(err))
}

func TestGetServiceError_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("list queries: %w", Unauthorized(""))
	se := GetServiceError(wrapped)
	if assert.NotNil(t, se) {
		assert.Equal(t, CodeUnauthorized, se.Code)
	}
	assert.True(t, IsUnauthorized(wrapped))
	assert.Nil(t, GetServiceError(stderrors.New("plain")))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "Failed to fetch users", Message(fmt.Errorf("users: %w", API(500, "Failed to fetch users"))))
	assert.Equal(t, "plain", Message(stderrors.New("plain")))
}

func TestTransport_Unwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Transport("Network error", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRateLimitExceeded_Details(t *testing.T) {
	err := RateLimitExceeded(5, "1s")
	assert.Equal(t, 5, err.Details["limit"])
	assert.Equal(t, "1s", err.Details["window"])
}
