package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autounite/admin-console/internal/logging"
)

func TestWriteErrorResponse_IncludesTraceID(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r = r.WithContext(logging.WithTraceID(r.Context(), "trace-1"))
	rec := httptest.NewRecorder()

	WriteErrorResponse(rec, r, http.StatusTooManyRequests, "RATE_LIMITED", "slow down", map[string]interface{}{"limit": 1})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "RATE_LIMITED", body.Code)
	assert.Equal(t, "trace-1", body.TraceID)
	assert.EqualValues(t, 1, body.Details["limit"])
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"}, "10.0.0.1:1234", "1.2.3.4"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 1.2.3.4 "}, "10.0.0.1:1234", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "9.9.9.9"}, "10.0.0.1:1234", "9.9.9.9"},
		{"remote addr", nil, "10.0.0.1:1234", "10.0.0.1"},
		{"ipv6 remote", nil, "[::1]:8080", "::1"},
		{"bare remote", nil, "unix", "unix"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIP(r))
		})
	}
}
