package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autounite/admin-console/internal/apiclient"
	"github.com/autounite/admin-console/internal/auth"
	"github.com/autounite/admin-console/internal/errors"
	"github.com/autounite/admin-console/internal/guard"
	"github.com/autounite/admin-console/internal/logging"
	"github.com/autounite/admin-console/internal/session"
	"github.com/autounite/admin-console/pkg/testutil"
)

type testScope struct {
	g *guard.Guard
	p *guard.Policy
}

func (s testScope) Guard() *guard.Guard   { return s.g }
func (s testScope) Policy() *guard.Policy { return s.p }

func newScope(t *testing.T, backend *testutil.MockBackend, store *session.Store) testScope {
	t.Helper()
	policy := guard.NewPolicy("", nil)
	api, err := apiclient.New(apiclient.Config{BaseURL: backend.URL()}, store, policy)
	require.NoError(t, err)
	return testScope{g: guard.New(store, auth.New(api)), p: policy}
}

func TestTracingMiddleware(t *testing.T) {
	var seen string
	h := NewTracingMiddleware(logging.Discard()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetTraceID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(TraceHeader))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, "upstream-trace")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "upstream-trace", seen)
}

func TestRateLimiter_ThrottlesPerClient(t *testing.T) {
	var limited *errors.ServiceError
	rl := NewRateLimiter(0.001, 2, logging.Discard(), func(w http.ResponseWriter, r *http.Request, err *errors.ServiceError) {
		limited = err
		w.WriteHeader(err.HTTPStatus)
	})
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	require.NotNil(t, limited)
	assert.Equal(t, errors.CodeRateLimited, limited.Code)

	assert.Equal(t, http.StatusOK, send("10.0.0.2"), "other clients are unaffected")
}

func TestRateLimiter_DefaultResponseIsJSON(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, logging.Discard(), nil)
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
}

func TestRateLimiter_Prune(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1, logging.Discard(), nil)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(20 * time.Minute)
	rl.Allow("b")

	assert.Equal(t, 1, rl.Prune(10*time.Minute))
	assert.Equal(t, 1, rl.Len())
}

func TestAuthMiddleware_RedirectsWithoutSession(t *testing.T) {
	backend := testutil.NewMockBackend(t)
	sc := newScope(t, backend, session.New(nil, nil))

	mw := NewAuthMiddleware(func(*http.Request) Scope { return sc }, logging.Discard(), []string{"/healthz"})
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("protected handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queries", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, guard.LoginRoute, rec.Header().Get("Location"))
	assert.Empty(t, backend.Calls())
}

func TestAuthMiddleware_SkipPaths(t *testing.T) {
	mw := NewAuthMiddleware(func(*http.Request) Scope {
		t.Fatal("skipped paths need no scope")
		return nil
	}, logging.Discard(), []string{"/healthz"})

	rec := httptest.NewRecorder()
	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthMiddleware_AttachesProfile(t *testing.T) {
	backend := testutil.NewMockBackend(t)
	user := backend.AddUser("admin@example.com", "pw", "admin")
	store := session.New(nil, nil)
	store.SetToken(backend.IssueToken("admin@example.com"))
	sc := newScope(t, backend, store)

	var got session.Profile
	var role string
	h := NewTracingMiddleware(logging.Discard()).Handler(
		NewAuthMiddleware(func(*http.Request) Scope { return sc }, logging.Discard(), nil).Handler(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = GetProfile(r.Context())
				role = GetUserRole(r.Context())
				assert.Equal(t, user.ID, GetUserID(r.Context()))
			})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin@example.com", got.Email)
	assert.Equal(t, "admin", role)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
