package guard

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autounite/admin-console/internal/apiclient"
	"github.com/autounite/admin-console/internal/auth"
	"github.com/autounite/admin-console/internal/queries"
	"github.com/autounite/admin-console/internal/session"
	"github.com/autounite/admin-console/pkg/testutil"
)

type harness struct {
	backend *testutil.MockBackend
	store   *session.Store
	policy  *Policy
	auth    *auth.Service
	api     *apiclient.Client
	guard   *Guard
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := testutil.NewMockBackend(t)
	backend.AddUser("admin@example.com", "pw", "admin")

	store := session.New(nil, nil)
	policy := NewPolicy("", nil)
	api, err := apiclient.New(apiclient.Config{BaseURL: backend.URL()}, store, policy)
	require.NoError(t, err)
	svc := auth.New(api)

	return &harness{
		backend: backend,
		store:   store,
		policy:  policy,
		auth:    svc,
		api:     api,
		guard:   New(store, svc),
	}
}

func TestCheck_NoTokenRedirectsWithoutBackendCall(t *testing.T) {
	h := newHarness(t)

	d := h.guard.Check(context.Background(), "/queries")
	assert.Equal(t, StateUnauthenticated, d.State)
	assert.Equal(t, Redirect, d.Action)
	assert.Equal(t, LoginRoute, d.Target)
	assert.Empty(t, h.backend.Calls())

	target, ok := h.policy.Navigate(d)
	assert.True(t, ok)
	assert.Equal(t, LoginRoute, target)
}

func TestCheck_LoginThenProtectedRouteRenders(t *testing.T) {
	h := newHarness(t)
	_, err := h.auth.Login(context.Background(), "admin@example.com", "pw")
	require.NoError(t, err)

	d := h.guard.Check(context.Background(), "/requests")
	assert.Equal(t, StateAuthenticated, d.State)
	assert.Equal(t, Render, d.Action)
	assert.Equal(t, "admin@example.com", d.Profile.Email)
	assert.Equal(t, StateAuthenticated, h.guard.State())
	assert.Equal(t, 1, h.backend.CallCount("/api/v1/auth/me"))

	_, redirect := h.policy.Navigate(d)
	assert.False(t, redirect)
}

func TestCheck_LoginRoute(t *testing.T) {
	h := newHarness(t)

	d := h.guard.Check(context.Background(), LoginRoute)
	assert.Equal(t, StateOnLoginPage, d.State)
	assert.Equal(t, Render, d.Action)
	assert.Empty(t, h.backend.Calls(), "no token, no check")

	h.store.SetToken(h.backend.IssueToken("admin@example.com"))
	d = h.guard.Check(context.Background(), LoginRoute)
	assert.Equal(t, Redirect, d.Action)
	assert.Equal(t, HomeRoute, d.Target)
}

func TestCheck_ExpiredTokenOnLoginRouteRendersLogin(t *testing.T) {
	h := newHarness(t)
	h.store.SetToken("stale")

	d := h.guard.Check(context.Background(), LoginRoute)
	assert.Equal(t, StateOnLoginPage, d.State)
	assert.Error(t, d.Err)
	assert.False(t, h.store.IsAuthenticated())

	_, redirect := h.policy.Navigate(d)
	assert.False(t, redirect, "already on the login page")
	assert.False(t, h.policy.Pending())
}

func TestCheck_RevokedTokenRedirectsExactlyOnce(t *testing.T) {
	h := newHarness(t)
	_, err := h.auth.Login(context.Background(), "admin@example.com", "pw")
	require.NoError(t, err)
	h.backend.RevokeTokens()

	d := h.guard.Check(context.Background(), "/queries")
	assert.Equal(t, StateUnauthenticated, d.State)
	assert.False(t, h.store.IsAuthenticated())
	assert.True(t, h.policy.Pending())

	target, ok := h.policy.Navigate(d)
	assert.True(t, ok)
	assert.Equal(t, LoginRoute, target)

	_, again := h.policy.TakeRedirect()
	assert.False(t, again)
	assert.Equal(t, 1, h.policy.Teardowns())
}

func TestPolicy_ConcurrentUnauthorizedResponsesRedirectOnce(t *testing.T) {
	h := newHarness(t)
	_, err := h.auth.Login(context.Background(), "admin@example.com", "pw")
	require.NoError(t, err)
	h.backend.RevokeTokens()

	qc := queries.New(h.api)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = qc.List(context.Background(), queries.Filter{})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.policy.Teardowns())
	redirects := 0
	for i := 0; i < 3; i++ {
		if _, ok := h.policy.TakeRedirect(); ok {
			redirects++
		}
	}
	assert.Equal(t, 1, redirects)
}

func TestPolicy_TeardownAfterRenderRedirects(t *testing.T) {
	p := NewPolicy("/signin", nil)
	p.OnUnauthorized(context.Background())

	target, ok := p.Navigate(Decision{State: StateAuthenticated, Action: Render})
	assert.True(t, ok)
	assert.Equal(t, "/signin", target)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "checking", StateChecking.String())
	assert.Equal(t, "on_login_page", StateOnLoginPage.String())
}
