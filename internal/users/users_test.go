package users

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autounite/admin-console/internal/apiclient"
	apierrors "github.com/autounite/admin-console/internal/errors"
	"github.com/autounite/admin-console/internal/pagination"
	"github.com/autounite/admin-console/internal/session"
	"github.com/autounite/admin-console/pkg/testutil"
)

func setup(t *testing.T, role string) (*testutil.MockBackend, *session.Store, *Client) {
	t.Helper()
	backend := testutil.NewMockBackend(t)
	backend.AddUser("staff@example.com", "pw", role)

	store := session.New(nil, nil)
	store.SetToken(backend.IssueToken("staff@example.com"))
	store.SetProfile(session.Profile{Email: "staff@example.com", Role: session.Role(role)})

	api, err := apiclient.New(apiclient.Config{BaseURL: backend.URL()}, store, nil)
	require.NoError(t, err)
	return backend, store, New(api)
}

func TestFilterValues(t *testing.T) {
	v := Filter{}.Values()
	assert.Equal(t, "10", v.Get("limit"))
	for _, key := range []string{"search", "role", "isActive"} {
		_, present := v[key]
		assert.False(t, present, key)
	}

	active := false
	v = Filter{Search: "ann", Role: session.RoleAdmin, IsActive: &active}.Values()
	assert.Equal(t, "ann", v.Get("search"))
	assert.Equal(t, "admin", v.Get("role"))
	assert.Equal(t, "false", v.Get("isActive"))
}

func TestList_NormalizesPagination(t *testing.T) {
	backend, _, c := setup(t, "admin")
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		backend.AddUser(email, "pw", "user")
	}

	page, err := c.List(context.Background(), Filter{Role: session.RoleUser, Params: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, pagination.Pagination{
		Page:        1,
		Limit:       2,
		Total:       3,
		TotalPages:  2,
		HasNextPage: true,
	}, page.Pagination)

	from, to := page.Pagination.Window()
	assert.Equal(t, 1, from)
	assert.Equal(t, 2, to)
}

func TestList_Forbidden(t *testing.T) {
	_, store, c := setup(t, "user")

	_, err := c.List(context.Background(), Filter{})
	require.Error(t, err)
	assert.True(t, apierrors.IsForbidden(err))
	assert.Equal(t, testutil.MsgAdminRequired, apierrors.Message(err))
	assert.True(t, store.IsAuthenticated())
}

func TestGet_AcceptsNestedUser(t *testing.T) {
	backend, _, c := setup(t, "admin")
	target := backend.AddUser("member@example.com", "pw", "user")

	u, err := c.Get(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, "member@example.com", u.Email)
	assert.Equal(t, "member@example.com", u.Name())
}

func TestGet_AcceptsFlatUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"_id":"u1","email":"flat@example.com","firstName":"Flo","lastName":"Flat","role":"admin"}}`))
	}))
	defer server.Close()

	api, err := apiclient.New(apiclient.Config{BaseURL: server.URL}, session.New(nil, nil), nil)
	require.NoError(t, err)

	u, err := New(api).Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Flo Flat", u.Name())
	assert.Equal(t, session.RoleAdmin, u.Role)
}

func TestGet_NotFound(t *testing.T) {
	_, _, c := setup(t, "admin")
	_, err := c.Get(context.Background(), "nope")
	assert.Equal(t, "User not found", apierrors.Message(err))
}

func TestList_401ClearsSession(t *testing.T) {
	backend, store, c := setup(t, "admin")
	backend.RevokeTokens()

	_, err := c.List(context.Background(), Filter{})
	assert.True(t, apierrors.IsUnauthorized(err))
	assert.False(t, store.IsAuthenticated())

	_, err = c.Get(context.Background(), "x")
	assert.Error(t, err)
}
