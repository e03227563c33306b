package queries

import (
	"context"
	"net/http"
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

func boolPtr(b bool) *bool { return &b }

func TestFilterValues_OmitsUnset(t *testing.T) {
	v := Filter{}.Values()
	assert.Equal(t, "1", v.Get("page"))
	assert.Equal(t, "50", v.Get("limit"))
	assert.Equal(t, "createdAt", v.Get("sortBy"))
	assert.Equal(t, "desc", v.Get("sortOrder"))
	for _, key := range []string{"hasResults", "searchAttempted", "userEmail"} {
		_, present := v[key]
		assert.False(t, present, key)
	}

	v = Filter{HasResults: boolPtr(false), UserEmail: "  ", SearchAttempted: boolPtr(true)}.Values()
	assert.Equal(t, "false", v.Get("hasResults"), "false is a value, not an absence")
	assert.Equal(t, "true", v.Get("searchAttempted"))
	_, present := v["userEmail"]
	assert.False(t, present)
}

func TestList_FiltersAndPaginates(t *testing.T) {
	backend, _, c := setup(t, "admin")
	for i := 0; i < 3; i++ {
		backend.AddQuery(testutil.QueryRecord{Query: "engine parts", HasResults: true, ResultsCount: 4})
	}
	backend.AddQuery(testutil.QueryRecord{Query: "flux capacitor", UserEmail: "doc@example.com"})

	page, err := c.List(context.Background(), Filter{
		HasResults: boolPtr(true),
		Params:     pagination.Params{Page: 2, Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasPrevPage)
	assert.False(t, page.Pagination.HasNextPage)

	call, _ := backend.LastCall()
	assert.Equal(t, "true", call.Query.Get("hasResults"))
	_, present := call.Query["userEmail"]
	assert.False(t, present)

	page, err = c.List(context.Background(), Filter{UserEmail: "doc@"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "flux capacitor", page.Data[0].Query)
}

func TestNoResults(t *testing.T) {
	backend, _, c := setup(t, "admin")
	backend.AddQuery(testutil.QueryRecord{Query: "a", HasResults: true})
	backend.AddQuery(testutil.QueryRecord{Query: "b"})

	page, err := c.NoResults(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "b", page.Data[0].Query)

	call, _ := backend.LastCall()
	assert.Equal(t, "/api/v1/queries/no-results", call.Path)
	assert.Equal(t, "1", call.Query.Get("page"))
	assert.Equal(t, "50", call.Query.Get("limit"))
}

func TestStats(t *testing.T) {
	backend, _, c := setup(t, "admin")
	backend.AddQuery(testutil.QueryRecord{Query: "a", HasResults: true, ResultsCount: 3})
	backend.AddQuery(testutil.QueryRecord{Query: "b"})

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalQueries)
	assert.Equal(t, 1, stats.QueriesWithResults)
	assert.Equal(t, 1, stats.QueriesWithoutResults)
	assert.InDelta(t, 1.5, stats.AverageResultsCount, 0.001)
}

func TestStats_ForbiddenIsReworded(t *testing.T) {
	_, store, c := setup(t, "user")

	_, err := c.Stats(context.Background())
	require.Error(t, err)
	assert.True(t, apierrors.IsForbidden(err))
	assert.Equal(t, MsgStatsForbidden, apierrors.Message(err))
	assert.True(t, store.IsAuthenticated(), "403 never clears the session")
}

func TestGet(t *testing.T) {
	backend, _, c := setup(t, "admin")
	rec := backend.AddQuery(testutil.QueryRecord{Query: "brake pads", FiltersUsed: map[string]interface{}{"make": "audi"}})

	q, err := c.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "brake pads", q.Query)
	assert.Equal(t, "audi", q.FiltersUsed["make"])

	_, err = c.Get(context.Background(), "missing")
	assert.Equal(t, "Query not found", apierrors.Message(err))

	_, err = c.Get(context.Background(), "")
	assert.True(t, apierrors.Is(err, apierrors.CodeInvalidInput))
}

func TestAllOperations_401ClearsSession(t *testing.T) {
	ops := map[string]func(*Client) error{
		"list":       func(c *Client) error { _, err := c.List(context.Background(), Filter{}); return err },
		"no-results": func(c *Client) error { _, err := c.NoResults(context.Background(), 1, 10); return err },
		"stats":      func(c *Client) error { _, err := c.Stats(context.Background()); return err },
		"get":        func(c *Client) error { _, err := c.Get(context.Background(), "x"); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			backend, store, c := setup(t, "admin")
			backend.RevokeTokens()

			err := op(c)
			require.Error(t, err)
			assert.True(t, apierrors.IsUnauthorized(err))
			assert.False(t, store.IsAuthenticated())
			_, ok := store.Profile()
			assert.False(t, ok)
		})
	}
}

func TestList_ServerErrorMessage(t *testing.T) {
	backend, _, c := setup(t, "admin")
	backend.FailNext(http.MethodGet, "/api/v1/queries", http.StatusInternalServerError, `{"message":"database unavailable"}`)

	_, err := c.List(context.Background(), Filter{})
	assert.Equal(t, "database unavailable", apierrors.Message(err))

	backend.FailNext(http.MethodGet, "/api/v1/queries", http.StatusInternalServerError, `oops`)
	_, err = c.List(context.Background(), Filter{})
	assert.Equal(t, MsgListFailed, apierrors.Message(err))
}
