package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autounite/admin-console/internal/apiclient"
	"github.com/autounite/admin-console/internal/session"
	"github.com/autounite/admin-console/pkg/testutil"
)

type cliHarness struct {
	t       *testing.T
	backend *testutil.MockBackend
	file    string
}

func newCLI(t *testing.T) *cliHarness {
	t.Helper()
	backend := testutil.NewMockBackend(t)
	backend.AddUser("admin@example.com", "pw", "admin")
	return &cliHarness{t: t, backend: backend, file: filepath.Join(t.TempDir(), "session.json")}
}

// run executes one adminctl invocation against a fresh App sharing the
// session file, like separate shell commands would.
func (h *cliHarness) run(stdin string, args ...string) (int, string, string) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	app, err := New(Options{
		API:          apiclient.Config{BaseURL: h.backend.URL()},
		Backend:      session.NewFileBackend(h.file),
		In:           strings.NewReader(stdin),
		Out:          &out,
		Err:          &errOut,
		ReadPassword: func(string) (string, error) { return "pw", nil },
	})
	require.NoError(h.t, err)
	code := app.Run(context.Background(), args)
	return code, out.String(), errOut.String()
}

func (h *cliHarness) login() {
	h.t.Helper()
	code, out, _ := h.run("", "login", "--email", "admin@example.com", "--password", "pw")
	require.Equal(h.t, ExitOK, code)
	require.Contains(h.t, out, "Signed in as")
}

func TestUsage(t *testing.T) {
	h := newCLI(t)

	code, _, errOut := h.run("")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, errOut, "Usage:")

	code, _, errOut = h.run("", "frobnicate")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, errOut, "unknown command: frobnicate")

	code, _, _ = h.run("", "queries")
	assert.Equal(t, ExitUsage, code)
}

func TestLoginPersistsSession(t *testing.T) {
	h := newCLI(t)
	h.login()

	code, out, _ := h.run("", "whoami")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "admin@example.com")
	assert.Contains(t, out, "Role:   admin")
}

func TestLoginPromptsForMissingValues(t *testing.T) {
	h := newCLI(t)

	code, out, errOut := h.run("admin@example.com\n", "login")
	assert.Equal(t, ExitOK, code, errOut)
	assert.Contains(t, out, "(admin)")
	assert.Contains(t, errOut, "Email: ")
}

func TestLoginWithBadCredentials(t *testing.T) {
	h := newCLI(t)

	code, _, errOut := h.run("", "login", "--email", "admin@example.com", "--password", "wrong")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, errOut, testutil.MsgInvalidCredentials)
}

func TestProtectedCommandWithoutSession(t *testing.T) {
	h := newCLI(t)

	code, _, errOut := h.run("", "queries", "list")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, errOut, "Not signed in")
	assert.Empty(t, h.backend.Calls())
}

func TestExpiredSessionNoticeIsPrintedOnce(t *testing.T) {
	h := newCLI(t)
	h.login()
	h.backend.RevokeTokens()

	code, out, errOut := h.run("", "requests", "list", "--stats")
	assert.Equal(t, ExitError, code)
	assert.Empty(t, out)
	assert.Equal(t, 1, strings.Count(errOut, "session has expired"), errOut)

	code, _, errOut = h.run("", "requests", "list")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, errOut, "Not signed in", "the session file was cleared")
}

func TestTeardownMidCommand(t *testing.T) {
	h := newCLI(t)
	h.login()
	h.backend.FailNext("GET", "/api/v1/user-requests", 401, `{"success":false,"message":"Invalid token"}`)

	code, _, errOut := h.run("", "requests", "list", "--stats")
	assert.Equal(t, ExitError, code)
	assert.Equal(t, 1, strings.Count(errOut, "session has expired"), errOut)
}

func TestQueriesList(t *testing.T) {
	h := newCLI(t)
	h.backend.AddQuery(testutil.QueryRecord{Query: "solar panels", UserEmail: "a@example.com", HasResults: true, ResultsCount: 4, SearchAttempted: true})
	h.backend.AddQuery(testutil.QueryRecord{Query: "heat pumps", SearchAttempted: true})
	h.login()

	code, out, errOut := h.run("", "queries", "list", "--has-results", "true", "--stats")
	require.Equal(t, ExitOK, code, errOut)
	assert.Contains(t, out, "solar panels")
	assert.NotContains(t, out, "heat pumps")
	assert.Contains(t, out, "Total: 2")
	assert.Contains(t, out, "Showing 1 to 1 of 1")

	var listed bool
	for _, c := range h.backend.Calls() {
		if c.Path == "/api/v1/queries" {
			listed = true
			assert.Equal(t, "true", c.Query.Get("hasResults"))
			assert.Empty(t, c.Query.Get("searchAttempted"))
		}
	}
	assert.True(t, listed)

	code, _, _ = h.run("", "queries", "list", "--has-results", "maybe")
	assert.Equal(t, ExitUsage, code)
}

func TestQueriesListJSON(t *testing.T) {
	h := newCLI(t)
	h.backend.AddQuery(testutil.QueryRecord{Query: "wind turbines"})
	h.login()

	code, out, _ := h.run("", "queries", "list", "--json")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, out, `"query": "wind turbines"`)
	assert.Contains(t, out, `"pagination"`)
}

func TestUsersList(t *testing.T) {
	h := newCLI(t)
	h.backend.AddUser("grace@example.com", "pw", "user")
	h.login()

	code, out, errOut := h.run("", "users", "list", "--role", "user")
	require.Equal(t, ExitOK, code, errOut)
	assert.Contains(t, out, "grace@example.com")
	assert.NotContains(t, out, "admin@example.com")

	code, _, _ = h.run("", "users", "list", "--role", "owner")
	assert.Equal(t, ExitUsage, code)
}

func TestRequestsUpdateAndGet(t *testing.T) {
	h := newCLI(t)
	rec := h.backend.AddRequest(testutil.RequestRecord{Email: "lead@example.com", FirstName: "Ada", LastName: "Lovelace"})
	h.login()

	code, out, errOut := h.run("", "requests", "update", rec.ID, "--status", "registered", "--notes", "")
	require.Equal(t, ExitOK, code, errOut)
	assert.Contains(t, out, "Request updated.")

	stored, _ := h.backend.Request(rec.ID)
	assert.Equal(t, "registered", stored.Status)

	code, out, _ = h.run("", "requests", "get", rec.ID)
	require.Equal(t, ExitOK, code)
	assert.Contains(t, out, "registered")
	assert.Contains(t, out, "Ada Lovelace")

	code, _, errOut = h.run("", "requests", "update", rec.ID)
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, errOut, "nothing to update")
}

func TestRequestsDeleteConfirmation(t *testing.T) {
	h := newCLI(t)
	rec := h.backend.AddRequest(testutil.RequestRecord{Email: "lead@example.com"})
	h.login()

	code, out, _ := h.run("n\n", "requests", "delete", rec.ID)
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Aborted.")
	_, ok := h.backend.Request(rec.ID)
	assert.True(t, ok)

	code, out, _ = h.run("yes\n", "requests", "delete", rec.ID)
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Request deleted.")
	_, ok = h.backend.Request(rec.ID)
	assert.False(t, ok)

	other := h.backend.AddRequest(testutil.RequestRecord{Email: "other@example.com"})
	code, _, _ = h.run("", "requests", "delete", other.ID, "--yes")
	assert.Equal(t, ExitOK, code)
	_, ok = h.backend.Request(other.ID)
	assert.False(t, ok)
}

func TestRequestsSubmitNeedsNoSession(t *testing.T) {
	h := newCLI(t)

	code, out, errOut := h.run("", "requests", "submit", "--email", "new@example.com", "--first", "Lin")
	require.Equal(t, ExitOK, code, errOut)
	assert.Contains(t, out, "new@example.com")

	call, ok := h.backend.LastCall()
	require.True(t, ok)
	assert.Empty(t, call.Header.Get("Authorization"))
}

func TestLogout(t *testing.T) {
	h := newCLI(t)
	h.login()

	code, out, _ := h.run("", "logout")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Signed out.")

	code, out, _ = h.run("", "logout")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Not signed in.")
}

func TestWhoamiWithUnknownTokenExpiresSession(t *testing.T) {
	h := newCLI(t)
	store := session.New(session.NewFileBackend(h.file), nil)
	store.SetToken("stale-token")

	code, out, errOut := h.run("", "whoami")
	assert.Equal(t, ExitError, code)
	assert.Empty(t, out)
	assert.Equal(t, 1, strings.Count(errOut, "session has expired"))

	_, ok := session.New(session.NewFileBackend(h.file), nil).Token()
	assert.False(t, ok)
}

func TestCompletion(t *testing.T) {
	h := newCLI(t)

	code, out, _ := h.run("", "completion", "bash")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "complete -F _adminctl_completion adminctl")

	code, _, errOut := h.run("", "completion", "tcsh")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, errOut, "unsupported shell")
}

func TestInstallCompletion(t *testing.T) {
	home := t.TempDir()
	path, err := InstallCompletion(home, "fish")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "fish", "completions", "adminctl.fish"), path)
}

func TestPrinterTable(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Table([]string{"ID", "NAME"}, [][]string{{"1", "Ada"}, {"22", "Grace"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID  NAME", lines[0])
	assert.Equal(t, "22  Grace", lines[2])
}
