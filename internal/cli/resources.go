package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	apierrors "github.com/autounite/admin-console/internal/errors"
	"github.com/autounite/admin-console/internal/pagination"
	"github.com/autounite/admin-console/internal/queries"
	"github.com/autounite/admin-console/internal/session"
	"github.com/autounite/admin-console/internal/userrequests"
	"github.com/autounite/admin-console/internal/users"
)

type pageFlags struct {
	page  int
	limit int
	sort  string
	order string
}

func addPageFlags(fs *flag.FlagSet, sortable bool) *pageFlags {
	p := &pageFlags{}
	fs.IntVar(&p.page, "page", 1, "Page number")
	fs.IntVar(&p.limit, "limit", 0, "Items per page (backend default when 0)")
	if sortable {
		fs.StringVar(&p.sort, "sort", "", "Sort field (createdAt when empty)")
		fs.StringVar(&p.order, "order", "", "Sort order: asc or desc")
	}
	return p
}

func (p *pageFlags) params() (pagination.Params, error) {
	order := pagination.SortOrder(strings.ToLower(p.order))
	if order != "" && order != pagination.Asc && order != pagination.Desc {
		return pagination.Params{}, usageError("--order must be asc or desc")
	}
	if p.page < 1 {
		return pagination.Params{}, usageError("--page must be at least 1")
	}
	if p.limit < 0 {
		return pagination.Params{}, usageError("--limit must not be negative")
	}
	return pagination.Params{Page: p.page, Limit: p.limit, SortBy: p.sort, SortOrder: order}, nil
}

// triState parses an optional boolean filter; empty means "not set".
func triState(name, raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, usageError("--%s must be true or false", name)
	}
	return &b, nil
}

func (a *App) footer(p pagination.Pagination) {
	if p.Total == 0 {
		a.out.Info("No results.")
		return
	}
	from, to := p.Window()
	a.out.Printf("Showing %d to %d of %d (page %d of %d)\n", from, to, p.Total, p.Page, p.TotalPages)
}

// fetch runs fn with a spinner on stderr.
func (a *App) fetch(label string, fn func()) {
	sp := NewSpinner(a.errOut.Writer(), label)
	sp.Start()
	defer sp.Stop()
	fn()
}

func subcommand(args []string) (string, []string) {
	if len(args) == 0 {
		return "", nil
	}
	return args[0], args[1:]
}

func (a *App) cmdQueries(ctx context.Context, args []string) error {
	sub, rest := subcommand(args)
	switch sub {
	case "list":
		return a.queriesList(ctx, rest)
	case "no-results":
		return a.queriesNoResults(ctx, rest)
	case "stats":
		return a.queriesStats(ctx, rest)
	case "get":
		return a.queriesGet(ctx, rest)
	default:
		return usageError("usage: adminctl queries list|no-results|stats|get")
	}
}

func (a *App) queriesList(ctx context.Context, args []string) error {
	fs := a.newFlagSet("queries list")
	pf := addPageFlags(fs, true)
	hasResults := fs.String("has-results", "", "Filter by whether the search found results (true|false)")
	attempted := fs.String("attempted", "", "Filter by whether a search was attempted (true|false)")
	email := fs.String("email", "", "Filter by user email")
	withStats := fs.Bool("stats", false, "Also show aggregate statistics")
	asJSON := fs.Bool("json", false, "Print the raw page as JSON")
	if _, err := parse(fs, args); err != nil {
		return err
	}

	f := queries.Filter{UserEmail: *email}
	var err error
	if f.Params, err = pf.params(); err != nil {
		return err
	}
	if f.HasResults, err = triState("has-results", *hasResults); err != nil {
		return err
	}
	if f.SearchAttempted, err = triState("attempted", *attempted); err != nil {
		return err
	}
	if _, err := a.requireSession(ctx, "queries"); err != nil {
		return err
	}

	client := queries.New(a.api)
	var (
		page              *pagination.Page[queries.Query]
		stats             *queries.Stats
		listErr, statsErr error
	)
	a.fetch("Loading queries", func() {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, listErr = client.List(ctx, f)
		}()
		if *withStats {
			wg.Add(1)
			go func() {
				defer wg.Done()
				stats, statsErr = client.Stats(ctx)
			}()
		}
		wg.Wait()
	})
	if listErr != nil {
		return listErr
	}
	if *asJSON {
		return a.printJSON(page)
	}

	if *withStats {
		if statsErr != nil {
			a.errOut.Warning(apierrors.Message(statsErr))
		} else {
			a.printQueryStats(stats)
		}
	}
	a.printQueries(page)
	return nil
}

func (a *App) queriesNoResults(ctx context.Context, args []string) error {
	fs := a.newFlagSet("queries no-results")
	pf := addPageFlags(fs, false)
	asJSON := fs.Bool("json", false, "Print the raw page as JSON")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	p, err := pf.params()
	if err != nil {
		return err
	}
	if _, err := a.requireSession(ctx, "queries"); err != nil {
		return err
	}

	var page *pagination.Page[queries.Query]
	a.fetch("Loading queries", func() {
		page, err = queries.New(a.api).NoResults(ctx, p.Page, p.Limit)
	})
	if err != nil {
		return err
	}
	if *asJSON {
		return a.printJSON(page)
	}
	a.printQueries(page)
	return nil
}

func (a *App) queriesStats(ctx context.Context, args []string) error {
	fs := a.newFlagSet("queries stats")
	asJSON := fs.Bool("json", false, "Print as JSON")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	if _, err := a.requireSession(ctx, "queries"); err != nil {
		return err
	}
	stats, err := queries.New(a.api).Stats(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return a.printJSON(stats)
	}
	a.printQueryStats(stats)
	return nil
}

func (a *App) queriesGet(ctx context.Context, args []string) error {
	fs := a.newFlagSet("queries get")
	asJSON := fs.Bool("json", false, "Print as JSON")
	id, err := parse(fs, args)
	if err != nil {
		return err
	}
	if id == "" {
		return usageError("usage: adminctl queries get <id>")
	}
	if _, err := a.requireSession(ctx, "queries"); err != nil {
		return err
	}
	q, err := queries.New(a.api).Get(ctx, id)
	if err != nil {
		return err
	}
	if *asJSON {
		return a.printJSON(q)
	}
	a.out.Printf("ID:        %s\n", q.ID)
	a.out.Printf("Query:     %s\n", q.Query)
	a.out.Printf("User:      %s\n", orDash(q.UserEmail))
	a.out.Printf("Results:   %d\n", q.ResultsCount)
	a.out.Printf("Attempted: %t\n", q.SearchAttempted)
	a.out.Printf("Error:     %s\n", orDash(q.Error))
	a.out.Printf("When:      %s\n", formatTime(q.CreatedAt))
	for k, v := range q.FiltersUsed {
		a.out.Printf("Filter:    %s=%v\n", k, v)
	}
	return nil
}

func (a *App) printQueries(page *pagination.Page[queries.Query]) {
	rows := make([][]string, 0, len(page.Data))
	for _, q := range page.Data {
		rows = append(rows, []string{q.ID, truncate(q.Query, 48), orDash(q.UserEmail), strconv.Itoa(q.ResultsCount), formatTime(q.CreatedAt)})
	}
	a.out.Table([]string{"ID", "QUERY", "USER", "RESULTS", "WHEN"}, rows)
	a.footer(page.Pagination)
}

func (a *App) printQueryStats(s *queries.Stats) {
	a.out.Printf("Total: %d  With results: %d  Without results: %d  Avg results: %.1f\n",
		s.TotalQueries, s.QueriesWithResults, s.QueriesWithoutResults, s.AverageResultsCount)
}

func (a *App) cmdUsers(ctx context.Context, args []string) error {
	sub, rest := subcommand(args)
	switch sub {
	case "list":
		return a.usersList(ctx, rest)
	case "get":
		return a.usersGet(ctx, rest)
	default:
		return usageError("usage: adminctl users list|get")
	}
}

func (a *App) usersList(ctx context.Context, args []string) error {
	fs := a.newFlagSet("users list")
	pf := addPageFlags(fs, true)
	search := fs.String("search", "", "Match name or email")
	role := fs.String("role", "", "Filter by role (user|admin)")
	active := fs.String("active", "", "Filter by active flag (true|false)")
	asJSON := fs.Bool("json", false, "Print the raw page as JSON")
	if _, err := parse(fs, args); err != nil {
		return err
	}

	f := users.Filter{Search: *search, Role: session.Role(strings.ToLower(*role))}
	if f.Role != "" && f.Role != session.RoleUser && f.Role != session.RoleAdmin {
		return usageError("--role must be user or admin")
	}
	var err error
	if f.Params, err = pf.params(); err != nil {
		return err
	}
	if f.IsActive, err = triState("active", *active); err != nil {
		return err
	}
	if _, err := a.requireSession(ctx, "users"); err != nil {
		return err
	}

	var page *pagination.Page[users.User]
	a.fetch("Loading users", func() {
		page, err = users.New(a.api).List(ctx, f)
	})
	if err != nil {
		return err
	}
	if *asJSON {
		return a.printJSON(page)
	}

	rows := make([][]string, 0, len(page.Data))
	for _, u := range page.Data {
		rows = append(rows, []string{u.ID, u.Name(), u.Email, string(u.Role), strconv.FormatBool(u.IsActive), formatTime(u.CreatedAt)})
	}
	a.out.Table([]string{"ID", "NAME", "EMAIL", "ROLE", "ACTIVE", "JOINED"}, rows)
	a.footer(page.Pagination)
	return nil
}

func (a *App) usersGet(ctx context.Context, args []string) error {
	fs := a.newFlagSet("users get")
	asJSON := fs.Bool("json", false, "Print as JSON")
	id, err := parse(fs, args)
	if err != nil {
		return err
	}
	if id == "" {
		return usageError("usage: adminctl users get <id>")
	}
	if _, err := a.requireSession(ctx, "users"); err != nil {
		return err
	}
	u, err := users.New(a.api).Get(ctx, id)
	if err != nil {
		return err
	}
	if *asJSON {
		return a.printJSON(u)
	}
	a.out.Printf("ID:      %s\n", u.ID)
	a.out.Printf("Name:    %s\n", u.Name())
	a.out.Printf("Email:   %s\n", u.Email)
	a.out.Printf("Role:    %s\n", u.Role)
	a.out.Printf("Active:  %t\n", u.IsActive)
	a.out.Printf("Joined:  %s\n", formatTime(u.CreatedAt))
	return nil
}

func (a *App) cmdRequests(ctx context.Context, args []string) error {
	sub, rest := subcommand(args)
	switch sub {
	case "list":
		return a.requestsList(ctx, rest)
	case "stats":
		return a.requestsStats(ctx, rest)
	case "get":
		return a.requestsGet(ctx, rest)
	case "update":
		return a.requestsUpdate(ctx, rest)
	case "delete":
		return a.requestsDelete(ctx, rest)
	case "submit":
		return a.requestsSubmit(ctx, rest)
	default:
		return usageError("usage: adminctl requests list|stats|get|update|delete|submit")
	}
}

func (a *App) requestsList(ctx context.Context, args []string) error {
	fs := a.newFlagSet("requests list")
	pf := addPageFlags(fs, true)
	status := fs.String("status", "", "Filter by status (pending|contacted|registered|ignored)")
	source := fs.String("source", "", "Filter by source")
	search := fs.String("search", "", "Match name or email")
	withStats := fs.Bool("stats", false, "Also show per-status counts")
	asJSON := fs.Bool("json", false, "Print the raw page as JSON")
	if _, err := parse(fs, args); err != nil {
		return err
	}

	f := userrequests.Filter{Source: *source, Search: *search}
	var err error
	if *status != "" {
		if f.Status, err = userrequests.ParseStatus(*status); err != nil {
			return usageError("--status must be pending, contacted, registered or ignored")
		}
	}
	if f.Params, err = pf.params(); err != nil {
		return err
	}
	if _, err := a.requireSession(ctx, "requests"); err != nil {
		return err
	}

	client := userrequests.New(a.api)
	var (
		page              *pagination.Page[userrequests.Request]
		stats             *userrequests.Stats
		listErr, statsErr error
	)
	a.fetch("Loading requests", func() {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, listErr = client.List(ctx, f)
		}()
		if *withStats {
			wg.Add(1)
			go func() {
				defer wg.Done()
				stats, statsErr = client.Stats(ctx)
			}()
		}
		wg.Wait()
	})
	if listErr != nil {
		return listErr
	}
	if *asJSON {
		return a.printJSON(page)
	}

	if *withStats {
		if statsErr != nil {
			a.errOut.Warning(apierrors.Message(statsErr))
		} else {
			a.printRequestStats(stats)
		}
	}
	rows := make([][]string, 0, len(page.Data))
	for _, r := range page.Data {
		rows = append(rows, []string{r.ID, r.Name(), r.Email, a.statusLabel(r.Status), orDash(r.Source), formatTime(r.CreatedAt)})
	}
	a.out.Table([]string{"ID", "NAME", "EMAIL", "STATUS", "SOURCE", "SUBMITTED"}, rows)
	a.footer(page.Pagination)
	return nil
}

func (a *App) requestsStats(ctx context.Context, args []string) error {
	fs := a.newFlagSet("requests stats")
	asJSON := fs.Bool("json", false, "Print as JSON")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	if _, err := a.requireSession(ctx, "requests"); err != nil {
		return err
	}
	stats, err := userrequests.New(a.api).Stats(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return a.printJSON(stats)
	}
	a.printRequestStats(stats)
	return nil
}

func (a *App) requestsGet(ctx context.Context, args []string) error {
	fs := a.newFlagSet("requests get")
	asJSON := fs.Bool("json", false, "Print as JSON")
	id, err := parse(fs, args)
	if err != nil {
		return err
	}
	if id == "" {
		return usageError("usage: adminctl requests get <id>")
	}
	if _, err := a.requireSession(ctx, "requests"); err != nil {
		return err
	}
	r, err := userrequests.New(a.api).Get(ctx, id)
	if err != nil {
		return err
	}
	if *asJSON {
		return a.printJSON(r)
	}
	a.printRequest(r)
	return nil
}

func (a *App) requestsUpdate(ctx context.Context, args []string) error {
	fs := a.newFlagSet("requests update")
	status := fs.String("status", "", "New status (pending|contacted|registered|ignored)")
	notes := fs.String("notes", "", "Replace the follow-up notes (empty clears them)")
	id, err := parse(fs, args)
	if err != nil {
		return err
	}
	if id == "" {
		return usageError("usage: adminctl requests update <id> [--status S] [--notes N]")
	}

	var u userrequests.Update
	if *status != "" {
		if u.Status, err = userrequests.ParseStatus(*status); err != nil {
			return usageError("--status must be pending, contacted, registered or ignored")
		}
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "notes" {
			u.Notes = notes
		}
	})
	if u.Status == "" && u.Notes == nil {
		return usageError("nothing to update: pass --status and/or --notes")
	}
	if _, err := a.requireSession(ctx, "requests"); err != nil {
		return err
	}

	updated, err := userrequests.New(a.api).Update(ctx, id, u)
	if err != nil {
		return err
	}
	a.out.Success("Request updated.")
	if updated != nil {
		a.printRequest(updated)
	}
	return nil
}

func (a *App) requestsDelete(ctx context.Context, args []string) error {
	fs := a.newFlagSet("requests delete")
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	id, err := parse(fs, args)
	if err != nil {
		return err
	}
	if id == "" {
		return usageError("usage: adminctl requests delete <id> [--yes]")
	}
	if _, err := a.requireSession(ctx, "requests"); err != nil {
		return err
	}

	if !*yes {
		ok, err := a.confirm(fmt.Sprintf("Permanently delete request %s?", id))
		if err != nil {
			return err
		}
		if !ok {
			a.out.Info("Aborted.")
			return nil
		}
	}
	if err := userrequests.New(a.api).Delete(ctx, id); err != nil {
		return err
	}
	a.out.Success("Request deleted.")
	return nil
}

func (a *App) requestsSubmit(ctx context.Context, args []string) error {
	fs := a.newFlagSet("requests submit")
	var s userrequests.Submission
	fs.StringVar(&s.Email, "email", "", "Contact email")
	fs.StringVar(&s.FirstName, "first", "", "First name")
	fs.StringVar(&s.LastName, "last", "", "Last name")
	fs.StringVar(&s.Source, "source", userrequests.DefaultSource, "Where the request came from")
	if _, err := parse(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(s.Email) == "" {
		return usageError("--email is required")
	}
	if host, err := os.Hostname(); err == nil {
		s.Metadata = map[string]interface{}{"submittedFrom": "adminctl", "host": host}
	}

	r, err := userrequests.New(a.api).Submit(ctx, s)
	if err != nil {
		return err
	}
	a.out.Success(fmt.Sprintf("Request from %s submitted (%s).", r.Email, r.Status))
	return nil
}

func (a *App) printRequest(r *userrequests.Request) {
	a.out.Printf("ID:       %s\n", r.ID)
	a.out.Printf("Name:     %s\n", r.Name())
	a.out.Printf("Email:    %s\n", r.Email)
	a.out.Printf("Status:   %s\n", a.statusLabel(r.Status))
	a.out.Printf("Source:   %s\n", orDash(r.Source))
	a.out.Printf("Notes:    %s\n", orDash(r.Notes))
	a.out.Printf("Created:  %s\n", formatTime(r.CreatedAt))
	a.out.Printf("Updated:  %s\n", formatTime(r.UpdatedAt))
}

func (a *App) printRequestStats(s *userrequests.Stats) {
	a.out.Printf("Total: %d  Pending: %d  Contacted: %d  Registered: %d  Ignored: %d\n",
		s.TotalRequests, s.PendingRequests, s.ContactedRequests, s.RegisteredRequests, s.IgnoredRequests)
}

func (a *App) statusLabel(s userrequests.Status) string {
	switch s {
	case userrequests.StatusPending:
		return a.out.Colorize(string(s), ColorYellow)
	case userrequests.StatusContacted:
		return a.out.Colorize(string(s), ColorBlue)
	case userrequests.StatusRegistered:
		return a.out.Colorize(string(s), ColorGreen)
	default:
		return string(s)
	}
}

func (a *App) cmdCompletion(args []string) error {
	fs := a.newFlagSet("completion")
	install := fs.Bool("install", false, "Install the script under your home directory")
	shell, err := parse(fs, args)
	if err != nil {
		return err
	}
	if shell == "" {
		return usageError("usage: adminctl completion bash|zsh|fish [--install]")
	}
	if !*install {
		return GenerateCompletion(a.out.Writer(), shell)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	path, err := InstallCompletion(home, shell)
	if err != nil {
		return err
	}
	a.out.Success("Completion script installed to: " + path)
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
