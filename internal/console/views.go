package console

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/autounite/admin-console/internal/pagination"
	"github.com/autounite/admin-console/internal/session"
	"github.com/autounite/admin-console/internal/userrequests"
)

//go:embed templates/*.html
var templateFS embed.FS

type views struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"statusClass": func(s userrequests.Status) string {
		switch s {
		case userrequests.StatusPending:
			return "warn"
		case userrequests.StatusContacted:
			return "info"
		case userrequests.StatusRegistered:
			return "ok"
		default:
			return "muted"
		}
	},
}

func loadViews() (*views, error) {
	v := &views{pages: make(map[string]*template.Template)}
	for _, page := range []string{"login", "queries", "users", "requests"} {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", page, err)
		}
		v.pages[page] = t
	}
	return v, nil
}

// render writes page with status. Rendering happens into a buffer so a
// template failure never leaves a half-written page.
func (v *views) render(w http.ResponseWriter, status int, page string, data interface{}) error {
	t, ok := v.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
	return nil
}

// layoutData is shared by every page.
type layoutData struct {
	Title   string
	Active  string
	Profile *session.Profile
	Error   string
	Notice  string
}

// pager is the "Showing X to Y of Z" footer with prev/next links.
type pager struct {
	pagination.Pagination
	From, To int
	PrevURL  string
	NextURL  string
}

func newPager(p pagination.Pagination, path string, q url.Values) pager {
	from, to := p.Window()
	pg := pager{Pagination: p, From: from, To: to}
	if p.HasPrevPage {
		pg.PrevURL = withPage(path, q, pagination.Prev(p.Page))
	}
	if p.HasNextPage {
		pg.NextURL = withPage(path, q, pagination.Next(p.Page))
	}
	return pg
}

func withPage(path string, q url.Values, page int) string {
	next := cloneValues(q)
	next.Set("page", strconv.Itoa(page))
	return path + "?" + next.Encode()
}

// sortLink returns the URL a column header points at: the same column flips
// the order, another column sorts descending. Sorting returns to page 1.
func sortLink(path string, q url.Values, current pagination.Params, field string) string {
	p := current.Toggle(field)
	next := cloneValues(q)
	next.Set("sortBy", p.SortBy)
	next.Set("sortOrder", string(p.SortOrder))
	next.Del("page")
	return path + "?" + next.Encode()
}

func cloneValues(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}
