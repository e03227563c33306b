package console

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	apierrors "github.com/autounite/admin-console/internal/errors"
	"github.com/autounite/admin-console/internal/guard"
	"github.com/autounite/admin-console/internal/httputil"
	"github.com/autounite/admin-console/internal/metrics"
	"github.com/autounite/admin-console/internal/middleware"
	"github.com/autounite/admin-console/internal/pagination"
	"github.com/autounite/admin-console/internal/queries"
	"github.com/autounite/admin-console/internal/session"
	"github.com/autounite/admin-console/internal/userrequests"
	"github.com/autounite/admin-console/internal/users"
)

type loginPage struct {
	layoutData
	Email string
}

type queriesPage struct {
	layoutData
	Filter     queriesFilterView
	Items      []queries.Query
	Stats      *queries.Stats
	StatsError string
	Pager      pager
	Sort       func(field string) string
}

type queriesFilterView struct {
	HasResults      string
	SearchAttempted string
	UserEmail       string
}

type usersPage struct {
	layoutData
	Search string
	Role   string
	Items  []users.User
	Pager  pager
	Sort   func(field string) string
}

type requestsPage struct {
	layoutData
	Status     string
	Source     string
	Search     string
	Statuses   []userrequests.Status
	Items      []userrequests.Request
	Stats      *userrequests.Stats
	StatsError string
	Pager      pager
	Sort       func(field string) string
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loginThrottled answers a rate-limited sign-in with the login page.
func (s *Server) loginThrottled(w http.ResponseWriter, r *http.Request, err *apierrors.ServiceError) {
	s.renderLogin(w, r, http.StatusTooManyRequests, r.PostFormValue("email"), "Too many sign-in attempts. Please wait a moment and try again.")
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	notice := ""
	if r.URL.Query().Get("expired") != "" {
		notice = "Your session has expired. Please sign in again."
	}
	data := loginPage{layoutData: layoutData{Title: "Sign in", Notice: notice}}
	s.render(w, r, http.StatusOK, "login", data)
}

func (s *Server) renderLogin(w http.ResponseWriter, r *http.Request, status int, email, msg string) {
	data := loginPage{layoutData: layoutData{Title: "Sign in", Error: msg}, Email: email}
	s.render(w, r, status, "login", data)
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderLogin(w, r, http.StatusBadRequest, "", "Invalid form submission.")
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		s.renderLogin(w, r, http.StatusBadRequest, email, "Email and password are required.")
		return
	}

	sc := s.rotate(w, scopeFrom(r))
	creds, err := sc.auth.Login(r.Context(), email, password)
	if err != nil {
		metrics.RecordLogin("failure")
		s.log.LogSecurityEvent(r.Context(), "console_login_failed", map[string]interface{}{
			"email":     email,
			"client_ip": httputil.ClientIP(r),
		})
		s.renderLogin(w, r, http.StatusUnauthorized, email, apierrors.Message(err))
		return
	}

	metrics.RecordLogin("success")
	s.log.WithContext(r.Context()).WithFields(map[string]interface{}{
		"user_id": creds.User.ID,
		"role":    string(creds.User.Role),
	}).Info("console sign-in")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sc := scopeFrom(r); sc != nil {
		sc.auth.Logout()
	}
	http.Redirect(w, r, guard.LoginRoute, http.StatusSeeOther)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/queries", http.StatusSeeOther)
}

func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r)
	q := r.URL.Query()
	f := queries.Filter{
		HasResults:      parseBool(q.Get("hasResults")),
		SearchAttempted: parseBool(q.Get("searchAttempted")),
		UserEmail:       q.Get("userEmail"),
		Params:          parseParams(q, queries.DefaultLimit),
	}
	client := queries.New(sc.api)

	var (
		wg                sync.WaitGroup
		page              *pagination.Page[queries.Query]
		stats             *queries.Stats
		listErr, statsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		page, listErr = client.List(r.Context(), f)
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = client.Stats(r.Context())
	}()
	wg.Wait()

	if s.tornDown(w, r, sc) {
		return
	}

	data := queriesPage{
		layoutData: s.layout(r, "Search queries", "queries"),
		Filter: queriesFilterView{
			HasResults:      q.Get("hasResults"),
			SearchAttempted: q.Get("searchAttempted"),
			UserEmail:       f.UserEmail,
		},
		Stats: stats,
		Sort:  func(field string) string { return sortLink(r.URL.Path, q, f.Params.WithDefaults(queries.DefaultLimit), field) },
	}
	if statsErr != nil {
		data.StatsError = apierrors.Message(statsErr)
	}
	if listErr != nil {
		data.Error = apierrors.Message(listErr)
	} else {
		data.Items = page.Data
		data.Pager = newPager(page.Pagination, r.URL.Path, q)
	}
	s.render(w, r, http.StatusOK, "queries", data)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r)
	q := r.URL.Query()
	f := users.Filter{
		Search:   q.Get("search"),
		Role:     session.Role(q.Get("role")),
		IsActive: parseBool(q.Get("isActive")),
		Params:   parseParams(q, users.DefaultLimit),
	}

	page, err := users.New(sc.api).List(r.Context(), f)
	if s.tornDown(w, r, sc) {
		return
	}

	data := usersPage{
		layoutData: s.layout(r, "Users", "users"),
		Search:     f.Search,
		Role:       string(f.Role),
		Sort:       func(field string) string { return sortLink(r.URL.Path, q, f.Params.WithDefaults(users.DefaultLimit), field) },
	}
	if err != nil {
		data.Error = apierrors.Message(err)
	} else {
		data.Items = page.Data
		data.Pager = newPager(page.Pagination, r.URL.Path, q)
	}
	s.render(w, r, http.StatusOK, "users", data)
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r)
	q := r.URL.Query()
	f := userrequests.Filter{
		Source: q.Get("source"),
		Search: q.Get("search"),
		Params: parseParams(q, userrequests.DefaultLimit),
	}
	if st, err := userrequests.ParseStatus(q.Get("status")); err == nil {
		f.Status = st
	}
	client := userrequests.New(sc.api)

	var (
		wg                sync.WaitGroup
		page              *pagination.Page[userrequests.Request]
		stats             *userrequests.Stats
		listErr, statsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		page, listErr = client.List(r.Context(), f)
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = client.Stats(r.Context())
	}()
	wg.Wait()

	if s.tornDown(w, r, sc) {
		return
	}

	data := requestsPage{
		layoutData: s.layout(r, "User requests", "requests"),
		Status:     string(f.Status),
		Source:     f.Source,
		Search:     f.Search,
		Statuses:   userrequests.Statuses,
		Stats:      stats,
		Sort:       func(field string) string { return sortLink(r.URL.Path, q, f.Params.WithDefaults(userrequests.DefaultLimit), field) },
	}
	data.Notice = q.Get("notice")
	if msg := q.Get("error"); msg != "" {
		data.Error = msg
	}
	if statsErr != nil {
		data.StatsError = apierrors.Message(statsErr)
	}
	if listErr != nil {
		data.Error = apierrors.Message(listErr)
	} else {
		data.Items = page.Data
		data.Pager = newPager(page.Pagination, r.URL.Path, q)
	}
	s.render(w, r, http.StatusOK, "requests", data)
}

func (s *Server) handleRequestUpdate(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r)
	id := mux.Vars(r)["id"]
	if err := r.ParseForm(); err != nil {
		s.backToRequests(w, r, "", "Invalid form submission.")
		return
	}

	var u userrequests.Update
	if raw := r.PostFormValue("status"); raw != "" {
		st, err := userrequests.ParseStatus(raw)
		if err != nil {
			s.backToRequests(w, r, "", apierrors.Message(err))
			return
		}
		u.Status = st
	}
	if _, ok := r.PostForm["notes"]; ok {
		notes := r.PostFormValue("notes")
		u.Notes = &notes
	}

	_, err := userrequests.New(sc.api).Update(r.Context(), id, u)
	if s.tornDown(w, r, sc) {
		return
	}
	if err != nil {
		s.backToRequests(w, r, "", apierrors.Message(err))
		return
	}
	s.backToRequests(w, r, "Request updated.", "")
}

func (s *Server) handleRequestDelete(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r)
	id := mux.Vars(r)["id"]
	if r.PostFormValue("confirm") != "yes" {
		s.backToRequests(w, r, "", "Deletion was not confirmed.")
		return
	}

	err := userrequests.New(sc.api).Delete(r.Context(), id)
	if s.tornDown(w, r, sc) {
		return
	}
	if err != nil {
		s.backToRequests(w, r, "", apierrors.Message(err))
		return
	}
	s.log.WithContext(r.Context()).WithField("request_id", id).Info("user request deleted")
	s.backToRequests(w, r, "Request deleted.", "")
}

// tornDown sends the browser to the login page when a backend call in this
// request ended the session. It fires at most once per teardown.
func (s *Server) tornDown(w http.ResponseWriter, r *http.Request, sc *scope) bool {
	target, ok := sc.policy.TakeRedirect()
	if !ok {
		return false
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
	return true
}

func (s *Server) backToRequests(w http.ResponseWriter, r *http.Request, notice, errMsg string) {
	v := url.Values{}
	if notice != "" {
		v.Set("notice", notice)
	}
	if errMsg != "" {
		v.Set("error", errMsg)
	}
	target := "/requests"
	if len(v) > 0 {
		target += "?" + v.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) layout(r *http.Request, title, active string) layoutData {
	d := layoutData{Title: title, Active: active}
	if p, ok := middleware.GetProfile(r.Context()); ok {
		d.Profile = &p
	}
	return d
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data interface{}) {
	if err := s.views.render(w, status, page, data); err != nil {
		s.log.WithContext(r.Context()).WithError(err).WithField("page", page).Error("render failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseParams(q url.Values, defaultLimit int) pagination.Params {
	p := pagination.Params{
		SortBy:    q.Get("sortBy"),
		SortOrder: pagination.SortOrder(q.Get("sortOrder")),
	}
	p.Page, _ = strconv.Atoi(q.Get("page"))
	p.Limit, _ = strconv.Atoi(q.Get("limit"))
	return p.WithDefaults(defaultLimit)
}

func parseBool(raw string) *bool {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &b
}
