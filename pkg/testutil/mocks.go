// Package testutil provides common testing utilities and an in-memory fake of
// the backend REST API.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Messages the fake backend answers with.
const (
	MsgInvalidAPIKey      = "Invalid API key"
	MsgInvalidCredentials = "Invalid email or password"
	MsgInvalidToken       = "Invalid or expired token"
	MsgAdminRequired      = "Admin access required"
	MsgNotFound           = "Resource not found"
)

// Call is one request observed by MockBackend.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// QueryRecord is a logged search held by MockBackend.
type QueryRecord struct {
	ID              string                 `json:"_id"`
	Query           string                 `json:"query"`
	UserEmail       string                 `json:"userEmail,omitempty"`
	ResultsCount    int                    `json:"resultsCount"`
	SearchAttempted bool                   `json:"searchAttempted"`
	HasResults      bool                   `json:"hasResults"`
	FiltersUsed     map[string]interface{} `json:"filtersUsed,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
}

// RequestRecord is a demo request held by MockBackend.
type RequestRecord struct {
	ID        string                 `json:"_id"`
	Email     string                 `json:"email"`
	FirstName string                 `json:"firstName"`
	LastName  string                 `json:"lastName"`
	Status    string                 `json:"status"`
	Source    string                 `json:"source"`
	Notes     string                 `json:"notes,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// UserRecord is an account held by MockBackend.
type UserRecord struct {
	ID        string    `json:"_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`

	password string
}

type failure struct {
	status int
	body   string
}

// MockBackend is a fake backend API served over httptest.
type MockBackend struct {
	Server *httptest.Server
	// APIKey, when set, must accompany every call as X-API-Key.
	APIKey string

	mu       sync.Mutex
	clock    time.Time
	users    []*UserRecord
	tokens   map[string]string // token -> user id
	queries  []*QueryRecord
	requests []*RequestRecord
	calls    []Call
	failures map[string]failure // "METHOD /path" -> one-shot failure
}

// NewMockBackend starts a fake backend that is closed when t finishes.
func NewMockBackend(t testing.TB) *MockBackend {
	t.Helper()
	m := &MockBackend{
		clock:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		tokens:   make(map[string]string),
		failures: make(map[string]failure),
	}
	m.Server = httptest.NewServer(m.router())
	t.Cleanup(m.Server.Close)
	return m
}

// URL returns the backend base URL.
func (m *MockBackend) URL() string {
	return m.Server.URL
}

func (m *MockBackend) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

// AddUser registers an account and returns it.
func (m *MockBackend) AddUser(email, password, role string) *UserRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &UserRecord{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      role,
		IsActive:  true,
		CreatedAt: m.tick(),
		password:  password,
	}
	m.users = append(m.users, u)
	return u
}

// IssueToken returns a valid bearer token for the account with email.
func (m *MockBackend) IssueToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			token := uuid.NewString()
			m.tokens[token] = u.ID
			return token
		}
	}
	panic(fmt.Sprintf("testutil: no account %q", email))
}

// RevokeTokens invalidates every issued token.
func (m *MockBackend) RevokeTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = make(map[string]string)
}

// AddQuery stores a logged query, assigning id and timestamp when unset.
func (m *MockBackend) AddQuery(q QueryRecord) *QueryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = m.tick()
	}
	m.queries = append(m.queries, &q)
	return &q
}

// AddRequest stores a demo request, assigning id, status and timestamps when unset.
func (m *MockBackend) AddRequest(r RequestRecord) *RequestRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addRequestLocked(r)
}

func (m *MockBackend) addRequestLocked(r RequestRecord) *RequestRecord {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = "pending"
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.tick()
	}
	r.UpdatedAt = r.CreatedAt
	m.requests = append(m.requests, &r)
	return &r
}

// Request returns a copy of the stored demo request with id.
func (m *MockBackend) Request(id string) (RequestRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.ID == id {
			return *r, true
		}
	}
	return RequestRecord{}, false
}

// FailNext makes the next call to method+path answer status with body.
func (m *MockBackend) FailNext(method, path string, status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method+" "+path] = failure{status: status, body: body}
}

// Calls returns the requests observed so far.
func (m *MockBackend) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many calls hit path.
func (m *MockBackend) CallCount(path string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Path == path {
			n++
		}
	}
	return n
}

// LastCall returns the most recent call, or false if none.
func (m *MockBackend) LastCall() (Call, bool) {
	calls := m.Calls()
	if len(calls) == 0 {
		return Call{}, false
	}
	return calls[len(calls)-1], true
}

func (m *MockBackend) router() http.Handler {
	r := mux.NewRouter()
	r.Use(m.record)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/register", m.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", m.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", m.authed(false, m.handleMe)).Methods(http.MethodGet)

	api.HandleFunc("/queries", m.authed(true, m.handleListQueries)).Methods(http.MethodGet)
	api.HandleFunc("/queries/stats", m.authed(true, m.handleQueryStats)).Methods(http.MethodGet)
	api.HandleFunc("/queries/no-results", m.authed(true, m.handleNoResults)).Methods(http.MethodGet)
	api.HandleFunc("/queries/{id}", m.authed(true, m.handleGetQuery)).Methods(http.MethodGet)

	api.HandleFunc("/users", m.authed(true, m.handleListUsers)).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", m.authed(true, m.handleGetUser)).Methods(http.MethodGet)

	api.HandleFunc("/user-requests", m.handleSubmitRequest).Methods(http.MethodPost)
	api.HandleFunc("/user-requests", m.authed(true, m.handleListRequests)).Methods(http.MethodGet)
	api.HandleFunc("/user-requests/stats", m.authed(true, m.handleRequestStats)).Methods(http.MethodGet)
	api.HandleFunc("/user-requests/{id}", m.authed(true, m.handleGetRequest)).Methods(http.MethodGet)
	api.HandleFunc("/user-requests/{id}", m.authed(true, m.handleUpdateRequest)).Methods(http.MethodPatch)
	api.HandleFunc("/user-requests/{id}", m.authed(true, m.handleDeleteRequest)).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, MsgNotFound)
	})
	return r
}

// record logs the call, enforces the API key and serves one-shot failures.
func (m *MockBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = readAll(r)
		}

		m.mu.Lock()
		m.calls = append(m.calls, Call{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		key := r.Method + " " + r.URL.Path
		f, failing := m.failures[key]
		delete(m.failures, key)
		apiKey := m.APIKey
		m.mu.Unlock()

		if apiKey != "" && r.Header.Get("X-API-Key") != apiKey {
			writeError(w, http.StatusUnauthorized, MsgInvalidAPIKey)
			return
		}
		if failing {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authed requires a valid bearer token and, when admin is set, the admin role.
func (m *MockBackend) authed(admin bool, next func(http.ResponseWriter, *http.Request, *UserRecord)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		m.mu.Lock()
		var user *UserRecord
		if id, ok := m.tokens[token]; ok && token != "" {
			user = m.userByIDLocked(id)
		}
		m.mu.Unlock()

		if user == nil {
			writeError(w, http.StatusUnauthorized, MsgInvalidToken)
			return
		}
		if admin && user.Role != "admin" {
			writeError(w, http.StatusForbidden, MsgAdminRequired)
			return
		}
		next(w, r, user)
	}
}

func (m *MockBackend) userByIDLocked(id string) *UserRecord {
	for _, u := range m.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (m *MockBackend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := decodeBody(r, &in); err != nil || in.Email == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	m.mu.Lock()
	for _, u := range m.users {
		if u.Email == in.Email {
			m.mu.Unlock()
			writeError(w, http.StatusConflict, "User already exists")
			return
		}
	}
	u := &UserRecord{
		ID:        uuid.NewString(),
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      "user",
		IsActive:  true,
		CreatedAt: m.tick(),
		password:  in.Password,
	}
	m.users = append(m.users, u)
	token := uuid.NewString()
	m.tokens[token] = u.ID
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    map[string]interface{}{"token": token, "user": u},
	})
}

func (m *MockBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	m.mu.Lock()
	var user *UserRecord
	for _, u := range m.users {
		if u.Email == in.Email && u.password == in.Password {
			user = u
		}
	}
	var token string
	if user != nil {
		token = uuid.NewString()
		m.tokens[token] = user.ID
	}
	m.mu.Unlock()

	if user == nil {
		writeError(w, http.StatusUnauthorized, MsgInvalidCredentials)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    map[string]interface{}{"token": token, "user": user},
	})
}

func (m *MockBackend) handleMe(w http.ResponseWriter, _ *http.Request, user *UserRecord) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    map[string]interface{}{"user": user},
	})
}

func (m *MockBackend) handleListQueries(w http.ResponseWriter, r *http.Request, _ *UserRecord) {
	q := r.URL.Query()
	m.mu.Lock()
	var items []*QueryRecord
	for _, rec := range m.queries {
		if v := q.Get("hasResults"); v != "" && strconv.FormatBool(rec.HasResults) != v {
			continue
		}
		if v := q.Get("searchAttempted"); v != "" && strconv.FormatBool(rec.SearchAttempted) != v {
			continue
		}
		if v := q.Get("userEmail"); v != "" && !strings.Contains(rec.UserEmail, v) {
			continue
		}
		items = append(items, rec)
	}
	m.mu.Unlock()

	sortByCreated(items, q.Get("sortOrder"), func(i int) time.Time { return items[i].CreatedAt })
	page, pg := paginate(items, q)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": page, "pagination": pg})
}

func (m *MockBackend) handleNoResults(w http.ResponseWriter, r *http.Request, _ *UserRecord) {
	m.mu.Lock()
	var items []*QueryRecord
	for _, rec := range m.queries {
		if !rec.HasResults {
			items = append(items, rec)
		}
	}
	m.mu.Unlock()

	sortByCreated(items, "desc", func(i int) time.Time { return items[i].CreatedAt })
	page, pg := paginate(items, r.URL.Query())
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": page, "pagination": pg})
}

func (m *MockBackend) handleQueryStats(w http.ResponseWriter, _ *http.Request, _ *UserRecord) {
	m.mu.Lock()
	total, with, sum := len(m.queries), 0, 0
	for _, rec := range m.queries {
		if rec.HasResults {
			with++
		}
		sum += rec.ResultsCount
	}
	m.mu.Unlock()

	avg := 0.0
	if total > 0 {
		avg = float64(sum) / float64(total)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats": map[string]interface{}{
			"totalQueries":          total,
			"queriesWithResults":    with,
			"queriesWithoutResults": total - with,
			"averageResultsCount":   avg,
		},
	})
}

func (m *MockBackend) handleGetQuery(w http.ResponseWriter, r *http.Request, _ *UserRecord) {
	id := mux.Vars(r)["id"]
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.queries {
		if rec.ID == id {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": rec})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Query not found")
}

func (m *MockBackend) handleListUsers(w http.ResponseWriter, r *http.Request, _ *UserRecord) {
	q := r.URL.Query()
	m.mu.Lock()
	var items []*UserRecord
	for _, u := range m.users {
		if v := q.Get("role"); v != "" && u.Role != v {
			continue
		}
		if v := q.Get("isActive"); v != "" && strconv.FormatBool(u.IsActive) != v {
			continue
		}
		if v := strings.ToLower(q.Get("search")); v != "" &&
			!strings.Contains(strings.ToLower(u.Email+" "+u.FirstName+" "+u.LastName), v) {
			continue
		}
		items = append(items, u)
	}
	m.mu.Unlock()

	sortByCreated(items, q.Get("sortOrder"), func(i int) time.Time { return items[i].CreatedAt })
	page, pg := paginate(items, q)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"users": page,
			"pagination": map[string]interface{}{
				"currentPage": pg.Page,
				"totalPages":  pg.TotalPages,
				"totalUsers":  pg.Total,
				"limit":       pg.Limit,
				"hasNextPage": pg.HasNextPage,
				"hasPrevPage": pg.HasPrevPage,
			},
		},
	})
}

func (m *MockBackend) handleGetUser(w http.ResponseWriter, r *http.Request, _ *UserRecord) {
	m.mu.Lock()
	u := m.userByIDLocked(mux.Vars(r)["id"])
	m.mu.Unlock()
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]interface{}{"user": u}})
}

func (m *MockBackend) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var in RequestRecord
	if err := decodeBody(r, &in); err != nil || in.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}
	m.mu.Lock()
	rec := m.addRequestLocked(RequestRecord{
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Source:    in.Source,
		Metadata:  in.Metadata,
	})
	m.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "data": rec})
}

func (m *MockBackend) handleListRequests(w http.ResponseWriter, r *http.Request, _ *UserRecord) {
	q := r.URL.Query()
	m.mu.Lock()
	var items []RequestRecord
	for _, rec := range m.requests {
		if v := q.Get("status"); v != "" && rec.Status != v {
			continue
		}
		if v := q.Get("source"); v != "" && rec.Source != v {
			continue
		}
		if v := strings.ToLower(q.Get("search")); v != "" &&
			!strings.Contains(strings.ToLower(rec.Email+" "+rec.FirstName+" "+rec.LastName), v) {
			continue
		}
		items = append(items, *rec)
	}
	m.mu.Unlock()

	sortByCreated(items, q.Get("sortOrder"), func(i int) time.Time { return items[i].CreatedAt })
	page, pg := paginate(items, q)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": page, "pagination": pg})
}

func (m *MockBackend) handleRequestStats(w http.ResponseWriter, _ *http.Request, _ *UserRecord) {
	counts := map[string]int{}
	m.mu.Lock()
	for _, rec := range m.requests {
		counts[rec.Status]++
	}
	total := len(m.requests)
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats": map[string]interface{}{
			"totalRequests":      total,
			"pendingRequests":    counts["pending"],
			"contactedRequests":  counts["contacted"],
			"registeredRequests": counts["registered"],
			"ignoredRequests":    counts["ignored"],
		},
	})
}

func (m *MockBackend) handleGetRequest(w http.ResponseWriter, r *http.Request, _ *UserRecord) {
	rec, ok := m.Request(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "User request not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": rec})
}

var validStatuses = map[string]bool{"pending": true, "contacted": true, "registered": true, "ignored": true}

func (m *MockBackend) handleUpdateRequest(w http.ResponseWriter, r *http.Request, _ *UserRecord) {
	var in struct {
		Status string  `json:"status"`
		Notes  *string `json:"notes"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if in.Status != "" && !validStatuses[in.Status] {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	id := mux.Vars(r)["id"]
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.requests {
		if rec.ID != id {
			continue
		}
		if in.Status != "" {
			rec.Status = in.Status
		}
		if in.Notes != nil {
			rec.Notes = *in.Notes
		}
		rec.UpdatedAt = m.tick()
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": rec})
		return
	}
	writeError(w, http.StatusNotFound, "User request not found")
}

func (m *MockBackend) handleDeleteRequest(w http.ResponseWriter, r *http.Request, _ *UserRecord) {
	id := mux.Vars(r)["id"]
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range m.requests {
		if rec.ID == id {
			m.requests = append(m.requests[:i], m.requests[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "User request deleted"})
			return
		}
	}
	writeError(w, http.StatusNotFound, "User request not found")
}

// PageInfo is the pagination echo of list endpoints.
type PageInfo struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

func paginate[T any](items []T, q url.Values) ([]T, PageInfo) {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 50
	}
	total := len(items)
	totalPages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	out := make([]T, 0, end-start)
	out = append(out, items[start:end]...)
	return out, PageInfo{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

func sortByCreated[T any](items []T, order string, at func(int) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		if order == "asc" {
			return at(i).Before(at(j))
		}
		return at(i).After(at(j))
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := readAll(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// readAll reads the body once and rewinds it for later readers.
func readAll(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "message": message})
}
