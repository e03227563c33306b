// Package userrequests manages demo/access requests submitted through the
// public website form.
package userrequests

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/autounite/admin-console/internal/apiclient"
	apierrors "github.com/autounite/admin-console/internal/errors"
	"github.com/autounite/admin-console/internal/pagination"
)

const basePath = "/api/v1/user-requests"

// DefaultLimit is the page size when a filter leaves Limit unset.
const DefaultLimit = 50

// DefaultSource is recorded for submissions that do not name one.
const DefaultSource = "website"

// Failure messages used when the backend does not supply one.
const (
	MsgSubmitFailed = "Failed to submit request"
	MsgListFailed   = "Failed to fetch user requests"
	MsgStatsFailed  = "Failed to fetch statistics"
	MsgGetFailed    = "Failed to fetch user request"
	MsgUpdateFailed = "Failed to update user request"
	MsgDeleteFailed = "Failed to delete user request"
)

// Status is the follow-up state of a request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusContacted  Status = "contacted"
	StatusRegistered Status = "registered"
	StatusIgnored    Status = "ignored"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusPending, StatusContacted, StatusRegistered, StatusIgnored}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus validates a status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", apierrors.InvalidInput("unknown status " + raw + " (want pending, contacted, registered or ignored)")
	}
	return s, nil
}

// Request is one submitted demo request.
type Request struct {
	ID        string                 `json:"_id"`
	Email     string                 `json:"email"`
	FirstName string                 `json:"firstName"`
	LastName  string                 `json:"lastName"`
	Status    Status                 `json:"status"`
	Source    string                 `json:"source"`
	Notes     string                 `json:"notes,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// Name returns "First Last", or the email when both are empty.
func (r Request) Name() string {
	name := strings.TrimSpace(r.FirstName + " " + r.LastName)
	if name == "" {
		return r.Email
	}
	return name
}

// Stats counts requests per status.
type Stats struct {
	TotalRequests      int `json:"totalRequests"`
	PendingRequests    int `json:"pendingRequests"`
	ContactedRequests  int `json:"contactedRequests"`
	RegisteredRequests int `json:"registeredRequests"`
	IgnoredRequests    int `json:"ignoredRequests"`
}

// Submission is the public form payload.
type Submission struct {
	Email     string                 `json:"email"`
	FirstName string                 `json:"firstName"`
	LastName  string                 `json:"lastName"`
	Source    string                 `json:"source"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// Update changes a request's status and/or notes. A nil Notes leaves the
// notes untouched; an empty one clears them.
type Update struct {
	Status Status  `json:"status,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

// Filter narrows a List call. Empty fields are not sent.
type Filter struct {
	Status Status
	Source string
	Search string
	pagination.Params
}

// Values encodes f as a query string, applying defaults.
func (f Filter) Values() url.Values {
	v := url.Values{}
	p := f.Params.WithDefaults(DefaultLimit)
	p.EncodePage(v)
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	if s := strings.TrimSpace(f.Source); s != "" {
		v.Set("source", s)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		v.Set("search", s)
	}
	p.EncodeSort(v)
	return v
}

// Client manages user requests.
type Client struct {
	api *apiclient.Client
}

// New creates a Client.
func New(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// Submit files a demo request. It needs no session.
func (c *Client) Submit(ctx context.Context, s Submission) (*Request, error) {
	s.Email = strings.TrimSpace(s.Email)
	if s.Email == "" {
		return nil, apierrors.InvalidInput("email is required")
	}
	if s.Source == "" {
		s.Source = DefaultSource
	}
	if s.Metadata == nil {
		s.Metadata = map[string]interface{}{}
	}

	var out apiclient.Envelope[*Request]
	req := &apiclient.Request{Method: http.MethodPost, Path: basePath, Body: s, Public: true}
	if err := c.api.Call(ctx, req, MsgSubmitFailed, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return &Request{Email: s.Email, FirstName: s.FirstName, LastName: s.LastName, Source: s.Source, Status: StatusPending}, nil
	}
	return out.Data, nil
}

// List returns one page of requests.
func (c *Client) List(ctx context.Context, f Filter) (*pagination.Page[Request], error) {
	var out pagination.Page[Request]
	req := &apiclient.Request{Method: http.MethodGet, Path: basePath, Query: f.Values()}
	if err := c.api.Call(ctx, req, MsgListFailed, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns per-status counts.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out struct {
		Stats *Stats `json:"stats"`
	}
	if err := c.api.Call(ctx, &apiclient.Request{Method: http.MethodGet, Path: basePath + "/stats"}, MsgStatsFailed, &out); err != nil {
		return nil, err
	}
	if out.Stats == nil {
		return &Stats{}, nil
	}
	return out.Stats, nil
}

// Get returns one request.
func (c *Client) Get(ctx context.Context, id string) (*Request, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	var out apiclient.Envelope[*Request]
	if err := c.api.Call(ctx, &apiclient.Request{Method: http.MethodGet, Path: apiclient.Path(basePath, id)}, MsgGetFailed, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, apierrors.API(http.StatusOK, MsgGetFailed)
	}
	return out.Data, nil
}

// Update applies u and returns the updated request as reported by the
// backend. Callers refetch lists to observe the change.
func (c *Client) Update(ctx context.Context, id string, u Update) (*Request, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	if u.Status != "" && !u.Status.Valid() {
		return nil, apierrors.InvalidInput("unknown status " + string(u.Status))
	}
	if u.Status == "" && u.Notes == nil {
		return nil, apierrors.InvalidInput("nothing to update")
	}

	var out apiclient.Envelope[*Request]
	req := &apiclient.Request{Method: http.MethodPatch, Path: apiclient.Path(basePath, id), Body: u}
	if err := c.api.Call(ctx, req, MsgUpdateFailed, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Delete removes a request permanently. Callers must obtain confirmation
// first.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return c.api.Call(ctx, &apiclient.Request{Method: http.MethodDelete, Path: apiclient.Path(basePath, id)}, MsgDeleteFailed, nil)
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apierrors.InvalidInput("request id is required")
	}
	return nil
}
