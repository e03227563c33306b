// Package users reads the account directory. All endpoints are admin-only.
package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/autounite/admin-console/internal/apiclient"
	apierrors "github.com/autounite/admin-console/internal/errors"
	"github.com/autounite/admin-console/internal/pagination"
	"github.com/autounite/admin-console/internal/session"
)

const basePath = "/api/v1/users"

// DefaultLimit is the page size when a filter leaves Limit unset.
const DefaultLimit = 10

// Failure messages used when the backend does not supply one.
const (
	MsgListFailed = "Failed to fetch users"
	MsgGetFailed  = "Failed to fetch user"
)

// User is an account as listed by the backend.
type User struct {
	ID        string       `json:"_id"`
	Email     string       `json:"email"`
	FirstName string       `json:"firstName"`
	LastName  string       `json:"lastName"`
	Role      session.Role `json:"role"`
	IsActive  bool         `json:"isActive"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Name returns "First Last", or the email when both are empty.
func (u User) Name() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Filter narrows a List call. Nil and empty fields are not sent.
type Filter struct {
	Search   string
	Role     session.Role
	IsActive *bool
	pagination.Params
}

// Values encodes f as a query string, applying defaults.
func (f Filter) Values() url.Values {
	v := url.Values{}
	p := f.Params.WithDefaults(DefaultLimit)
	p.EncodePage(v)
	if s := strings.TrimSpace(f.Search); s != "" {
		v.Set("search", s)
	}
	if f.Role != "" {
		v.Set("role", string(f.Role))
	}
	if f.IsActive != nil {
		v.Set("isActive", strconv.FormatBool(*f.IsActive))
	}
	p.EncodeSort(v)
	return v
}

// usersPagination is the users endpoint's own pagination shape.
type usersPagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalUsers  int  `json:"totalUsers"`
	Limit       int  `json:"limit"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

func (p usersPagination) normalize() pagination.Pagination {
	return pagination.Pagination{
		Page:        p.CurrentPage,
		Limit:       p.Limit,
		Total:       p.TotalUsers,
		TotalPages:  p.TotalPages,
		HasNextPage: p.HasNextPage,
		HasPrevPage: p.HasPrevPage,
	}
}

// Client reads the account directory.
type Client struct {
	api *apiclient.Client
}

// New creates a Client.
func New(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// List returns one page of accounts. The backend nests the page under
// data.users and reports currentPage/totalUsers; the result uses the common
// pagination shape.
func (c *Client) List(ctx context.Context, f Filter) (*pagination.Page[User], error) {
	var out apiclient.Envelope[struct {
		Users      []User          `json:"users"`
		Pagination usersPagination `json:"pagination"`
	}]
	req := &apiclient.Request{Method: http.MethodGet, Path: basePath, Query: f.Values()}
	if err := c.api.Call(ctx, req, MsgListFailed, &out); err != nil {
		return nil, err
	}
	return &pagination.Page[User]{
		Data:       out.Data.Users,
		Pagination: out.Data.Pagination.normalize(),
	}, nil
}

// Get returns one account.
func (c *Client) Get(ctx context.Context, id string) (*User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apierrors.InvalidInput("user id is required")
	}
	var out apiclient.Envelope[json.RawMessage]
	if err := c.api.Call(ctx, &apiclient.Request{Method: http.MethodGet, Path: apiclient.Path(basePath, id)}, MsgGetFailed, &out); err != nil {
		return nil, err
	}

	// Accept both data:{...} and data:{user:{...}}.
	raw := []byte(out.Data)
	if nested := gjson.GetBytes(raw, "user"); nested.IsObject() {
		raw = []byte(nested.Raw)
	}
	var u User
	if len(raw) == 0 || json.Unmarshal(raw, &u) != nil || (u.ID == "" && u.Email == "") {
		return nil, apierrors.API(http.StatusOK, MsgGetFailed)
	}
	return &u, nil
}
