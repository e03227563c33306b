// Package queries reads the search-query log recorded by the backend.
package queries

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/autounite/admin-console/internal/apiclient"
	apierrors "github.com/autounite/admin-console/internal/errors"
	"github.com/autounite/admin-console/internal/pagination"
)

const basePath = "/api/v1/queries"

// DefaultLimit is the page size when a filter leaves Limit unset.
const DefaultLimit = 50

// Failure messages used when the backend does not supply one.
const (
	MsgListFailed      = "Failed to fetch queries"
	MsgNoResultsFailed = "Failed to fetch queries without results"
	MsgStatsFailed     = "Failed to fetch query statistics"
	MsgGetFailed       = "Failed to fetch query"
	MsgStatsForbidden  = "Access denied. You need admin privileges to view query statistics."
)

// Query is one logged search.
type Query struct {
	ID              string                 `json:"_id"`
	Query           string                 `json:"query"`
	UserEmail       string                 `json:"userEmail,omitempty"`
	ResultsCount    int                    `json:"resultsCount"`
	SearchAttempted bool                   `json:"searchAttempted"`
	HasResults      bool                   `json:"hasResults"`
	Error           string                 `json:"error,omitempty"`
	FiltersUsed     map[string]interface{} `json:"filtersUsed,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
}

// Stats aggregates the query log.
type Stats struct {
	TotalQueries          int     `json:"totalQueries"`
	QueriesWithResults    int     `json:"queriesWithResults"`
	QueriesWithoutResults int     `json:"queriesWithoutResults"`
	AverageResultsCount   float64 `json:"averageResultsCount"`
}

// Filter narrows a List call. Nil and empty fields are not sent.
type Filter struct {
	HasResults      *bool
	SearchAttempted *bool
	UserEmail       string
	pagination.Params
}

// Values encodes f as a query string, applying defaults.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.HasResults != nil {
		v.Set("hasResults", strconv.FormatBool(*f.HasResults))
	}
	if f.SearchAttempted != nil {
		v.Set("searchAttempted", strconv.FormatBool(*f.SearchAttempted))
	}
	if email := strings.TrimSpace(f.UserEmail); email != "" {
		v.Set("userEmail", email)
	}
	p := f.Params.WithDefaults(DefaultLimit)
	p.EncodePage(v)
	p.EncodeSort(v)
	return v
}

// Client reads the query log.
type Client struct {
	api *apiclient.Client
}

// New creates a Client.
func New(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// List returns one page of logged queries.
func (c *Client) List(ctx context.Context, f Filter) (*pagination.Page[Query], error) {
	var out pagination.Page[Query]
	req := &apiclient.Request{Method: http.MethodGet, Path: basePath, Query: f.Values()}
	if err := c.api.Call(ctx, req, MsgListFailed, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NoResults returns one page of queries that produced no results.
func (c *Client) NoResults(ctx context.Context, page, limit int) (*pagination.Page[Query], error) {
	p := pagination.Params{Page: page, Limit: limit}.WithDefaults(DefaultLimit)
	v := url.Values{}
	p.EncodePage(v)

	var out pagination.Page[Query]
	req := &apiclient.Request{Method: http.MethodGet, Path: basePath + "/no-results", Query: v}
	if err := c.api.Call(ctx, req, MsgNoResultsFailed, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns aggregate counts. It is admin-only; a forbidden answer is
// reported with a query-specific message.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out struct {
		Stats *Stats `json:"stats"`
	}
	err := c.api.Call(ctx, &apiclient.Request{Method: http.MethodGet, Path: basePath + "/stats"}, MsgStatsFailed, &out)
	if apierrors.IsForbidden(err) {
		return nil, apierrors.Forbidden(MsgStatsForbidden)
	}
	if err != nil {
		return nil, err
	}
	if out.Stats == nil {
		return &Stats{}, nil
	}
	return out.Stats, nil
}

// Get returns one logged query.
func (c *Client) Get(ctx context.Context, id string) (*Query, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apierrors.InvalidInput("query id is required")
	}
	var out apiclient.Envelope[*Query]
	if err := c.api.Call(ctx, &apiclient.Request{Method: http.MethodGet, Path: apiclient.Path(basePath, id)}, MsgGetFailed, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, apierrors.API(http.StatusOK, MsgGetFailed)
	}
	return out.Data, nil
}
