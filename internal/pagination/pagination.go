// Package pagination holds the page/sort parameters shared by every list
// endpoint and the display helpers built on the backend's pagination echo.
package pagination

import (
	"net/url"
	"strconv"
)

// SortOrder is "asc" or "desc".
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// DefaultSortBy is the default sort field of every list endpoint.
const DefaultSortBy = "createdAt"

// Params are the page and sort parameters of a list request.
type Params struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder SortOrder
}

// WithDefaults fills zero values: page 1, the given limit, createdAt, desc.
func (p Params) WithDefaults(defaultLimit int) Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.SortBy == "" {
		p.SortBy = DefaultSortBy
	}
	if p.SortOrder != Asc && p.SortOrder != Desc {
		p.SortOrder = Desc
	}
	return p
}

// EncodePage writes page and limit into v.
func (p Params) EncodePage(v url.Values) {
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("limit", strconv.Itoa(p.Limit))
}

// EncodeSort writes sortBy and sortOrder into v.
func (p Params) EncodeSort(v url.Values) {
	v.Set("sortBy", p.SortBy)
	v.Set("sortOrder", string(p.SortOrder))
}

// Toggle returns the sort after a click on field: the same field flips the
// order, a different field sorts descending.
func (p Params) Toggle(field string) Params {
	if p.SortBy == field {
		if p.SortOrder == Asc {
			p.SortOrder = Desc
		} else {
			p.SortOrder = Asc
		}
		return p
	}
	p.SortBy = field
	p.SortOrder = Desc
	return p
}

// Pagination is the backend's pagination echo, displayed as-is.
type Pagination struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// Window returns the 1-based range of items shown on the current page:
// from = (page-1)*limit + 1 and to = min(page*limit, total).
func (p Pagination) Window() (from, to int) {
	page := p.Page
	if page < 1 {
		page = 1
	}
	from = (page-1)*p.Limit + 1
	to = page * p.Limit
	if to > p.Total {
		to = p.Total
	}
	return from, to
}

// Prev returns the previous page number, never below 1.
func Prev(page int) int {
	if page <= 1 {
		return 1
	}
	return page - 1
}

// Next returns the next page number.
func Next(page int) int {
	if page < 1 {
		return 1
	}
	return page + 1
}

// Page is a list response: one page of items and the backend's echo.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}
