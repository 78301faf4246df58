package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params holds page-based pagination parameters extracted from a request.
// Page is 1-based.
type Params struct {
	Page    int
	PerPage int
}

// FromContext reads ?page= and ?per_page= from the request. Missing or
// invalid values fall back to page 1 and DefaultPerPage.
func FromContext(c echo.Context) Params {
	return New(atoi(c.QueryParam("page")), atoi(c.QueryParam("per_page")))
}

// New clamps page and perPage into range.
func New(page, perPage int) Params {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Params{Page: page, PerPage: perPage}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Limit is the SQL LIMIT for this page.
func (p Params) Limit() int {
	return p.PerPage
}

// Offset is the SQL OFFSET for this page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages returns the number of pages needed for total items.
func (p Params) TotalPages(total int) int {
	if total <= 0 || p.PerPage <= 0 {
		return 0
	}
	return (total + p.PerPage - 1) / p.PerPage
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.PerPage < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Page > 1
}

// Window slices an in-memory result set to the current page.
func Window[T any](items []T, p Params) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Response wraps a paginated API response.
type Response struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalPages int         `json:"total_pages"`
	HasMore    bool        `json:"has_more"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:       data,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: p.TotalPages(total),
		HasMore:    p.HasNext(total),
	}
}
