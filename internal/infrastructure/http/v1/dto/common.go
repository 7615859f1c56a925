// Package dto holds the request and response bodies of the v1 API.
// Money travels as decimal strings, quantities as JSON numbers.
package dto

import (
	"time"
)

// DefaultLimit applies when a list request omits limit.
const DefaultLimit = 100

// OffsetRequest is limit/offset paging for rollup listings.
type OffsetRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Defaults fills Limit when the client sent none.
func (p *OffsetRequest) Defaults() {
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
}

// ListResponse wraps a collection. Items is never null.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Count  int `json:"count"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// NewListResponse builds a ListResponse; zero limit and offset are omitted
// for unpaged lists.
func NewListResponse[T any](items []T, limit, offset int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items), Limit: limit, Offset: offset}
}

// DayRange selects whole UTC days, both ends inclusive.
type DayRange struct {
	From *time.Time `form:"from" json:"from,omitempty" time_format:"2006-01-02" time_utc:"1"`
	To   *time.Time `form:"to" json:"to,omitempty" time_format:"2006-01-02" time_utc:"1"`
}

// EndExclusive is midnight after To, for half-open timestamp filters.
func (r DayRange) EndExclusive() *time.Time {
	if r.To == nil {
		return nil
	}
	end := r.To.AddDate(0, 0, 1)
	return &end
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
