package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a 1-based page request.
type Params struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Meta is returned alongside every paginated list.
type Meta struct {
	CurrentPage  int  `json:"current_page"`
	PerPage      int  `json:"per_page"`
	TotalPages   int  `json:"total_pages"`
	TotalRecords int  `json:"total_records"`
	HasNext      bool `json:"has_next"`
	HasPrevious  bool `json:"has_previous"`
}

// ParseParams reads ?page= and ?limit=. Malformed or non-positive values fall
// back to defaults; limit is capped at MaxLimit.
func ParseParams(r *http.Request) Params {
	q := r.URL.Query()
	p := Params{
		Page:  positiveInt(q.Get("page")),
		Limit: positiveInt(q.Get("limit")),
	}
	p.Validate()
	return p
}

func positiveInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

// Validate clamps the params into range.
func (p *Params) Validate() {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	switch {
	case p.Limit < 1:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
}

// CalculateOffset is the SQL OFFSET for the page.
func (p *Params) CalculateOffset() int {
	return (p.Page - 1) * p.Limit
}

func (p *Params) CalculateMeta(totalRecords int) Meta {
	pages := 1
	if totalRecords > 0 {
		pages = (totalRecords + p.Limit - 1) / p.Limit
	}
	return Meta{
		CurrentPage:  p.Page,
		PerPage:      p.Limit,
		TotalPages:   pages,
		TotalRecords: totalRecords,
		HasNext:      p.Page < pages,
		HasPrevious:  p.Page > 1,
	}
}
