package common

import (
	"net/http"
	"strconv"
)

// Pagination is the page metadata attached to list responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination derives the page count from total and limit.
func NewPagination(page, limit, total int) Pagination {
	p := Pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 && total > 0 {
		p.TotalPages = (total + limit - 1) / limit
	}
	return p
}

// ParsePagination reads the page and limit query parameters. Missing or
// invalid values fall back to page 1 and defaultLimit; limit is capped at
// maxLimit when maxLimit is positive.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) (page, limit int) {
	q := r.URL.Query()
	page = positiveOr(q.Get("page"), 1)
	limit = positiveOr(q.Get("limit"), defaultLimit)
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func positiveOr(raw string, fallback int) int {
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return fallback
}
