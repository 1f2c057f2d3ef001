package api

import (
	"net/http"
	"strconv"
)

// PaginationParams holds parsed pagination values from query params.
type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// PaginatedResponse wraps list data with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// PaginationMeta contains pagination metadata for the response.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total,omitempty"`
	HasMore bool `json:"has_more"`
}

// ParsePagination extracts page and limit from query params. Missing values
// take defaults; limit is capped at maxLimit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	return PaginationParams{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// NewPaginatedResponse builds a response for a page of data. A negative
// total means the total is unknown and HasMore is inferred from a full page.
func NewPaginatedResponse(data interface{}, n int, p PaginationParams, total int) PaginatedResponse {
	meta := PaginationMeta{Page: p.Page, Limit: p.Limit}
	if total >= 0 {
		meta.Total = total
		meta.HasMore = p.Offset+n < total
	} else {
		meta.HasMore = n == p.Limit
	}
	return PaginatedResponse{Data: data, Pagination: meta}
}
