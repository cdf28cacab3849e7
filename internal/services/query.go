package services

import (
	"fmt"
	"strings"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// SortOrder selects ascending or descending ordering for listings.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListQuery carries pagination, filtering and sorting options for listing
// operations. Offset/Limit paginate; Total is computed by a separate count
// query over the same predicate, never from the page slice.
type ListQuery struct {
	Search    string
	Filters   map[string]string
	SortBy    string
	SortOrder SortOrder
	Offset    int
	Limit     int
}

// Pagination summarises a page within a filtered result set.
type Pagination struct {
	Page        int   `json:"page"`
	PageSize    int   `json:"page_size"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

func (q ListQuery) normalized() ListQuery {
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Filter returns the trimmed filter value for the key, if present.
func (q ListQuery) Filter(key string) string {
	if q.Filters == nil {
		return ""
	}
	return strings.TrimSpace(q.Filters[key])
}

// Pagination computes page metadata for the supplied total row count.
func (q ListQuery) Pagination(total int64) Pagination {
	n := q.normalized()

	page := n.Offset/n.Limit + 1
	totalPages := int((total + int64(n.Limit) - 1) / int64(n.Limit))

	return Pagination{
		Page:        page,
		PageSize:    n.Limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     int64(n.Offset+n.Limit) < total,
		HasPrevious: n.Offset > 0,
	}
}

// orderClause maps the caller-supplied sort key onto a whitelisted column.
// Unknown keys, or no key at all, fall back to newest-first.
func (q ListQuery) orderClause(allowed map[string]string) string {
	column, ok := allowed[strings.TrimSpace(q.SortBy)]
	if !ok {
		return "created_at DESC"
	}

	direction := "ASC"
	if q.SortOrder == SortDesc {
		direction = "DESC"
	}
	return fmt.Sprintf("%s %s", column, direction)
}
