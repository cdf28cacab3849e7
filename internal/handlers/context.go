package handlers

import (
	"context"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/nodewire/nodewire/internal/middleware"
	"github.com/nodewire/nodewire/internal/policies"
	"github.com/nodewire/nodewire/internal/services"
	"github.com/nodewire/nodewire/pkg/errors"
	"github.com/nodewire/nodewire/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requireAccess extracts the authenticated access context, writing a 401 when
// the auth middleware did not run.
func requireAccess(c *gin.Context) (policies.AccessContext, bool) {
	access, ok := middleware.AccessFrom(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
	}
	return access, ok
}

// listQueryFrom assembles list options from the common query parameters.
func listQueryFrom(c *gin.Context, filterKeys ...string) services.ListQuery {
	query := services.ListQuery{
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: services.SortOrder(c.Query("sort_order")),
		Offset:    parseIntQuery(c, "offset", 0),
		Limit:     parseIntQuery(c, "limit", 0),
	}

	for _, key := range filterKeys {
		if value := c.Query(key); value != "" {
			if query.Filters == nil {
				query.Filters = map[string]string{}
			}
			query.Filters[key] = value
		}
	}

	return query
}

func sortedPolicyNames(access policies.AccessContext) []string {
	names := make([]string, 0, len(access.Policies))
	for name := range access.Policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func paginationMeta(p services.Pagination) *response.Meta {
	return &response.Meta{
		Page:        p.Page,
		PageSize:    p.PageSize,
		Total:       p.Total,
		TotalPages:  p.TotalPages,
		HasNext:     p.HasNext,
		HasPrevious: p.HasPrevious,
	}
}
