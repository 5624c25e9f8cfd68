package app

import (
	"context"

	"github.com/tessera-id/portal/readmodel"
)

// SearchPayload describes a view search: optional tenant scope, a free-text
// term matched case-insensitively against the view's searchable field, and
// sort/page settings.
type SearchPayload struct {
	// TenantID scopes the search to one realm. Empty means the top-level
	// portal scope; All disables tenant filtering entirely.
	TenantID string `json:"tenantId,omitempty"`
	All      bool   `json:"all,omitempty"`

	// Search is a case-insensitive substring match.
	Search string `json:"search,omitempty"`

	// SortBy is the view field to order by; descending when SortDesc.
	SortBy   string `json:"sortBy,omitempty"`
	SortDesc bool   `json:"sortDesc,omitempty"`

	// Page is 1-based; PageSize of 0 returns everything.
	Page     int `json:"page,omitempty"`
	PageSize int `json:"pageSize,omitempty"`
}

// SearchResults is a page of views with the total match count before paging.
type SearchResults[T any] struct {
	Items      []*T  `json:"items"`
	TotalCount int64 `json:"totalCount"`
}

// buildQuery translates a SearchPayload into a repository query.
// searchField is the view field the free-text term matches against;
// tenantScoped controls whether the view carries a TenantID field.
func buildQuery(payload SearchPayload, searchField string, tenantScoped bool) readmodel.Query {
	q := readmodel.NewQuery()
	if tenantScoped && !payload.All {
		if payload.TenantID == "" {
			q.Where("TenantID", readmodel.FilterOpIsNull, nil)
		} else {
			q.Where("TenantID", readmodel.FilterOpEq, payload.TenantID)
		}
	}
	if payload.Search != "" && searchField != "" {
		q.Where(searchField, readmodel.FilterOpLike, payload.Search)
	}
	if payload.SortBy != "" {
		if payload.SortDesc {
			q.OrderByDesc(payload.SortBy)
		} else {
			q.OrderByAsc(payload.SortBy)
		}
	}
	if payload.Page > 0 && payload.PageSize > 0 {
		q.WithPagination(payload.Page, payload.PageSize)
	}
	return q.Build()
}

// search runs a payload against a repository.
func search[T any](ctx context.Context, repo readmodel.Repository[T], payload SearchPayload, searchField string, tenantScoped bool) (SearchResults[T], error) {
	result, err := repo.FindPage(ctx, buildQuery(payload, searchField, tenantScoped))
	if err != nil {
		return SearchResults[T]{}, err
	}
	return SearchResults[T]{Items: result.Items, TotalCount: result.TotalCount}, nil
}
