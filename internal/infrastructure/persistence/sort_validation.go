package persistence

import (
	"strings"

	"github.com/openground/backend/internal/domain/listing"
)

// ValidateSortOrder normalizes a sort direction to ASC or DESC (default)
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when it is whitelisted, defaultField otherwise
func ValidateSortField(sortField string, allowed map[string]bool, defaultField string) string {
	f := strings.TrimSpace(sortField)
	if allowed[f] {
		return f
	}
	return defaultField
}

// ReviewSortFields are the columns reviews may be ordered by
var ReviewSortFields = map[string]bool{
	"created_at": true,
	"rating":     true,
}

// FavoriteSortFields are the columns favourites may be ordered by
var FavoriteSortFields = map[string]bool{
	"created_at": true,
}

// listingOrder maps a public sort option to an ORDER BY clause. Ties are
// broken by id so pages are stable.
func listingOrder(sort listing.SortOrder) string {
	switch sort {
	case listing.SortPriceAsc:
		return "price ASC, id ASC"
	case listing.SortPriceDesc:
		return "price DESC, id ASC"
	default:
		return "COALESCE(published_at, created_at) DESC, id ASC"
	}
}

// orderClause builds a safe ORDER BY clause from a filter's sort fields
func orderClause(orderBy, orderDir string, allowed map[string]bool, defaultField string) string {
	return ValidateSortField(orderBy, allowed, defaultField) + " " + ValidateSortOrder(orderDir)
}

// likePattern escapes LIKE wildcards in user input and wraps it in %
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(strings.TrimSpace(s))) + "%"
}
