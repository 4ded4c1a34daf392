package shop

import "strings"

// ProductFilter narrows a product listing.
type ProductFilter struct {
	Search   string
	Name     string
	Archived *bool
	Ordering string
	Page     int
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	UserID *uint
	Page   int
}

// orderingColumns maps accepted ordering fields to columns.
var orderingColumns = map[string]string{
	"name":     "name",
	"price":    "price",
	"discount": "discount",
}

// OrderClause turns an ordering parameter such as "-price" into an ORDER BY
// clause. Unknown fields fall back to the default product ordering.
func OrderClause(ordering string) string {
	field := strings.TrimSpace(ordering)
	desc := strings.HasPrefix(field, "-")
	field = strings.TrimPrefix(field, "-")

	column, ok := orderingColumns[field]
	if !ok {
		return "name ASC, id ASC"
	}
	if desc {
		return column + " DESC, id ASC"
	}
	return column + " ASC, id ASC"
}

// Page is one page of a listing.
type Page[T any] struct {
	Items    []T   `json:"results"`
	Page     int   `json:"page"`
	Count    int64 `json:"count"`
	HasNext  bool  `json:"has_next"`
	HasPrev  bool  `json:"has_previous"`
	NumPages int   `json:"num_pages"`
}

// Offset returns the row offset of a 1-based page number.
func Offset(page int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * PageSize
}

// NumPages returns the number of pages needed for count rows. An empty
// listing still has one page.
func NumPages(count int64) int {
	if count <= 0 {
		return 1
	}
	return int((count + PageSize - 1) / PageSize)
}
