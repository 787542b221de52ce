package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Params describes offset pagination extracted from a request's query string.
type Params struct {
	Page  int
	Limit int
}

// Offset returns the number of records preceding the requested page.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Parse reads the page and limit query parameters, applying defaults and caps.
func Parse(query url.Values) (Params, error) {
	params := Params{Page: 1, Limit: defaultPageSize}

	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return Params{}, fmt.Errorf("page must be a positive integer")
		}
		params.Page = page
	}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return Params{}, fmt.Errorf("limit must be a positive integer")
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}
		params.Limit = limit
	}

	return params, nil
}
