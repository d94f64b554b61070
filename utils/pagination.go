package utils

import (
	"net/url"
	"strconv"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage keeps Skip well inside int64 and away from pointless deep scans.
	MaxPage = 100000
)

type Page struct {
	Page  int
	Limit int
}

func (p Page) Skip() int64 { return int64(p.Page-1) * int64(p.Limit) }

// GetPaginationParams reads page and limit; page < 1 becomes 1, page is capped
// at MaxPage and a limit outside 1..MaxLimit becomes DefaultLimit.
func GetPaginationParams(q url.Values) Page {
	p := Page{Page: 1, Limit: DefaultLimit}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Page = min(n, MaxPage)
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 && n <= MaxLimit {
		p.Limit = n
	}
	return p
}

// Paginated is the list envelope returned by every paged endpoint.
type Paginated struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func NewPaginated(items interface{}, total int64, p Page) Paginated {
	return Paginated{Items: items, Total: total, Page: p.Page, Limit: p.Limit}
}
