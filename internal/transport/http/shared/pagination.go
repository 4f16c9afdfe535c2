package shared

import (
	"net/http"
	"strconv"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 500
)

type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit plus either offset or a 1-based page. Zero
// arguments fall back to DefaultPageLimit and MaxPageLimit; bad values are
// ignored.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	if defaultLimit <= 0 {
		defaultLimit = DefaultPageLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxPageLimit
	}
	query := r.URL.Query()

	limit := defaultLimit
	if v, err := strconv.Atoi(query.Get("limit")); err == nil && v > 0 {
		limit = min(v, maxLimit)
	}
	offset := 0
	if v, err := strconv.Atoi(query.Get("offset")); err == nil && v >= 0 {
		offset = v
	} else if v, err := strconv.Atoi(query.Get("page")); err == nil && v > 1 {
		offset = (v - 1) * limit
	}
	return Pagination{Limit: limit, Offset: offset}
}

// SetTotal reports the full match count and, when more rows follow this
// page, the offset of the next one.
func (p Pagination) SetTotal(w http.ResponseWriter, total int) {
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	if next := p.Offset + p.Limit; next < total {
		w.Header().Set("X-Next-Offset", strconv.Itoa(next))
	}
}
