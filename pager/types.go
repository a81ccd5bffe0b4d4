package pager

import (
	"net/url"

	"github.com/jrsteele09/go-market-client/apierror"
)

// Mode selects which list is visible.
type Mode int

const (
	Browse Mode = iota
	Search
)

func (m Mode) String() string {
	if m == Search {
		return "search"
	}
	return "browse"
}

// Filter is the non-page part of a browse signature.
type Filter struct {
	SortBy string
	Order  string
	Extra  map[string]string // additional query filters, e.g. minPrice
}

// Values encodes the filter as query parameters.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.SortBy != "" {
		v.Set("sortBy", f.SortBy)
	}
	if f.Order != "" {
		v.Set("order", f.Order)
	}
	for k, val := range f.Extra {
		if val != "" {
			v.Set(k, val)
		}
	}
	return v
}

// Page is one page returned by a browse read.
type Page[T any] struct {
	Items       []T
	Page        int
	HasNextPage bool
}

// PageList is the visible, de-duplicated list.
type PageList[T any] struct {
	Items       []T
	Page        int
	HasNextPage bool
	Mode        Mode
	Query       string
	Loading     bool
	Err         *apierror.Error
}
