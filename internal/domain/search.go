package domain

import (
	"math"
	"strings"
)

const (
	DefaultPageNumber = 1
	DefaultPageSize   = 4
	MaxPageSize       = 50
)

// OrderBy selects the explicit sort of a search.
type OrderBy int

const (
	OrderByAuctionEnd OrderBy = iota // default
	OrderByMake
	OrderByNew
)

// ParseOrderBy maps the wire value onto OrderBy. Unknown values yield the
// default arm and ok=false so callers can report the fallback.
func ParseOrderBy(s string) (OrderBy, bool) {
	switch strings.TrimSpace(s) {
	case "make":
		return OrderByMake, true
	case "new":
		return OrderByNew, true
	case "":
		return OrderByAuctionEnd, true
	default:
		return OrderByAuctionEnd, false
	}
}

func (o OrderBy) String() string {
	switch o {
	case OrderByMake:
		return "make"
	case OrderByNew:
		return "new"
	default:
		return "auctionEnd"
	}
}

// FilterBy selects the auction time window of a search.
type FilterBy int

const (
	FilterByLive FilterBy = iota // default
	FilterByFinished
	FilterByEndingSoon
)

func ParseFilterBy(s string) (FilterBy, bool) {
	switch strings.TrimSpace(s) {
	case "finished":
		return FilterByFinished, true
	case "endingSoon":
		return FilterByEndingSoon, true
	case "":
		return FilterByLive, true
	default:
		return FilterByLive, false
	}
}

func (f FilterBy) String() string {
	switch f {
	case FilterByFinished:
		return "finished"
	case FilterByEndingSoon:
		return "endingSoon"
	default:
		return "live"
	}
}

// SearchParams is a search request after boundary coercion.
type SearchParams struct {
	SearchTerm string
	OrderBy    OrderBy
	FilterBy   FilterBy
	Seller     string
	Winner     string
	PageNumber int
	PageSize   int
}

// Normalized clamps pagination: both values are at least 1, the page size
// is at most MaxPageSize and the page number is small enough that Offset
// cannot overflow.
func (p SearchParams) Normalized() SearchParams {
	if p.PageSize < 1 {
		p.PageSize = 1
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	if p.PageNumber < 1 {
		p.PageNumber = 1
	}
	if limit := math.MaxInt / p.PageSize; p.PageNumber > limit {
		p.PageNumber = limit
	}
	return p
}

// Offset is the number of matches skipped before the requested page.
func (p SearchParams) Offset() int {
	p = p.Normalized()
	return (p.PageNumber - 1) * p.PageSize
}
