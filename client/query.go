package client

import (
	"net/url"
	"strconv"
	"time"
)

// QuerySpec is a fully resolved request descriptor for one list fetch. The
// EffectiveOffset is the offset actually sent, after override resolution.
type QuerySpec struct {
	Filters         Filters
	Limit           int
	EffectiveOffset int
}

// Overrides adjusts how the next fetch resolves its offset.
//
// Precedence, highest first: an explicit OffsetOverride (paging buttons), the
// ResetToFirstPage flag (any non-search filter change), then the currently
// stored offset (plain refresh).
type Overrides struct {
	OffsetOverride   *int
	ResetToFirstPage bool
}

// BuildQuery serializes the non-empty filter fields plus paging into a
// request descriptor. Date bounds are converted to absolute instants.
func BuildQuery(filters Filters, p Pagination, overrides Overrides) QuerySpec {
	return QuerySpec{
		Filters:         filters,
		Limit:           p.Limit,
		EffectiveOffset: resolveOffset(p.Offset, overrides),
	}
}

func resolveOffset(stored int, o Overrides) int {
	if o.OffsetOverride != nil {
		offset := *o.OffsetOverride
		if offset < 0 {
			offset = 0
		}
		return offset
	}
	if o.ResetToFirstPage {
		return 0
	}
	return stored
}

// Values encodes the resolved query as URL parameters. Sort order is always
// newest-first.
func (s QuerySpec) Values() url.Values {
	values := encodeFilters(s.Filters)
	values.Set("limit", strconv.Itoa(s.Limit))
	values.Set("offset", strconv.Itoa(s.EffectiveOffset))
	values.Set("sort_order", "DESC")
	return values
}

func encodeFilters(f Filters) url.Values {
	values := url.Values{}
	if f.Action != "" {
		values.Set("action", f.Action)
	}
	if f.Resource != "" {
		values.Set("resource", f.Resource)
	}
	if f.Status != "" {
		values.Set("status", f.Status)
	}
	if f.Severity != "" {
		values.Set("severity", f.Severity)
	}
	if f.Search != "" {
		values.Set("search", f.Search)
	}
	if !f.From.IsZero() {
		values.Set("from_date", f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		values.Set("to_date", f.To.UTC().Format(time.RFC3339))
	}
	return values
}
