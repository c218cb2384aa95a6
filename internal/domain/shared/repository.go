package shared

// Filter narrows and orders a session listing. Filters carries the
// column filters a store understands: status, client_id, category,
// include_archived, from and to.
type Filter struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
	Search   string
	Filters  map[string]any
}

// DefaultFilter lists the first 50 sessions, latest appointment first
func DefaultFilter() Filter {
	return Filter{
		Page:     1,
		PageSize: 50,
		OrderBy:  "scheduled_at",
		OrderDir: "desc",
		Filters:  map[string]any{},
	}
}

// Offset returns the row offset of the requested page
func (f Filter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}
