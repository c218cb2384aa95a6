package persistence

import (
	"strings"

	"github.com/lunari/studio-ledger/internal/domain/shared"
	"gorm.io/gorm/clause"
)

const defaultSessionSort = "scheduled_at"

// sessionSortColumns whitelists the columns a session listing may sort by
var sessionSortColumns = map[string]bool{
	"created_at":   true,
	"updated_at":   true,
	"scheduled_at": true,
	"status":       true,
	"category":     true,
	"total":        true,
}

// sessionOrder builds the ORDER BY of a session listing. Unknown columns
// fall back to scheduled_at, and anything but "asc" sorts descending.
func sessionOrder(filter shared.Filter) clause.OrderByColumn {
	column := strings.TrimSpace(filter.OrderBy)
	if !sessionSortColumns[column] {
		column = defaultSessionSort
	}
	return clause.OrderByColumn{
		Column: clause.Column{Table: "sessions", Name: column},
		Desc:   !strings.EqualFold(strings.TrimSpace(filter.OrderDir), "asc"),
	}
}
