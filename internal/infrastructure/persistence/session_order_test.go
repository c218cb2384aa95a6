package persistence

import (
	"testing"

	"github.com/lunari/studio-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestSessionOrder(t *testing.T) {
	tests := []struct {
		name     string
		orderBy  string
		orderDir string
		column   string
		desc     bool
	}{
		{"defaults", "", "", "scheduled_at", true},
		{"whitelisted ascending", "total", "asc", "total", false},
		{"direction is case insensitive", "  status ", " ASC ", "status", false},
		{"unknown column", "client_name", "asc", "scheduled_at", false},
		{"injection in column", "total; DROP TABLE sessions;--", "", "scheduled_at", true},
		{"injection in direction", "total", "ASC; DROP TABLE sessions;--", "total", true},
		{"column is case sensitive", "TOTAL", "desc", "scheduled_at", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := sessionOrder(shared.Filter{OrderBy: tt.orderBy, OrderDir: tt.orderDir})
			assert.Equal(t, "sessions", order.Column.Table)
			assert.Equal(t, tt.column, order.Column.Name)
			assert.Equal(t, tt.desc, order.Desc)
		})
	}
}
