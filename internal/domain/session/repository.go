package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/shared"
)

// Repository persists sessions. Reads join the client display fields.
type Repository interface {
	// FindByID returns shared.ErrNotFound when the session does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*Session, error)
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Session, error)
	// FindUnarchivedIDs lists every session id the reconciliation sweep visits
	FindUnarchivedIDs(ctx context.Context) ([]uuid.UUID, error)
	Insert(ctx context.Context, s *Session) error
	// Update writes only the given fields and bumps the version
	Update(ctx context.Context, s *Session, fields []Field) error
	// Delete removes the session, and its transaction log rows when purgePayments is set
	Delete(ctx context.Context, id uuid.UUID, purgePayments bool) error
}
