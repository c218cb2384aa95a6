package payment

import (
	"context"

	"github.com/google/uuid"
)

// TransactionLog reads the append-only transaction log
type TransactionLog interface {
	// FindBySession returns the session's rows of the given kinds, newest first
	FindBySession(ctx context.Context, sessionID uuid.UUID, kinds ...Kind) ([]LogRow, error)
}
