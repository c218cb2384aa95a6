package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/payment"
	"github.com/lunari/studio-ledger/internal/infrastructure/changefeed"
	"github.com/lunari/studio-ledger/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormTransactionLog reads the append-only transaction log
type GormTransactionLog struct {
	db        *gorm.DB
	publisher changefeed.Publisher
	logger    *zap.Logger
}

// NewGormTransactionLog creates a new GormTransactionLog. Appended rows are
// announced on publisher when it is not nil.
func NewGormTransactionLog(db *gorm.DB, publisher changefeed.Publisher, logger *zap.Logger) *GormTransactionLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormTransactionLog{db: db, publisher: publisher, logger: logger}
}

// transactionChange is the change feed payload of a log row
type transactionChange struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Kind      string    `json:"kind"`
}

// FindBySession returns the log rows of a session, newest first. With no
// kinds given every row is returned.
func (r *GormTransactionLog) FindBySession(ctx context.Context, sessionID uuid.UUID, kinds ...payment.Kind) ([]payment.LogRow, error) {
	query := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if len(kinds) > 0 {
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = string(k)
		}
		query = query.Where("kind IN ?", names)
	}

	var rows []models.TransactionModel
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]payment.LogRow, len(rows))
	for i := range rows {
		result[i] = rows[i].ToDomain()
	}
	return result, nil
}

// Append writes a new log row
func (r *GormTransactionLog) Append(ctx context.Context, row payment.LogRow, tenantID uuid.UUID) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	model := models.TransactionModelFromDomain(row, tenantID)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	if r.publisher != nil {
		n, err := changefeed.NewNotification(changefeed.TableTransactions, changefeed.EventInsert,
			transactionChange{ID: row.ID, SessionID: row.SessionID, Kind: string(row.Kind)})
		if err == nil {
			err = r.publisher.Publish(ctx, n)
		}
		if err != nil {
			r.logger.Error("failed to announce transaction", zap.String("session_id", row.SessionID.String()), zap.Error(err))
		}
	}
	return nil
}

// Ensure GormTransactionLog implements payment.TransactionLog
var _ payment.TransactionLog = (*GormTransactionLog)(nil)
