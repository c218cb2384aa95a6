package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// TransactionModel is a row of the append-only transaction log
type TransactionModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	SessionID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Kind      string          `gorm:"type:varchar(20);not null"`
	Amount    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Note      string          `gorm:"type:text"`
	PaidAt    *time.Time
	DueDate   *time.Time
	CreatedAt time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (TransactionModel) TableName() string {
	return "transactions"
}

// ToDomain converts the model to a payment log row
func (m *TransactionModel) ToDomain() payment.LogRow {
	return payment.LogRow{
		ID:        m.ID,
		SessionID: m.SessionID,
		Kind:      payment.Kind(m.Kind),
		Amount:    m.Amount,
		Note:      m.Note,
		PaidAt:    m.PaidAt,
		DueDate:   m.DueDate,
		CreatedAt: m.CreatedAt,
	}
}

// TransactionModelFromDomain creates a persistence model from a log row
func TransactionModelFromDomain(row payment.LogRow, tenantID uuid.UUID) *TransactionModel {
	return &TransactionModel{
		ID:        row.ID,
		TenantID:  tenantID,
		SessionID: row.SessionID,
		Kind:      string(row.Kind),
		Amount:    row.Amount,
		Note:      row.Note,
		PaidAt:    row.PaidAt,
		DueDate:   row.DueDate,
		CreatedAt: row.CreatedAt,
	}
}
