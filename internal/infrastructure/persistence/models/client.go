package models

import "github.com/google/uuid"

// ClientModel is the clients table. The ledger only reads it to join
// display fields onto sessions.
type ClientModel struct {
	BaseModel
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name     string    `gorm:"type:varchar(200);not null"`
	Email    string    `gorm:"type:varchar(200)"`
	Phone    string    `gorm:"type:varchar(50)"`
}

// TableName returns the table name for GORM
func (ClientModel) TableName() string {
	return "clients"
}
