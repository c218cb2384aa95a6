package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SessionModel is the persistence model for the Session aggregate root.
// Raw component columns and the frozen snapshot are stored independently.
type SessionModel struct {
	TenantAggregateModel
	ClientID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	AppointmentID    *uuid.UUID      `gorm:"type:uuid;index"`
	ScheduledAt      time.Time       `gorm:"not null;index"`
	Category         string          `gorm:"type:varchar(100)"`
	PackageID        *uuid.UUID      `gorm:"type:uuid"`
	PackageRef       string          `gorm:"type:varchar(200)"`
	Description      string          `gorm:"type:text"`
	Notes            string          `gorm:"type:text"`
	Status           string          `gorm:"type:varchar(20);not null;default:'agendado';index"`
	Snapshot         datatypes.JSON  `gorm:"type:jsonb"`
	BaseValue        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	ExtraQuantity    int             `gorm:"not null;default:0"`
	ExtraUnitPrice   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	ExtraSubtotal    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Discount         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Addition         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Products         datatypes.JSON  `gorm:"type:jsonb"`
	ProductsSubtotal decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	PaidToDate       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Total            decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (SessionModel) TableName() string {
	return "sessions"
}

// SessionRow is a sessions row joined with the client display columns
type SessionRow struct {
	SessionModel
	ClientName  *string
	ClientEmail *string
	ClientPhone *string
}

// ToDomain converts the row to a domain Session. A snapshot column that
// cannot be decoded is returned empty so the next mutation re-freezes it.
func (r *SessionRow) ToDomain() (*session.Session, error) {
	s, err := r.SessionModel.ToDomain()
	if err != nil {
		return nil, err
	}
	if r.ClientName != nil {
		s.Client = &session.ClientDisplay{
			Name:  *r.ClientName,
			Email: deref(r.ClientEmail),
			Phone: deref(r.ClientPhone),
		}
	}
	return s, nil
}

// ToDomain converts the persistence model to a domain Session
func (m *SessionModel) ToDomain() (*session.Session, error) {
	s := &session.Session{
		ClientID:         m.ClientID,
		AppointmentID:    m.AppointmentID,
		ScheduledAt:      m.ScheduledAt,
		Category:         m.Category,
		PackageID:        m.PackageID,
		PackageRef:       m.PackageRef,
		Description:      m.Description,
		Notes:            m.Notes,
		Status:           session.Status(m.Status),
		BaseValue:        m.BaseValue,
		ExtraQuantity:    m.ExtraQuantity,
		ExtraUnitPrice:   m.ExtraUnitPrice,
		ExtraSubtotal:    m.ExtraSubtotal,
		Discount:         m.Discount,
		Addition:         m.Addition,
		ProductsSubtotal: m.ProductsSubtotal,
		PaidToDate:       m.PaidToDate,
		Total:            m.Total,
	}
	m.PopulateTenantAggregateRoot(&s.TenantAggregateRoot)

	if len(m.Snapshot) > 0 && string(m.Snapshot) != "null" {
		var snap pricing.RuleSnapshot
		if err := json.Unmarshal(m.Snapshot, &snap); err == nil {
			s.Snapshot = snap
		}
	}
	if len(m.Products) > 0 && string(m.Products) != "null" {
		if err := json.Unmarshal(m.Products, &s.Products); err != nil {
			return nil, fmt.Errorf("decode products of session %s: %w", m.ID, err)
		}
	}
	return s, nil
}

// FromDomain populates the persistence model from a domain Session
func (m *SessionModel) FromDomain(s *session.Session) error {
	m.FromDomainTenantAggregateRoot(s.TenantAggregateRoot)
	m.ClientID = s.ClientID
	m.AppointmentID = s.AppointmentID
	m.ScheduledAt = s.ScheduledAt
	m.Category = s.Category
	m.PackageID = s.PackageID
	m.PackageRef = s.PackageRef
	m.Description = s.Description
	m.Notes = s.Notes
	m.Status = string(s.Status)
	m.BaseValue = s.BaseValue
	m.ExtraQuantity = s.ExtraQuantity
	m.ExtraUnitPrice = s.ExtraUnitPrice
	m.ExtraSubtotal = s.ExtraSubtotal
	m.Discount = s.Discount
	m.Addition = s.Addition
	m.ProductsSubtotal = s.ProductsSubtotal
	m.PaidToDate = s.PaidToDate
	m.Total = s.Total

	snap, err := json.Marshal(s.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	m.Snapshot = datatypes.JSON(snap)

	products := s.Products
	if products == nil {
		products = []pricing.ProductLine{}
	}
	lines, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("encode products: %w", err)
	}
	m.Products = datatypes.JSON(lines)
	return nil
}

// SessionModelFromDomain creates a new persistence model from a domain Session
func SessionModelFromDomain(s *session.Session) (*SessionModel, error) {
	m := &SessionModel{}
	if err := m.FromDomain(s); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateColumns returns the column values to write for the given fields
func (m *SessionModel) UpdateColumns(fields []session.Field) map[string]interface{} {
	cols := make(map[string]interface{}, len(fields)+2)
	for _, f := range fields {
		switch f {
		case session.FieldPackage:
			cols["package_ref"] = m.PackageRef
			cols["package_id"] = m.PackageID
		case session.FieldCategory:
			cols["category"] = m.Category
		case session.FieldSnapshot:
			cols["snapshot"] = m.Snapshot
		case session.FieldBaseValue:
			cols["base_value"] = m.BaseValue
		case session.FieldExtraQuantity:
			cols["extra_quantity"] = m.ExtraQuantity
		case session.FieldExtraUnitPrice:
			cols["extra_unit_price"] = m.ExtraUnitPrice
		case session.FieldExtraSubtotal:
			cols["extra_subtotal"] = m.ExtraSubtotal
		case session.FieldProducts:
			cols["products"] = m.Products
		case session.FieldProductsSubtotal:
			cols["products_subtotal"] = m.ProductsSubtotal
		case session.FieldDiscount:
			cols["discount"] = m.Discount
		case session.FieldAddition:
			cols["addition"] = m.Addition
		case session.FieldStatus:
			cols["status"] = m.Status
		case session.FieldDescription:
			cols["description"] = m.Description
		case session.FieldNotes:
			cols["notes"] = m.Notes
		case session.FieldScheduledAt:
			cols["scheduled_at"] = m.ScheduledAt
		case session.FieldPaidToDate:
			cols["paid_to_date"] = m.PaidToDate
		case session.FieldTotal:
			cols["total"] = m.Total
		}
	}
	return cols
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
