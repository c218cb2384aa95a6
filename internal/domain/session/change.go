package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/shopspring/decimal"
)

// RowChange is the sessions row as it travels on the change feed. Only the
// columns a write touched are set; absent columns stay nil. Joined client
// fields are never part of it. JSON names follow the table's column names.
type RowChange struct {
	ID               uuid.UUID              `json:"id"`
	TenantID         *uuid.UUID             `json:"tenant_id,omitempty"`
	ClientID         *uuid.UUID             `json:"client_id,omitempty"`
	AppointmentID    *uuid.UUID             `json:"appointment_id,omitempty"`
	ScheduledAt      *time.Time             `json:"scheduled_at,omitempty"`
	Category         *string                `json:"category,omitempty"`
	PackageID        *uuid.UUID             `json:"package_id,omitempty"`
	PackageRef       *string                `json:"package_ref,omitempty"`
	Description      *string                `json:"description,omitempty"`
	Notes            *string                `json:"notes,omitempty"`
	Status           *Status                `json:"status,omitempty"`
	Snapshot         *pricing.RuleSnapshot  `json:"snapshot,omitempty"`
	BaseValue        *decimal.Decimal       `json:"base_value,omitempty"`
	ExtraQuantity    *int                   `json:"extra_quantity,omitempty"`
	ExtraUnitPrice   *decimal.Decimal       `json:"extra_unit_price,omitempty"`
	ExtraSubtotal    *decimal.Decimal       `json:"extra_subtotal,omitempty"`
	Discount         *decimal.Decimal       `json:"discount,omitempty"`
	Addition         *decimal.Decimal       `json:"addition,omitempty"`
	Products         *[]pricing.ProductLine `json:"products,omitempty"`
	ProductsSubtotal *decimal.Decimal       `json:"products_subtotal,omitempty"`
	PaidToDate       *decimal.Decimal       `json:"paid_to_date,omitempty"`
	Total            *decimal.Decimal       `json:"total,omitempty"`
	Version          *int                   `json:"version,omitempty"`
	CreatedAt        *time.Time             `json:"created_at,omitempty"`
	UpdatedAt        *time.Time             `json:"updated_at,omitempty"`
}

// IsKeyOnly reports whether the change carries no column besides the id.
// Oversized rows travel that way and must be re-read.
func (c RowChange) IsKeyOnly() bool {
	return c == RowChange{ID: c.ID}
}

// FullRowChange carries every persisted column of s
func FullRowChange(s *Session) RowChange {
	c := NarrowRowChange(s, allFields)
	c.TenantID = ptr(s.TenantID)
	c.ClientID = ptr(s.ClientID)
	c.AppointmentID = s.AppointmentID
	c.CreatedAt = ptr(s.CreatedAt)
	return c
}

var allFields = []Field{
	FieldPackage, FieldCategory, FieldSnapshot, FieldBaseValue, FieldExtraQuantity,
	FieldExtraUnitPrice, FieldExtraSubtotal, FieldProducts, FieldProductsSubtotal,
	FieldDiscount, FieldAddition, FieldStatus, FieldDescription, FieldNotes,
	FieldScheduledAt, FieldPaidToDate, FieldTotal,
}

// NarrowRowChange carries only the given fields of s plus its id and version
func NarrowRowChange(s *Session, fields []Field) RowChange {
	c := RowChange{
		ID:        s.ID,
		Version:   ptr(s.Version),
		UpdatedAt: ptr(s.UpdatedAt),
	}
	for _, f := range fields {
		switch f {
		case FieldPackage:
			c.PackageRef = ptr(s.PackageRef)
			c.PackageID = s.PackageID
		case FieldCategory:
			c.Category = ptr(s.Category)
		case FieldSnapshot:
			snap := s.Snapshot.Clone()
			c.Snapshot = &snap
		case FieldBaseValue:
			c.BaseValue = ptr(s.BaseValue)
		case FieldExtraQuantity:
			c.ExtraQuantity = ptr(s.ExtraQuantity)
		case FieldExtraUnitPrice:
			c.ExtraUnitPrice = ptr(s.ExtraUnitPrice)
		case FieldExtraSubtotal:
			c.ExtraSubtotal = ptr(s.ExtraSubtotal)
		case FieldProducts:
			lines := append([]pricing.ProductLine(nil), s.Products...)
			c.Products = &lines
		case FieldProductsSubtotal:
			c.ProductsSubtotal = ptr(s.ProductsSubtotal)
		case FieldDiscount:
			c.Discount = ptr(s.Discount)
		case FieldAddition:
			c.Addition = ptr(s.Addition)
		case FieldStatus:
			c.Status = ptr(s.Status)
		case FieldDescription:
			c.Description = ptr(s.Description)
		case FieldNotes:
			c.Notes = ptr(s.Notes)
		case FieldScheduledAt:
			c.ScheduledAt = ptr(s.ScheduledAt)
		case FieldPaidToDate:
			c.PaidToDate = ptr(s.PaidToDate)
		case FieldTotal:
			c.Total = ptr(s.Total)
		}
	}
	return c
}

// MergeInto copies every column present in the change onto s. Fields the
// change does not carry, including the joined client display, are kept.
func (c RowChange) MergeInto(s *Session) {
	if c.TenantID != nil {
		s.TenantID = *c.TenantID
	}
	if c.ClientID != nil {
		s.ClientID = *c.ClientID
	}
	if c.AppointmentID != nil {
		s.AppointmentID = c.AppointmentID
	}
	if c.ScheduledAt != nil {
		s.ScheduledAt = *c.ScheduledAt
	}
	if c.Category != nil {
		s.Category = *c.Category
	}
	if c.PackageRef != nil {
		s.PackageRef = *c.PackageRef
		s.PackageID = c.PackageID
	}
	if c.Description != nil {
		s.Description = *c.Description
	}
	if c.Notes != nil {
		s.Notes = *c.Notes
	}
	if c.Status != nil {
		s.Status = *c.Status
	}
	if c.Snapshot != nil {
		s.Snapshot = c.Snapshot.Clone()
	}
	if c.BaseValue != nil {
		s.BaseValue = *c.BaseValue
	}
	if c.ExtraQuantity != nil {
		s.ExtraQuantity = *c.ExtraQuantity
	}
	if c.ExtraUnitPrice != nil {
		s.ExtraUnitPrice = *c.ExtraUnitPrice
	}
	if c.ExtraSubtotal != nil {
		s.ExtraSubtotal = *c.ExtraSubtotal
	}
	if c.Discount != nil {
		s.Discount = *c.Discount
	}
	if c.Addition != nil {
		s.Addition = *c.Addition
	}
	if c.Products != nil {
		s.Products = append([]pricing.ProductLine(nil), (*c.Products)...)
	}
	if c.ProductsSubtotal != nil {
		s.ProductsSubtotal = *c.ProductsSubtotal
	}
	if c.PaidToDate != nil {
		s.PaidToDate = *c.PaidToDate
	}
	if c.Total != nil {
		s.Total = *c.Total
	}
	if c.Version != nil {
		s.Version = *c.Version
	}
	if c.CreatedAt != nil {
		s.CreatedAt = *c.CreatedAt
	}
	if c.UpdatedAt != nil {
		s.UpdatedAt = *c.UpdatedAt
	}
}

// IsStale reports whether the change is older than what s already holds
func (c RowChange) IsStale(s *Session) bool {
	return c.Version != nil && *c.Version < s.Version
}

func ptr[T any](v T) *T {
	return &v
}
