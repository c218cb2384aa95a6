package session

import (
	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
)

// Field names a persisted session column group that a mutation can touch
type Field string

const (
	FieldPackage          Field = "package"
	FieldCategory         Field = "category"
	FieldSnapshot         Field = "snapshot"
	FieldBaseValue        Field = "base_value"
	FieldExtraQuantity    Field = "extra_quantity"
	FieldExtraUnitPrice   Field = "extra_unit_price"
	FieldExtraSubtotal    Field = "extra_subtotal"
	FieldProducts         Field = "products"
	FieldProductsSubtotal Field = "products_subtotal"
	FieldDiscount         Field = "discount"
	FieldAddition         Field = "addition"
	FieldStatus           Field = "status"
	FieldDescription      Field = "description"
	FieldNotes            Field = "notes"
	FieldScheduledAt      Field = "scheduled_at"
	FieldPaidToDate       Field = "paid_to_date"
	FieldTotal            Field = "total"
)

// componentFields are the fields the total is computed from
var componentFields = map[Field]bool{
	FieldBaseValue:        true,
	FieldExtraSubtotal:    true,
	FieldProducts:         true,
	FieldProductsSubtotal: true,
	FieldDiscount:         true,
	FieldAddition:         true,
}

// Mutation is a prepared change to one session: the proposed next state and
// the fields that differ from the current state.
type Mutation struct {
	SessionID uuid.UUID
	Intents   []Intent
	Current   *Session
	Next      *Session
	Changed   []Field
}

// IsNoop reports whether the mutation would not change anything
func (m *Mutation) IsNoop() bool {
	return len(m.Changed) == 0
}

// Touches reports whether field is part of the change set
func (m *Mutation) Touches(field Field) bool {
	for _, f := range m.Changed {
		if f == field {
			return true
		}
	}
	return false
}

// TouchesTotal reports whether any total component changed
func (m *Mutation) TouchesTotal() bool {
	for _, f := range m.Changed {
		if componentFields[f] {
			return true
		}
	}
	return false
}

// Refresh recomputes the change set after Next was modified
func (m *Mutation) Refresh() {
	m.Changed = Diff(m.Current, m.Next)
}

// Diff lists the fields that differ between two states of a session
func Diff(current, next *Session) []Field {
	var changed []Field
	add := func(f Field, differs bool) {
		if differs {
			changed = append(changed, f)
		}
	}

	add(FieldPackage, current.PackageRef != next.PackageRef || !sameID(current.PackageID, next.PackageID))
	add(FieldCategory, current.Category != next.Category)
	add(FieldSnapshot, !current.Snapshot.Equal(next.Snapshot))
	add(FieldBaseValue, !current.BaseValue.Equal(next.BaseValue))
	add(FieldExtraQuantity, current.ExtraQuantity != next.ExtraQuantity)
	add(FieldExtraUnitPrice, !current.ExtraUnitPrice.Equal(next.ExtraUnitPrice))
	add(FieldExtraSubtotal, !current.ExtraSubtotal.Equal(next.ExtraSubtotal))
	add(FieldProducts, !pricing.EqualLines(current.Products, next.Products))
	add(FieldProductsSubtotal, !current.ProductsSubtotal.Equal(next.ProductsSubtotal))
	add(FieldDiscount, !current.Discount.Equal(next.Discount))
	add(FieldAddition, !current.Addition.Equal(next.Addition))
	add(FieldStatus, current.Status != next.Status)
	add(FieldDescription, current.Description != next.Description)
	add(FieldNotes, current.Notes != next.Notes)
	add(FieldScheduledAt, !current.ScheduledAt.Equal(next.ScheduledAt))
	add(FieldPaidToDate, !current.PaidToDate.Equal(next.PaidToDate))
	add(FieldTotal, !current.Total.Equal(next.Total))

	return changed
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
