package session

import (
	"time"

	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/shopspring/decimal"
)

// Intent is one requested change to a session. The set of intents is closed:
// only the types declared in this file implement it.
type Intent interface {
	// Name identifies the intent in logs
	Name() string
	isIntent()
}

// SetPackage assigns a package by id or name, which re-freezes the rules
type SetPackage struct{ Ref string }

// SetExtraUnitQuantity sets how many extra units (photos) were sold
type SetExtraUnitQuantity struct{ Quantity int }

// SetManualProducts replaces the product list of the session
type SetManualProducts struct{ Lines []pricing.ProductLine }

// SetDiscount sets the discount subtracted from the total
type SetDiscount struct{ Amount decimal.Decimal }

// SetAddition sets the manual amount added to the total
type SetAddition struct{ Amount decimal.Decimal }

// SetStatus moves the session through its workflow
type SetStatus struct{ Status Status }

// SetDescription sets the free-text description
type SetDescription struct{ Text string }

// SetNotes sets the internal notes
type SetNotes struct{ Text string }

// SetSchedule moves the session to another date and time
type SetSchedule struct{ At time.Time }

// SetCategory overrides the session category
type SetCategory struct{ Category string }

// RecordPaidToDate stores the amount paid so far
type RecordPaidToDate struct{ Amount decimal.Decimal }

// SetSnapshot installs a rule snapshot directly. An empty snapshot is never applied.
type SetSnapshot struct{ Snapshot pricing.RuleSnapshot }

// SetTotal is a caller-supplied total. It is dropped whenever a component changes
// in the same mutation.
type SetTotal struct{ Amount decimal.Decimal }

func (SetPackage) Name() string           { return "set_package" }
func (SetExtraUnitQuantity) Name() string { return "set_extra_unit_quantity" }
func (SetManualProducts) Name() string    { return "set_manual_products" }
func (SetDiscount) Name() string          { return "set_discount" }
func (SetAddition) Name() string          { return "set_addition" }
func (SetStatus) Name() string            { return "set_status" }
func (SetDescription) Name() string       { return "set_description" }
func (SetNotes) Name() string             { return "set_notes" }
func (SetSchedule) Name() string          { return "set_schedule" }
func (SetCategory) Name() string          { return "set_category" }
func (RecordPaidToDate) Name() string     { return "record_paid_to_date" }
func (SetSnapshot) Name() string          { return "set_snapshot" }
func (SetTotal) Name() string             { return "set_total" }

func (SetPackage) isIntent()           {}
func (SetExtraUnitQuantity) isIntent() {}
func (SetManualProducts) isIntent()    {}
func (SetDiscount) isIntent()          {}
func (SetAddition) isIntent()          {}
func (SetStatus) isIntent()            {}
func (SetDescription) isIntent()       {}
func (SetNotes) isIntent()             {}
func (SetSchedule) isIntent()          {}
func (SetCategory) isIntent()          {}
func (RecordPaidToDate) isIntent()     {}
func (SetSnapshot) isIntent()          {}
func (SetTotal) isIntent()             {}

// HasComponentIntent reports whether any intent can move a total component
func HasComponentIntent(intents []Intent) bool {
	for _, in := range intents {
		switch in.(type) {
		case SetPackage, SetExtraUnitQuantity, SetManualProducts, SetDiscount, SetAddition, SetSnapshot:
			return true
		}
	}
	return false
}

// WithoutTotal drops caller-supplied totals from the intent list
func WithoutTotal(intents []Intent) []Intent {
	out := make([]Intent, 0, len(intents))
	for _, in := range intents {
		if _, ok := in.(SetTotal); ok {
			continue
		}
		out = append(out, in)
	}
	return out
}
