package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is the transaction log row kind
type Kind string

const (
	KindPayment    Kind = "payment"
	KindAdjustment Kind = "adjustment"
)

// EntryType classifies a derived payment entry
type EntryType string

const (
	TypePaid        EntryType = "pagamento"
	TypeInstallment EntryType = "parcelado"
	TypeScheduled   EntryType = "agendado"
)

// EntryStatus is the settlement state of a derived payment entry
type EntryStatus string

const (
	StatusPaid    EntryStatus = "pago"
	StatusPending EntryStatus = "pendente"
	StatusOverdue EntryStatus = "atrasado"
)

// Installment locates an entry inside an installment plan
type Installment struct {
	Index int `json:"index"`
	Count int `json:"count"`
}

// LogRow is a raw row of the append-only transaction log
type LogRow struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Kind      Kind
	Amount    decimal.Decimal
	Note      string
	PaidAt    *time.Time
	DueDate   *time.Time
	CreatedAt time.Time
}

// Entry is the structured view of one payment or scheduled payment of a session
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	ExternalID  string          `json:"external_id"`
	SessionID   uuid.UUID       `json:"session_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Installment *Installment    `json:"installment,omitempty"`
	Note        string          `json:"note"`
	Type        EntryType       `json:"type"`
	Status      EntryStatus     `json:"status"`
}

// Classify turns a log row into an entry. now decides whether a pending
// adjustment is already overdue.
func Classify(row LogRow, now time.Time) Entry {
	externalID, installment, note := ParseLegacyNote(row.Note)
	if externalID == "" {
		externalID = row.ID.String()
	}

	entry := Entry{
		ID:          row.ID,
		ExternalID:  externalID,
		SessionID:   row.SessionID,
		Amount:      row.Amount,
		PaidAt:      row.PaidAt,
		DueDate:     row.DueDate,
		Installment: installment,
		Note:        note,
	}

	switch {
	case row.Kind == KindPayment:
		entry.Type = TypePaid
	case installment != nil:
		entry.Type = TypeInstallment
	default:
		entry.Type = TypeScheduled
	}
	return entry.StatusAt(now)
}

// StatusAt returns the entry with its status derived at now. Realized
// payments are always paid; anything else turns overdue once its due date
// has passed.
func (e Entry) StatusAt(now time.Time) Entry {
	if e.Type == TypePaid {
		e.Status = StatusPaid
		return e
	}
	e.Status = StatusPending
	if e.DueDate != nil && e.DueDate.Before(now) {
		e.Status = StatusOverdue
	}
	return e
}

// Summary aggregates the entries of one session
type Summary struct {
	Paid    decimal.Decimal `json:"paid"`
	Pending decimal.Decimal `json:"pending"`
	Overdue decimal.Decimal `json:"overdue"`
}

// Summarize adds entry amounts up by status
func Summarize(entries []Entry) Summary {
	s := Summary{Paid: decimal.Zero, Pending: decimal.Zero, Overdue: decimal.Zero}
	for _, e := range entries {
		switch e.Status {
		case StatusPaid:
			s.Paid = s.Paid.Add(e.Amount)
		case StatusOverdue:
			s.Overdue = s.Overdue.Add(e.Amount)
		default:
			s.Pending = s.Pending.Add(e.Amount)
		}
	}
	return s
}
