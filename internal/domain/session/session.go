package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/lunari/studio-ledger/internal/domain/shared"
	"github.com/lunari/studio-ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// AggregateTypeSession is the aggregate type name used in events
const AggregateTypeSession = "Session"

// Status represents the workflow status of a session
type Status string

const (
	StatusScheduled  Status = "agendado"
	StatusConfirmed  Status = "confirmado"
	StatusInProgress Status = "em_andamento"
	StatusCompleted  Status = "concluido"
	StatusDelivered  Status = "entregue"
	StatusCancelled  Status = "cancelado"
	StatusArchived   Status = "arquivado"
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted,
		StatusDelivered, StatusCancelled, StatusArchived:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// ClientDisplay holds the client fields joined in for display.
// It is never written to the sessions table.
type ClientDisplay struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Session is one billable photography session for one client
type Session struct {
	shared.TenantAggregateRoot
	ClientID      uuid.UUID
	Client        *ClientDisplay
	AppointmentID *uuid.UUID
	ScheduledAt   time.Time
	Category      string
	PackageID     *uuid.UUID
	PackageRef    string
	Description   string
	Notes         string
	Status        Status

	Snapshot         pricing.RuleSnapshot
	BaseValue        decimal.Decimal
	ExtraQuantity    int
	ExtraUnitPrice   decimal.Decimal
	ExtraSubtotal    decimal.Decimal
	Discount         decimal.Decimal
	Addition         decimal.Decimal
	Products         []pricing.ProductLine
	ProductsSubtotal decimal.Decimal
	PaidToDate       decimal.Decimal
	Total            decimal.Decimal
}

// Draft carries what is known about a session when it is created
type Draft struct {
	TenantID      uuid.UUID
	ClientID      uuid.UUID
	AppointmentID *uuid.UUID
	ScheduledAt   time.Time
	Category      string
	PackageRef    string
	Description   string
	Notes         string
	ExtraQuantity int
	Products      []pricing.ProductLine
	Discount      decimal.Decimal
	Addition      decimal.Decimal
}

// NewSession creates a session from a draft and its freshly frozen rules
func NewSession(draft Draft, snapshot pricing.RuleSnapshot) (*Session, error) {
	if draft.TenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Studio ID cannot be empty")
	}
	if draft.ClientID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CLIENT", "Client ID cannot be empty")
	}

	s := &Session{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(draft.TenantID),
		ClientID:            draft.ClientID,
		AppointmentID:       draft.AppointmentID,
		ScheduledAt:         draft.ScheduledAt,
		Category:            draft.Category,
		PackageRef:          draft.PackageRef,
		Description:         draft.Description,
		Notes:               draft.Notes,
		Status:              StatusScheduled,
		Discount:            draft.Discount,
		Addition:            draft.Addition,
		PaidToDate:          decimal.Zero,
	}
	s.ReplaceProducts(draft.Products)
	s.ApplySnapshot(snapshot)
	s.SetExtraQuantity(draft.ExtraQuantity)
	s.RecomputeTotal()

	s.AddDomainEvent(NewSessionCreatedEvent(s))
	return s, nil
}

// ApplySnapshot installs newly frozen rules. Package-origin product lines are
// replaced by the snapshot's products while manual lines are kept, and every
// derived price is recomputed at the current extra quantity.
func (s *Session) ApplySnapshot(snapshot pricing.RuleSnapshot) {
	s.Snapshot = snapshot.Clone()
	s.BaseValue = snapshot.BasePrice
	if snapshot.PackageName != "" {
		s.PackageRef = snapshot.PackageName
	}
	if snapshot.Source == pricing.SourceCatalog {
		id := snapshot.PackageID
		s.PackageID = &id
	} else {
		s.PackageID = nil
	}
	if snapshot.Category != "" {
		s.Category = snapshot.Category
	}
	s.Products = pricing.MergeLines(s.Products, pricing.PackageLines(snapshot))
	s.recomputeExtra()
	s.ProductsSubtotal = pricing.ProductsSubtotal(s.Products)
}

// SetExtraQuantity sets the number of extra units; negative quantities become zero
func (s *Session) SetExtraQuantity(quantity int) {
	if quantity < 0 {
		quantity = 0
	}
	s.ExtraQuantity = quantity
	s.recomputeExtra()
}

// ReplaceProducts replaces the product list. Lines without a known origin are
// treated as manual. A line without an id takes the id of an unclaimed
// current line billing the same item, or a new one, so resending the list
// unchanged is not a change.
func (s *Session) ReplaceProducts(lines []pricing.ProductLine) {
	claimed := make(map[uuid.UUID]bool, len(lines))
	for _, line := range lines {
		if line.ID != uuid.Nil {
			claimed[line.ID] = true
		}
	}

	out := make([]pricing.ProductLine, 0, len(lines))
	for _, line := range lines {
		if !line.Origin.IsValid() {
			line.Origin = pricing.OriginManual
		}
		if line.Quantity < 0 {
			line.Quantity = 0
		}
		if line.ID == uuid.Nil {
			line.ID = s.adoptLineID(line, claimed)
		}
		out = append(out, line)
	}
	s.Products = out
	s.ProductsSubtotal = pricing.ProductsSubtotal(out)
}

func (s *Session) adoptLineID(line pricing.ProductLine, claimed map[uuid.UUID]bool) uuid.UUID {
	for _, current := range s.Products {
		if !claimed[current.ID] && current.SameItem(line) {
			claimed[current.ID] = true
			return current.ID
		}
	}
	return uuid.New()
}

// ChangeStatus moves the session to another workflow status
func (s *Session) ChangeStatus(status Status) error {
	if !status.IsValid() {
		return shared.NewDomainError("INVALID_STATUS", "Unknown session status: "+string(status))
	}
	s.Status = status
	return nil
}

// Archive retires the session without deleting it
func (s *Session) Archive() error {
	if s.IsArchived() {
		return shared.NewDomainError("ALREADY_ARCHIVED", "Session is already archived")
	}
	s.Status = StatusArchived
	s.AddDomainEvent(NewSessionArchivedEvent(s))
	return nil
}

// IsArchived returns true if the session was archived
func (s *Session) IsArchived() bool {
	return s.Status == StatusArchived
}

// HasPaymentHistory reports whether any amount was ever recorded as paid
func (s *Session) HasPaymentHistory() bool {
	return !s.PaidToDate.IsZero()
}

// Components returns the priced parts of the session
func (s *Session) Components() pricing.Components {
	return pricing.Components{
		Base:             s.BaseValue,
		ExtraSubtotal:    s.ExtraSubtotal,
		ProductsSubtotal: s.ProductsSubtotal,
		Addition:         s.Addition,
		Discount:         s.Discount,
	}
}

// ExpectedTotal is the total the components add up to
func (s *Session) ExpectedTotal() decimal.Decimal {
	return pricing.Total(s.Components())
}

// RecomputeTotal sets Total from the components
func (s *Session) RecomputeTotal() {
	s.Total = s.ExpectedTotal()
}

// Diverged reports whether the stored total drifted from its components
func (s *Session) Diverged() bool {
	return valueobject.Diverges(s.Total, s.ExpectedTotal())
}

// Clone returns a deep copy of the session without pending events
func (s *Session) Clone() *Session {
	out := *s
	out.ClearDomainEvents()
	out.Snapshot = s.Snapshot.Clone()
	out.Products = append([]pricing.ProductLine(nil), s.Products...)
	if s.Client != nil {
		c := *s.Client
		out.Client = &c
	}
	if s.PackageID != nil {
		id := *s.PackageID
		out.PackageID = &id
	}
	if s.AppointmentID != nil {
		id := *s.AppointmentID
		out.AppointmentID = &id
	}
	return &out
}

func (s *Session) recomputeExtra() {
	extra := pricing.ExtraUnitPrice(s.ExtraQuantity, s.Snapshot)
	s.ExtraUnitPrice = extra.UnitPrice
	s.ExtraSubtotal = extra.Subtotal
}
