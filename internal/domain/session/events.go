package session

import (
	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type constants
const (
	EventTypeSessionCreated        = "SessionCreated"
	EventTypeSessionUpdated        = "SessionUpdated"
	EventTypeSessionTotalCorrected = "SessionTotalCorrected"
	EventTypeSessionArchived       = "SessionArchived"
	EventTypeSessionDeleted        = "SessionDeleted"
)

// SessionCreatedEvent is raised when a session is created
type SessionCreatedEvent struct {
	shared.BaseDomainEvent
	SessionID  uuid.UUID       `json:"session_id"`
	ClientID   uuid.UUID       `json:"client_id"`
	PackageRef string          `json:"package_ref"`
	Total      decimal.Decimal `json:"total"`
}

// NewSessionCreatedEvent creates a new SessionCreatedEvent
func NewSessionCreatedEvent(s *Session) *SessionCreatedEvent {
	return &SessionCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSessionCreated, AggregateTypeSession, s.ID, s.TenantID),
		SessionID:       s.ID,
		ClientID:        s.ClientID,
		PackageRef:      s.PackageRef,
		Total:           s.Total,
	}
}

// SessionUpdatedEvent is raised after a mutation is committed
type SessionUpdatedEvent struct {
	shared.BaseDomainEvent
	SessionID uuid.UUID       `json:"session_id"`
	Changed   []Field         `json:"changed"`
	Total     decimal.Decimal `json:"total"`
	Version   int             `json:"version"`
}

// NewSessionUpdatedEvent creates a new SessionUpdatedEvent
func NewSessionUpdatedEvent(s *Session, changed []Field) *SessionUpdatedEvent {
	return &SessionUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSessionUpdated, AggregateTypeSession, s.ID, s.TenantID),
		SessionID:       s.ID,
		Changed:         append([]Field(nil), changed...),
		Total:           s.Total,
		Version:         s.Version,
	}
}

// SessionTotalCorrectedEvent is raised when reconciliation rewrote a drifted total
type SessionTotalCorrectedEvent struct {
	shared.BaseDomainEvent
	SessionID uuid.UUID       `json:"session_id"`
	Stored    decimal.Decimal `json:"stored"`
	Expected  decimal.Decimal `json:"expected"`
}

// NewSessionTotalCorrectedEvent creates a new SessionTotalCorrectedEvent
func NewSessionTotalCorrectedEvent(s *Session, stored, expected decimal.Decimal) *SessionTotalCorrectedEvent {
	return &SessionTotalCorrectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSessionTotalCorrected, AggregateTypeSession, s.ID, s.TenantID),
		SessionID:       s.ID,
		Stored:          stored,
		Expected:        expected,
	}
}

// SessionArchivedEvent is raised when a session is archived
type SessionArchivedEvent struct {
	shared.BaseDomainEvent
	SessionID uuid.UUID `json:"session_id"`
}

// NewSessionArchivedEvent creates a new SessionArchivedEvent
func NewSessionArchivedEvent(s *Session) *SessionArchivedEvent {
	return &SessionArchivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSessionArchived, AggregateTypeSession, s.ID, s.TenantID),
		SessionID:       s.ID,
	}
}

// SessionDeletedEvent is raised when a session is hard-deleted
type SessionDeletedEvent struct {
	shared.BaseDomainEvent
	SessionID      uuid.UUID `json:"session_id"`
	PaymentsPurged bool      `json:"payments_purged"`
}

// NewSessionDeletedEvent creates a new SessionDeletedEvent
func NewSessionDeletedEvent(s *Session, paymentsPurged bool) *SessionDeletedEvent {
	return &SessionDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSessionDeleted, AggregateTypeSession, s.ID, s.TenantID),
		SessionID:       s.ID,
		PaymentsPurged:  paymentsPurged,
	}
}
