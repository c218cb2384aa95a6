package event

import (
	"context"

	"github.com/lunari/studio-ledger/internal/domain/shared"
	"go.uber.org/zap"
)

// LoggingHandler writes every domain event it receives to the activity log
type LoggingHandler struct {
	logger *zap.Logger
	types  []string
}

// NewLoggingHandler creates a handler for the given event types, or all events when none are given
func NewLoggingHandler(logger *zap.Logger, eventTypes ...string) *LoggingHandler {
	return &LoggingHandler{logger: logger.Named("activity"), types: eventTypes}
}

// Handle logs the event
func (h *LoggingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.logger.Info(event.EventType(),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.String("studio_id", event.TenantID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	)
	return nil
}

// EventTypes returns the subscribed event types
func (h *LoggingHandler) EventTypes() []string {
	return h.types
}
