package changefeed

import (
	"context"
	"encoding/json"
	"time"
)

// EventType is the kind of row change
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Table names carried on notifications
const (
	TableSessions     = "sessions"
	TableTransactions = "transactions"
)

// Notification is one committed row change. New holds the written columns
// for inserts and updates, Old the removed row for deletes.
type Notification struct {
	Table      string          `json:"table"`
	Type       EventType       `json:"type"`
	New        json.RawMessage `json:"new,omitempty"`
	Old        json.RawMessage `json:"old,omitempty"`
	CommitTime time.Time       `json:"commit_time"`
}

// NewNotification marshals a row payload into a notification
func NewNotification(table string, eventType EventType, row any) (Notification, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return Notification{}, err
	}
	n := Notification{Table: table, Type: eventType, CommitTime: time.Now()}
	if eventType == EventDelete {
		n.Old = data
	} else {
		n.New = data
	}
	return n, nil
}

// Handler consumes notifications
type Handler interface {
	HandleChange(ctx context.Context, n Notification) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, n Notification) error

// HandleChange calls f
func (f HandlerFunc) HandleChange(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Publisher emits notifications after a write committed
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Feed delivers notifications to subscribed handlers. Notifications are
// handed to handlers one at a time in delivery order.
type Feed interface {
	Publisher
	// Subscribe registers a handler for one table
	Subscribe(table string, handler Handler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
