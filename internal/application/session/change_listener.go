package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/application/payment"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/lunari/studio-ledger/internal/infrastructure/changefeed"
	"github.com/lunari/studio-ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// SessionReader fetches a stored session with its joined client display
type SessionReader interface {
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
}

// ChangeListener keeps the session cache current from the change feed.
// Failures are logged and never returned, so one bad notification cannot
// stall the feed.
type ChangeListener struct {
	reader   SessionReader
	cache    *SessionCache
	payments *payment.LedgerReader
	metrics  *telemetry.LedgerMetrics
	logger   *zap.Logger
}

// NewChangeListener creates a new ChangeListener
func NewChangeListener(reader SessionReader, cache *SessionCache, payments *payment.LedgerReader, metrics *telemetry.LedgerMetrics, logger *zap.Logger) *ChangeListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeListener{
		reader:   reader,
		cache:    cache,
		payments: payments,
		metrics:  metrics,
		logger:   logger,
	}
}

// Register subscribes the listener to the sessions and transactions tables
func (l *ChangeListener) Register(feed changefeed.Feed) {
	feed.Subscribe(changefeed.TableSessions, changefeed.HandlerFunc(l.handleSession))
	feed.Subscribe(changefeed.TableTransactions, changefeed.HandlerFunc(l.handleTransaction))
}

// Load fills the cache from the store, e.g. at startup
func (l *ChangeListener) Load(ctx context.Context, sessions []session.Session) {
	for i := range sessions {
		s := &sessions[i]
		l.cache.Upsert(s)
		if s.HasPaymentHistory() {
			l.refreshPayments(ctx, s.ID)
		}
	}
}

func (l *ChangeListener) handleSession(ctx context.Context, n changefeed.Notification) error {
	var err error
	switch n.Type {
	case changefeed.EventInsert:
		err = l.onInsert(ctx, n)
	case changefeed.EventUpdate:
		err = l.onUpdate(ctx, n)
	case changefeed.EventDelete:
		err = l.onDelete(n)
	default:
		err = fmt.Errorf("unknown event type %q", n.Type)
	}
	if err != nil {
		l.fail(ctx, n, err)
	}
	return nil
}

func (l *ChangeListener) onInsert(ctx context.Context, n changefeed.Notification) error {
	var change session.RowChange
	if err := json.Unmarshal(n.New, &change); err != nil {
		return fmt.Errorf("decode insert payload: %w", err)
	}
	// the insert payload lacks the joined client fields
	full, err := l.reader.Get(ctx, change.ID)
	if err != nil {
		return fmt.Errorf("fetch inserted session %s: %w", change.ID, err)
	}
	l.cache.Upsert(full)
	return nil
}

func (l *ChangeListener) onUpdate(ctx context.Context, n changefeed.Notification) error {
	var change session.RowChange
	if err := json.Unmarshal(n.New, &change); err != nil {
		return fmt.Errorf("decode update payload: %w", err)
	}
	if change.IsKeyOnly() || !l.cache.Merge(change) {
		full, err := l.reader.Get(ctx, change.ID)
		if err != nil {
			return fmt.Errorf("fetch updated session %s: %w", change.ID, err)
		}
		l.cache.Upsert(full)
	}

	merged, ok := l.cache.Get(change.ID)
	if ok && (merged.HasPaymentHistory() || change.PaidToDate != nil) {
		l.refreshPayments(ctx, change.ID)
	}
	return nil
}

func (l *ChangeListener) onDelete(n changefeed.Notification) error {
	var change session.RowChange
	if err := json.Unmarshal(n.Old, &change); err != nil {
		return fmt.Errorf("decode delete payload: %w", err)
	}
	l.cache.Remove(change.ID)
	return nil
}

type transactionPayload struct {
	SessionID uuid.UUID `json:"session_id"`
}

func (l *ChangeListener) handleTransaction(ctx context.Context, n changefeed.Notification) error {
	raw := n.New
	if n.Type == changefeed.EventDelete {
		raw = n.Old
	}
	var row transactionPayload
	if err := json.Unmarshal(raw, &row); err != nil {
		l.fail(ctx, n, fmt.Errorf("decode transaction payload: %w", err))
		return nil
	}
	if _, ok := l.cache.Get(row.SessionID); ok {
		l.refreshPayments(ctx, row.SessionID)
	}
	return nil
}

func (l *ChangeListener) refreshPayments(ctx context.Context, sessionID uuid.UUID) {
	if l.payments == nil {
		return
	}
	ledger, err := l.payments.Read(ctx, sessionID)
	if err != nil {
		l.metrics.RecordFeedFailure(ctx, changefeed.TableTransactions)
		l.logger.Error("payment ledger refresh failed",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		return
	}
	l.cache.SetPayments(ledger)
}

func (l *ChangeListener) fail(ctx context.Context, n changefeed.Notification, err error) {
	l.metrics.RecordFeedFailure(ctx, n.Table)
	l.logger.Error("change feed merge failed",
		zap.String("table", n.Table),
		zap.String("type", string(n.Type)),
		zap.Error(err),
	)
}
