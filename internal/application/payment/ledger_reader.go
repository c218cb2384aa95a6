package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/payment"
)

// Ledger is the derived payment view of one session
type Ledger struct {
	SessionID uuid.UUID       `json:"session_id"`
	Entries   []payment.Entry `json:"entries"`
	Summary   payment.Summary `json:"summary"`
}

// At returns a copy of the ledger with every status and the summary derived
// at now. Cached ledgers go through it before they are served.
func (l *Ledger) At(now time.Time) *Ledger {
	entries := make([]payment.Entry, 0, len(l.Entries))
	for _, e := range l.Entries {
		entries = append(entries, e.StatusAt(now))
	}
	return &Ledger{
		SessionID: l.SessionID,
		Entries:   entries,
		Summary:   payment.Summarize(entries),
	}
}

// LedgerReader derives structured payment entries from the transaction log.
// It never writes.
type LedgerReader struct {
	log payment.TransactionLog
	now func() time.Time
}

// LedgerReaderOption is a functional option for configuring the reader
type LedgerReaderOption func(*LedgerReader)

// WithClock overrides the clock that decides whether a due date has passed
func WithClock(now func() time.Time) LedgerReaderOption {
	return func(r *LedgerReader) {
		r.now = now
	}
}

// NewLedgerReader creates a new LedgerReader
func NewLedgerReader(log payment.TransactionLog, opts ...LedgerReaderOption) *LedgerReader {
	r := &LedgerReader{log: log, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read returns the session's payments and scheduled payments, newest first
func (r *LedgerReader) Read(ctx context.Context, sessionID uuid.UUID) (*Ledger, error) {
	rows, err := r.log.FindBySession(ctx, sessionID, payment.KindPayment, payment.KindAdjustment)
	if err != nil {
		return nil, fmt.Errorf("read transaction log of session %s: %w", sessionID, err)
	}

	now := r.now()
	entries := make([]payment.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, payment.Classify(row, now))
	}
	return &Ledger{
		SessionID: sessionID,
		Entries:   entries,
		Summary:   payment.Summarize(entries),
	}, nil
}

// Current re-derives the statuses of a previously read ledger with the
// reader's clock
func (r *LedgerReader) Current(ledger *Ledger) *Ledger {
	return ledger.At(r.now())
}
