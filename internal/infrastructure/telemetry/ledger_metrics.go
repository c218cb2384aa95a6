package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics constructor gets no meter
var ErrMeterNil = errors.New("telemetry: meter is nil")

// Metric attribute keys
const (
	AttrOutcome = attribute.Key("outcome")
	AttrTable   = attribute.Key("table")
	AttrTrigger = attribute.Key("trigger")
)

// MutationOutcome labels what a coordinator pass did
type MutationOutcome string

const (
	OutcomeWritten MutationOutcome = "written"
	OutcomeNoop    MutationOutcome = "noop"
	OutcomeFailed  MutationOutcome = "failed"
)

// LedgerMetrics records the session ledger's counters. A nil *LedgerMetrics
// records nothing.
type LedgerMetrics struct {
	mutations           metric.Int64Counter
	corrections         metric.Int64Counter
	recurringDivergence metric.Int64Counter
	feedFailures        metric.Int64Counter
	persistDuration     metric.Float64Histogram
}

// NewLedgerMetrics creates the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		m   LedgerMetrics
		err error
	)
	if m.mutations, err = meter.Int64Counter("ledger_session_mutations_total",
		metric.WithDescription("Session mutations processed by the coordinator"),
		metric.WithUnit("{mutations}")); err != nil {
		return nil, fmt.Errorf("failed to create counter ledger_session_mutations_total: %w", err)
	}
	if m.corrections, err = meter.Int64Counter("ledger_total_corrections_total",
		metric.WithDescription("Corrective writes issued after a stored total diverged"),
		metric.WithUnit("{writes}")); err != nil {
		return nil, fmt.Errorf("failed to create counter ledger_total_corrections_total: %w", err)
	}
	if m.recurringDivergence, err = meter.Int64Counter("ledger_recurring_divergence_total",
		metric.WithDescription("Totals still divergent after the corrective write"),
		metric.WithUnit("{sessions}")); err != nil {
		return nil, fmt.Errorf("failed to create counter ledger_recurring_divergence_total: %w", err)
	}
	if m.feedFailures, err = meter.Int64Counter("ledger_feed_merge_failures_total",
		metric.WithDescription("Change notifications that could not be merged into the cache"),
		metric.WithUnit("{notifications}")); err != nil {
		return nil, fmt.Errorf("failed to create counter ledger_feed_merge_failures_total: %w", err)
	}
	if m.persistDuration, err = meter.Float64Histogram("ledger_persist_duration_seconds",
		metric.WithDescription("Duration of session writes"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5)); err != nil {
		return nil, fmt.Errorf("failed to create histogram ledger_persist_duration_seconds: %w", err)
	}
	return &m, nil
}

// RecordMutation counts one coordinator pass
func (m *LedgerMetrics) RecordMutation(ctx context.Context, outcome MutationOutcome) {
	if m == nil {
		return
	}
	m.mutations.Add(ctx, 1, metric.WithAttributes(AttrOutcome.String(string(outcome))))
}

// RecordCorrection counts one corrective total write
func (m *LedgerMetrics) RecordCorrection(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	m.corrections.Add(ctx, 1, metric.WithAttributes(AttrTrigger.String(trigger)))
}

// RecordRecurringDivergence counts a session whose total diverged again after correction
func (m *LedgerMetrics) RecordRecurringDivergence(ctx context.Context) {
	if m == nil {
		return
	}
	m.recurringDivergence.Add(ctx, 1)
}

// RecordFeedFailure counts a change notification that failed to merge
func (m *LedgerMetrics) RecordFeedFailure(ctx context.Context, table string) {
	if m == nil {
		return
	}
	m.feedFailures.Add(ctx, 1, metric.WithAttributes(AttrTable.String(table)))
}

// ObservePersist records how long a session write took
func (m *LedgerMetrics) ObservePersist(ctx context.Context, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.persistDuration.Record(ctx, elapsed.Seconds())
}
