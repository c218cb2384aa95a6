package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/lunari/studio-ledger/internal/domain/shared"
	"github.com/lunari/studio-ledger/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const coordinatorService = "session.Coordinator"

// Reconcile triggers, used as metric and log labels
const (
	TriggerMutation = "mutation"
	TriggerManual   = "manual"
	TriggerSweep    = "sweep"
)

// UpdateOptions tune a single mutation
type UpdateOptions struct {
	// Silent suppresses the domain events of the mutation. The change feed still fires.
	Silent bool
}

// Result describes one coordinator pass
type Result struct {
	Session *session.Session
	Changed []session.Field
	// Written is false when the mutation changed nothing
	Written   bool
	Corrected bool
}

// ReconcileResult describes a reconcile pass
type ReconcileResult struct {
	Session   *session.Session
	Expected  decimal.Decimal
	Corrected bool
	// StillDiverged is set when the corrective write did not converge
	StillDiverged bool
}

// SweepReport summarizes a reconciliation sweep
type SweepReport struct {
	Visited   int
	Corrected int
	Diverged  int
	Failed    int
	Duration  time.Duration
}

// Coordinator runs every session mutation through one pass of
// normalize, re-freeze, recompute, persist, read back and reconcile.
type Coordinator struct {
	store      *LedgerStore
	cache      *SessionCache
	normalizer *Normalizer
	events     shared.EventPublisher
	metrics    *telemetry.LedgerMetrics
	epsilon    decimal.Decimal
	logger     *zap.Logger
}

// CoordinatorOption is a functional option for configuring the coordinator
type CoordinatorOption func(*Coordinator)

// WithEventPublisher sets where domain events go
func WithEventPublisher(events shared.EventPublisher) CoordinatorOption {
	return func(c *Coordinator) {
		c.events = events
	}
}

// WithMetrics sets the ledger metrics
func WithMetrics(metrics *telemetry.LedgerMetrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

// WithEpsilon sets the largest total difference that is not a divergence
func WithEpsilon(epsilon decimal.Decimal) CoordinatorOption {
	return func(c *Coordinator) {
		if epsilon.IsPositive() {
			c.epsilon = epsilon
		}
	}
}

// WithCoordinatorLogger sets the logger
func WithCoordinatorLogger(logger *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a new Coordinator
func NewCoordinator(store *LedgerStore, cache *SessionCache, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:   store,
		cache:   cache,
		epsilon: decimal.NewFromFloat(0.01),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.normalizer = NewNormalizer(c.logger)
	return c
}

// Create inserts a new session and adds it to the cache
func (c *Coordinator) Create(ctx context.Context, draft session.Draft) (*session.Session, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, coordinatorService, "Create",
		telemetry.SpanAttrTenantID, draft.TenantID.String(),
	)
	defer span.End()

	created, err := c.store.Insert(ctx, draft)
	if err != nil {
		telemetry.RecordError(span, err)
		c.metrics.RecordMutation(ctx, telemetry.OutcomeFailed)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrSessionID, created.ID.String())

	c.cache.Upsert(created)
	c.publish(ctx, created.GetDomainEvents()...)
	created.ClearDomainEvents()
	c.metrics.RecordMutation(ctx, telemetry.OutcomeWritten)
	return created, nil
}

// Update normalizes raw updates and applies them
func (c *Coordinator) Update(ctx context.Context, id uuid.UUID, updates map[string]any, opts UpdateOptions) (*Result, error) {
	return c.Apply(ctx, id, c.normalizer.Normalize(updates), opts)
}

// Apply runs one mutation pass. A failed persist is returned and leaves the
// cache untouched; a failed read-back trusts the written values.
func (c *Coordinator) Apply(ctx context.Context, id uuid.UUID, intents []session.Intent, opts UpdateOptions) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, coordinatorService, "Apply",
		telemetry.SpanAttrSessionID, id.String(),
		telemetry.SpanAttrIntents, intentNames(intents),
		telemetry.SpanAttrSilent, opts.Silent,
	)
	defer span.End()

	current, err := c.store.Get(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if session.HasComponentIntent(intents) {
		// components are the source of truth for the total
		intents = session.WithoutTotal(intents)
	}

	m, err := c.store.Prepare(ctx, current, intents)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if m.TouchesTotal() {
		m.Next.RecomputeTotal()
		m.Refresh()
	}
	if m.IsNoop() {
		c.metrics.RecordMutation(ctx, telemetry.OutcomeNoop)
		return &Result{Session: current}, nil
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrChanged, fieldNames(m.Changed))

	start := time.Now()
	written, err := c.store.Apply(ctx, m)
	c.metrics.ObservePersist(ctx, time.Since(start))
	if err != nil {
		telemetry.RecordError(span, err)
		c.metrics.RecordMutation(ctx, telemetry.OutcomeFailed)
		c.logger.Error("session write failed",
			zap.String("session_id", id.String()),
			zap.Strings("changed", fieldNames(m.Changed)),
			zap.Error(err),
		)
		return nil, err
	}

	stored := c.readBack(ctx, written)
	rec, err := c.reconcile(ctx, stored, TriggerMutation)
	if err != nil {
		c.logger.Warn("reconcile after write failed", zap.String("session_id", id.String()), zap.Error(err))
		rec = &ReconcileResult{Session: stored}
	}

	c.cacheMerge(rec.Session)
	if !opts.Silent {
		events := []shared.DomainEvent{session.NewSessionUpdatedEvent(rec.Session, m.Changed)}
		if !current.IsArchived() && rec.Session.IsArchived() {
			events = append(events, session.NewSessionArchivedEvent(rec.Session))
		}
		if rec.Corrected {
			events = append(events, session.NewSessionTotalCorrectedEvent(rec.Session, stored.Total, rec.Expected))
		}
		c.publish(ctx, events...)
	}
	c.metrics.RecordMutation(ctx, telemetry.OutcomeWritten)

	return &Result{
		Session:   rec.Session,
		Changed:   m.Changed,
		Written:   true,
		Corrected: rec.Corrected,
	}, nil
}

// Archive retires a session
func (c *Coordinator) Archive(ctx context.Context, id uuid.UUID) (*Result, error) {
	current, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsArchived() {
		return nil, shared.NewDomainError("ALREADY_ARCHIVED", "Session is already archived")
	}
	return c.Apply(ctx, id, []session.Intent{session.SetStatus{Status: session.StatusArchived}}, UpdateOptions{})
}

// Delete removes a session and, when includePayments is set, its payment trail
func (c *Coordinator) Delete(ctx context.Context, id uuid.UUID, includePayments bool) error {
	ctx, span := telemetry.StartServiceSpan(ctx, coordinatorService, "Delete",
		telemetry.SpanAttrSessionID, id.String(),
	)
	defer span.End()

	current, err := c.store.Get(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if err := c.store.Delete(ctx, id, includePayments); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	c.cache.Remove(id)
	c.publish(ctx, session.NewSessionDeletedEvent(current, includePayments))
	return nil
}

// Reconcile checks one stored session and corrects a drifted total
func (c *Coordinator) Reconcile(ctx context.Context, id uuid.UUID, trigger string) (*ReconcileResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, coordinatorService, "Reconcile",
		telemetry.SpanAttrSessionID, id.String(),
		"trigger", trigger,
	)
	defer span.End()

	stored, err := c.store.Get(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	rec, err := c.reconcile(ctx, stored, trigger)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if rec.Corrected {
		c.cacheMerge(rec.Session)
		c.publish(ctx, session.NewSessionTotalCorrectedEvent(rec.Session, stored.Total, rec.Expected))
	}
	return rec, nil
}

// Sweep reconciles every unarchived session. It stops early when ctx ends.
func (c *Coordinator) Sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	var report SweepReport

	ids, err := c.store.UnarchivedIDs(ctx)
	if err != nil {
		return report, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		report.Visited++
		rec, err := c.Reconcile(ctx, id, TriggerSweep)
		switch {
		case err != nil:
			report.Failed++
			c.logger.Error("sweep could not reconcile session", zap.String("session_id", id.String()), zap.Error(err))
		case rec.StillDiverged:
			report.Corrected++
			report.Diverged++
		case rec.Corrected:
			report.Corrected++
		}
	}
	report.Duration = time.Since(start)
	return report, nil
}

// RunSweep runs Sweep as a scheduled job and logs its report
func (c *Coordinator) RunSweep(ctx context.Context) error {
	report, err := c.Sweep(ctx)
	c.logger.Info("reconciliation sweep finished",
		zap.Int("visited", report.Visited),
		zap.Int("corrected", report.Corrected),
		zap.Int("still_diverged", report.Diverged),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return err
}

// reconcile corrects a stored total that drifted from its components. It
// writes at most once; divergence that survives the correction is logged.
func (c *Coordinator) reconcile(ctx context.Context, stored *session.Session, trigger string) (*ReconcileResult, error) {
	expected := stored.ExpectedTotal()
	result := &ReconcileResult{Session: stored, Expected: expected}
	if !c.diverges(stored.Total, expected) {
		return result, nil
	}

	c.logger.Warn("stored total diverges from its components, correcting",
		zap.String("session_id", stored.ID.String()),
		zap.String("stored", stored.Total.String()),
		zap.String("expected", expected.String()),
		zap.String("trigger", trigger),
	)
	c.metrics.RecordCorrection(ctx, trigger)

	next := stored.Clone()
	next.Total = expected
	m := &session.Mutation{
		SessionID: stored.ID,
		Current:   stored,
		Next:      next,
		Changed:   []session.Field{session.FieldTotal},
	}
	written, err := c.store.Apply(ctx, m)
	if err != nil {
		return nil, err
	}

	after := c.readBack(ctx, written)
	result.Session = after
	result.Corrected = true
	if c.diverges(after.Total, after.ExpectedTotal()) {
		result.StillDiverged = true
		c.metrics.RecordRecurringDivergence(ctx)
		c.logger.Error("total still diverges after correction",
			zap.String("session_id", after.ID.String()),
			zap.String("stored", after.Total.String()),
			zap.String("expected", after.ExpectedTotal().String()),
			zap.Int("version", after.Version),
		)
	}
	return result, nil
}

func (c *Coordinator) readBack(ctx context.Context, written *session.Session) *session.Session {
	stored, err := c.store.Get(ctx, written.ID)
	if err != nil {
		c.logger.Warn("read-back failed, trusting written values",
			zap.String("session_id", written.ID.String()),
			zap.Error(err),
		)
		return written
	}
	return stored
}

func (c *Coordinator) cacheMerge(s *session.Session) {
	if !c.cache.Merge(session.FullRowChange(s)) {
		c.cache.Upsert(s)
	}
}

func (c *Coordinator) publish(ctx context.Context, events ...shared.DomainEvent) {
	if c.events == nil || len(events) == 0 {
		return
	}
	if err := c.events.Publish(ctx, events...); err != nil {
		c.logger.Warn("publishing session events failed", zap.Error(err))
	}
}

func (c *Coordinator) diverges(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().GreaterThan(c.epsilon)
}

func intentNames(intents []session.Intent) []string {
	names := make([]string, 0, len(intents))
	for _, in := range intents {
		names = append(names, in.Name())
	}
	return names
}

func fieldNames(fields []session.Field) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, string(f))
	}
	return names
}
