package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/catalog"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/lunari/studio-ledger/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrSessionArchived is returned when mutating an archived session
var ErrSessionArchived = shared.NewDomainError("INVALID_STATE", "Archived sessions cannot be changed")

// LedgerStore reads and writes sessions. Patch is split into Prepare and
// Apply so a caller can adjust the prepared state before it is written.
type LedgerStore struct {
	repo    session.Repository
	catalog catalog.Resolver
	freezer *pricing.Freezer
	logger  *zap.Logger
}

// NewLedgerStore creates a new LedgerStore
func NewLedgerStore(repo session.Repository, resolver catalog.Resolver, freezer *pricing.Freezer, logger *zap.Logger) *LedgerStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerStore{
		repo:    repo,
		catalog: resolver,
		freezer: freezer,
		logger:  logger,
	}
}

// Get returns the stored session with its joined client display
func (s *LedgerStore) Get(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns stored sessions of a studio
func (s *LedgerStore) List(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]session.Session, error) {
	return s.repo.FindAllForTenant(ctx, tenantID, filter)
}

// UnarchivedIDs lists the sessions a reconciliation sweep visits
func (s *LedgerStore) UnarchivedIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.FindUnarchivedIDs(ctx)
}

// Insert creates a session from a draft. The package rules are frozen
// immediately; an unresolvable package freezes zero-priced rules.
func (s *LedgerStore) Insert(ctx context.Context, draft session.Draft) (*session.Session, error) {
	draft.Category = s.resolveCategory(ctx, draft.TenantID, draft.Category)
	snapshot := s.freezer.Freeze(ctx, draft.TenantID, draft.PackageRef, draft.Category)

	created, err := session.NewSession(draft, snapshot)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// Patch prepares and applies intents in one step
func (s *LedgerStore) Patch(ctx context.Context, id uuid.UUID, intents []session.Intent) (*session.Mutation, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := s.Prepare(ctx, current, intents)
	if err != nil {
		return nil, err
	}
	if _, err := s.Apply(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Prepare computes the next state of current under intents without writing.
// Dependent prices are recomputed; the total is left to the caller.
func (s *LedgerStore) Prepare(ctx context.Context, current *session.Session, intents []session.Intent) (*session.Mutation, error) {
	if current.IsArchived() && len(intents) > 0 {
		return nil, ErrSessionArchived
	}

	next := current.Clone()
	if next.Snapshot.IsEmpty() && !hasPackageIntent(intents) {
		s.logger.Warn("session has no frozen rules, re-freezing",
			zap.String("session_id", current.ID.String()),
			zap.String("package_ref", current.PackageRef),
		)
		next.ApplySnapshot(s.freezer.Freeze(ctx, next.TenantID, next.PackageRef, next.Category))
	}

	for _, intent := range intents {
		s.apply(ctx, next, intent)
	}

	m := &session.Mutation{
		SessionID: current.ID,
		Intents:   intents,
		Current:   current,
		Next:      next,
	}
	m.Refresh()
	return m, nil
}

// Apply writes the changed fields of a mutation. A mutation without changes
// is not written and the current state is returned.
func (s *LedgerStore) Apply(ctx context.Context, m *session.Mutation) (*session.Session, error) {
	if m.IsNoop() {
		return m.Current, nil
	}
	if err := s.repo.Update(ctx, m.Next, m.Changed); err != nil {
		return nil, fmt.Errorf("persist session %s: %w", m.SessionID, err)
	}
	return m.Next, nil
}

// Delete removes a session, with its payment trail when includePayments is set
func (s *LedgerStore) Delete(ctx context.Context, id uuid.UUID, includePayments bool) error {
	return s.repo.Delete(ctx, id, includePayments)
}

func (s *LedgerStore) apply(ctx context.Context, next *session.Session, intent session.Intent) {
	switch in := intent.(type) {
	case session.SetPackage:
		s.changePackage(ctx, next, in.Ref)
	case session.SetExtraUnitQuantity:
		next.SetExtraQuantity(in.Quantity)
	case session.SetManualProducts:
		next.ReplaceProducts(in.Lines)
	case session.SetDiscount:
		next.Discount = in.Amount
	case session.SetAddition:
		next.Addition = in.Amount
	case session.SetStatus:
		if err := next.ChangeStatus(in.Status); err != nil {
			s.logger.Warn("ignoring status change", zap.Error(err))
		}
	case session.SetDescription:
		next.Description = in.Text
	case session.SetNotes:
		next.Notes = in.Text
	case session.SetSchedule:
		next.ScheduledAt = in.At
	case session.SetCategory:
		next.Category = s.resolveCategory(ctx, next.TenantID, in.Category)
	case session.RecordPaidToDate:
		next.PaidToDate = in.Amount
	case session.SetSnapshot:
		if in.Snapshot.IsEmpty() {
			s.logger.Warn("refusing to clear frozen rules",
				zap.String("session_id", next.ID.String()),
			)
			return
		}
		next.ApplySnapshot(in.Snapshot)
	case session.SetTotal:
		next.Total = in.Amount
	}
}

// changePackage re-freezes the rules when the reference points elsewhere
func (s *LedgerStore) changePackage(ctx context.Context, next *session.Session, ref string) {
	if ref == "" || s.samePackage(next, ref) {
		return
	}
	snapshot := s.freezer.Freeze(ctx, next.TenantID, ref, next.Category)
	next.PackageRef = ref
	next.ApplySnapshot(snapshot)
	s.logger.Info("package changed, rules re-frozen",
		zap.String("session_id", next.ID.String()),
		zap.String("package_ref", next.PackageRef),
		zap.String("source", string(snapshot.Source)),
	)
}

func (s *LedgerStore) samePackage(current *session.Session, ref string) bool {
	if strings.EqualFold(current.PackageRef, ref) {
		return !current.Snapshot.IsEmpty()
	}
	if id, err := uuid.Parse(ref); err == nil && current.PackageID != nil {
		return *current.PackageID == id
	}
	return false
}

// resolveCategory turns a category id into its name. Names and unknown ids pass through.
func (s *LedgerStore) resolveCategory(ctx context.Context, tenantID uuid.UUID, ref string) string {
	if ref == "" || s.catalog == nil {
		return ref
	}
	name, err := s.catalog.ResolveCategory(ctx, tenantID, ref)
	if err != nil || name == "" {
		s.logger.Warn("category could not be resolved, keeping raw reference",
			zap.String("category", ref),
			zap.Error(err),
		)
		return ref
	}
	return name
}

func hasPackageIntent(intents []session.Intent) bool {
	for _, in := range intents {
		if _, ok := in.(session.SetPackage); ok {
			return true
		}
	}
	return false
}
