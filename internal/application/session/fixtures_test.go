package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/lunari/studio-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func d(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

var testClock = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

// memoryRepo mimics the GORM repository: updates write only the given
// fields and bump the version.
type memoryRepo struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*session.Session
	updates int
	deletes int

	updateErr error
	getErr    error
	// failGetAfterUpdate makes every read after the first write fail
	failGetAfterUpdate bool
	// afterUpdate runs on the stored row after each write
	afterUpdate func(*session.Session)
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[uuid.UUID]*session.Session)}
}

func (r *memoryRepo) FindByID(_ context.Context, id uuid.UUID) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	if r.failGetAfterUpdate && r.updates > 0 {
		return nil, errors.New("replica lag")
	}
	s, ok := r.rows[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *memoryRepo) FindAllForTenant(_ context.Context, tenantID uuid.UUID, _ shared.Filter) ([]session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []session.Session
	for _, s := range r.rows {
		if s.TenantID == tenantID {
			out = append(out, *s.Clone())
		}
	}
	return out, nil
}

func (r *memoryRepo) FindUnarchivedIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, s := range r.rows {
		if !s.IsArchived() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memoryRepo) Insert(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := s.Clone()
	stored.Client = &session.ClientDisplay{Name: "Carla Souza", Phone: "+55 11 99999-0000"}
	r.rows[s.ID] = stored
	return nil
}

func (r *memoryRepo) Update(_ context.Context, s *session.Session, fields []session.Field) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.rows[s.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if len(fields) == 0 {
		return nil
	}
	session.NarrowRowChange(s, fields).MergeInto(stored)
	stored.Version++
	s.Version = stored.Version
	r.updates++
	if r.afterUpdate != nil {
		r.afterUpdate(stored)
	}
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.rows, id)
	r.deletes++
	return nil
}

// put stores a row directly, bypassing the ledger
func (r *memoryRepo) put(s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.ID] = s.Clone()
}

func (r *memoryRepo) stored(id uuid.UUID) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id].Clone()
}

// stubCatalog resolves packages by lowercase name or id
type stubCatalog struct {
	packages   map[string]*pricing.PackageRules
	categories map[string]string
}

func newStubCatalog() *stubCatalog {
	gestante := &pricing.PackageRules{
		PackageID:      uuid.New(),
		Name:           "Gestante",
		Category:       "Gestante",
		BasePrice:      d(200),
		ExtraUnitPrice: d(15),
		Tiers:          []pricing.Tier{{Threshold: 0, UnitPrice: d(15)}},
		Products:       []pricing.IncludedProduct{{ProductID: uuid.New(), Name: "Album 20x20", Quantity: 1}},
	}
	newborn := &pricing.PackageRules{
		PackageID:      uuid.New(),
		Name:           "Newborn Completo",
		Category:       "Newborn",
		BasePrice:      d(500),
		ExtraUnitPrice: d(20),
		Tiers:          []pricing.Tier{{Threshold: 0, UnitPrice: d(20)}, {Threshold: 5, UnitPrice: d(18)}},
		Products: []pricing.IncludedProduct{
			{ProductID: uuid.New(), Name: "Album 30x30", Quantity: 1},
			{ProductID: uuid.New(), Name: "Pendrive", Quantity: 1, UnitPrice: d(10)},
		},
	}
	return &stubCatalog{
		packages: map[string]*pricing.PackageRules{
			"gestante":                  gestante,
			"newborn completo":          newborn,
			newborn.PackageID.String():  newborn,
			gestante.PackageID.String(): gestante,
		},
		categories: map[string]string{},
	}
}

func (c *stubCatalog) ResolvePackage(_ context.Context, _ uuid.UUID, ref string) (*pricing.PackageRules, error) {
	rules, ok := c.packages[strings.ToLower(ref)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *rules
	cp.Products = append([]pricing.IncludedProduct(nil), rules.Products...)
	cp.Tiers = append([]pricing.Tier(nil), rules.Tiers...)
	return &cp, nil
}

func (c *stubCatalog) ResolveCategory(_ context.Context, _ uuid.UUID, ref string) (string, error) {
	if name, ok := c.categories[ref]; ok {
		return name, nil
	}
	if _, err := uuid.Parse(ref); err == nil {
		return "", shared.ErrNotFound
	}
	return ref, nil
}

// recordingEvents collects published domain events
type recordingEvents struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (r *recordingEvents) Publish(_ context.Context, events ...shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

func (r *recordingEvents) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type ledgerFixture struct {
	repo    *memoryRepo
	catalog *stubCatalog
	store   *LedgerStore
	cache   *SessionCache
	events  *recordingEvents
	coord   *Coordinator
}

func newLedgerFixture(logger *zap.Logger) *ledgerFixture {
	if logger == nil {
		logger = zap.NewNop()
	}
	repo := newMemoryRepo()
	cat := newStubCatalog()
	freezer := pricing.NewFreezer(cat, pricing.WithFreezerClock(func() time.Time { return testClock }))
	store := NewLedgerStore(repo, cat, freezer, logger)
	cache := NewSessionCache()
	events := &recordingEvents{}
	coord := NewCoordinator(store, cache,
		WithEventPublisher(events),
		WithEpsilon(d(0.01)),
		WithCoordinatorLogger(logger),
	)
	return &ledgerFixture{repo: repo, catalog: cat, store: store, cache: cache, events: events, coord: coord}
}

// scenarioDraft prices to 200 + 3*15 + 2*10 + 0 - 25 = 240
func scenarioDraft() session.Draft {
	return session.Draft{
		TenantID:      uuid.New(),
		ClientID:      uuid.New(),
		ScheduledAt:   time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC),
		PackageRef:    "Gestante",
		ExtraQuantity: 3,
		Products: []pricing.ProductLine{
			{Name: "Print 15x21", Quantity: 2, UnitPrice: d(10), Origin: pricing.OriginManual},
		},
		Discount: d(25),
	}
}

func pricing240Snapshot() pricing.RuleSnapshot {
	return pricing.RuleSnapshot{
		PackageID:          uuid.New(),
		PackageName:        "Gestante",
		Category:           "Gestante",
		BasePrice:          d(200),
		FlatExtraUnitPrice: d(15),
		Tiers:              []pricing.Tier{{Threshold: 0, UnitPrice: d(15)}},
		Source:             pricing.SourceCatalog,
		FrozenAt:           testClock,
	}
}
