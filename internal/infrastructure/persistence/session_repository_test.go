package persistence

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/catalog"
	"github.com/lunari/studio-ledger/internal/domain/payment"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/lunari/studio-ledger/internal/domain/shared"
	"github.com/lunari/studio-ledger/internal/infrastructure/changefeed"
	"github.com/lunari/studio-ledger/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu            sync.Mutex
	notifications []changefeed.Notification
}

func (p *recordingPublisher) Publish(_ context.Context, n changefeed.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, n)
	return nil
}

func (p *recordingPublisher) last(t *testing.T) changefeed.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.notifications)
	return p.notifications[len(p.notifications)-1]
}

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// a single connection keeps every query on the same in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.ClientModel{},
		&models.SessionModel{},
		&models.TransactionModel{},
		&models.CategoryModel{},
		&models.PackageModel{},
	)
	require.NoError(t, err)
	return db
}

func seedClient(t *testing.T, db *gorm.DB, tenantID uuid.UUID, name string) uuid.UUID {
	client := &models.ClientModel{
		BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: time.Now(), UpdatedAt: time.Now()},
		TenantID:  tenantID,
		Name:      name,
		Email:     "ana@example.com",
		Phone:     "+55 11 99999-0000",
	}
	require.NoError(t, db.Create(client).Error)
	return client.ID
}

func newTestSession(t *testing.T, tenantID, clientID uuid.UUID, scheduledAt time.Time) *session.Session {
	snapshot := pricing.RuleSnapshot{
		PackageID:   uuid.New(),
		PackageName: "Newborn Premium",
		Category:    "Newborn",
		BasePrice:   decimal.NewFromInt(200),
		Tiers:       []pricing.Tier{{Threshold: 0, UnitPrice: decimal.NewFromInt(15)}},
		Source:      pricing.SourceCatalog,
		FrozenAt:    time.Now(),
	}
	s, err := session.NewSession(session.Draft{
		TenantID:      tenantID,
		ClientID:      clientID,
		ScheduledAt:   scheduledAt,
		ExtraQuantity: 3,
		Discount:      decimal.NewFromInt(25),
	}, snapshot)
	require.NoError(t, err)
	return s
}

func TestGormSessionRepository_InsertAndFind(t *testing.T) {
	db := setupLedgerTestDB(t)
	pub := &recordingPublisher{}
	repo := NewGormSessionRepository(db, WithChangePublisher(pub))
	ctx := context.Background()

	tenantID := uuid.New()
	clientID := seedClient(t, db, tenantID, "Ana Souza")
	s := newTestSession(t, tenantID, clientID, time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC))

	require.NoError(t, repo.Insert(ctx, s))

	found, err := repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, found.ID)
	assert.Equal(t, "Newborn Premium", found.PackageRef)
	assert.Equal(t, "Newborn", found.Category)
	assert.True(t, found.Total.Equal(decimal.NewFromInt(220)), "total %s", found.Total)
	assert.True(t, found.ExtraSubtotal.Equal(decimal.NewFromInt(45)))
	assert.Equal(t, pricing.SourceCatalog, found.Snapshot.Source)
	require.NotNil(t, found.Client)
	assert.Equal(t, "Ana Souza", found.Client.Name)
	assert.Equal(t, "ana@example.com", found.Client.Email)

	n := pub.last(t)
	assert.Equal(t, changefeed.TableSessions, n.Table)
	assert.Equal(t, changefeed.EventInsert, n.Type)
}

func TestGormSessionRepository_FindByID_NotFound(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormSessionRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormSessionRepository_Update(t *testing.T) {
	db := setupLedgerTestDB(t)
	pub := &recordingPublisher{}
	repo := NewGormSessionRepository(db, WithChangePublisher(pub))
	ctx := context.Background()

	tenantID := uuid.New()
	clientID := seedClient(t, db, tenantID, "Bruna Lima")
	s := newTestSession(t, tenantID, clientID, time.Now())
	require.NoError(t, repo.Insert(ctx, s))

	t.Run("writes only the named fields", func(t *testing.T) {
		s.Discount = decimal.NewFromInt(50)
		s.Notes = "not written"
		s.RecomputeTotal()

		err := repo.Update(ctx, s, []session.Field{session.FieldDiscount, session.FieldTotal})
		require.NoError(t, err)
		assert.Equal(t, 2, s.Version)

		found, err := repo.FindByID(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, found.Discount.Equal(decimal.NewFromInt(50)))
		assert.True(t, found.Total.Equal(decimal.NewFromInt(195)), "total %s", found.Total)
		assert.Empty(t, found.Notes)
		assert.Equal(t, 2, found.Version)

		n := pub.last(t)
		assert.Equal(t, changefeed.EventUpdate, n.Type)
		var change session.RowChange
		require.NoError(t, json.Unmarshal(n.New, &change))
		assert.Equal(t, s.ID, change.ID)
		require.NotNil(t, change.Discount)
		assert.Nil(t, change.Notes)
	})

	t.Run("a stale writer still wins", func(t *testing.T) {
		stale := s.Clone()
		stale.Version = 1
		stale.Notes = "last write"

		require.NoError(t, repo.Update(ctx, stale, []session.Field{session.FieldNotes}))

		found, err := repo.FindByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "last write", found.Notes)
		assert.Equal(t, 3, found.Version)
	})

	t.Run("no fields is a no-op", func(t *testing.T) {
		before := len(pub.notifications)
		require.NoError(t, repo.Update(ctx, s, nil))
		assert.Len(t, pub.notifications, before)
	})

	t.Run("missing row", func(t *testing.T) {
		ghost := s.Clone()
		ghost.ID = uuid.New()
		err := repo.Update(ctx, ghost, []session.Field{session.FieldNotes})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormSessionRepository_FindAllForTenant(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormSessionRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	ana := seedClient(t, db, tenantID, "Ana Souza")
	carla := seedClient(t, db, tenantID, "Carla Dias")
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := newTestSession(t, tenantID, ana, base)
	second := newTestSession(t, tenantID, carla, base.AddDate(0, 0, 7))
	archived := newTestSession(t, tenantID, ana, base.AddDate(0, 0, 14))
	require.NoError(t, archived.Archive())
	other := newTestSession(t, uuid.New(), uuid.New(), base)
	for _, s := range []*session.Session{first, second, archived, other} {
		require.NoError(t, repo.Insert(ctx, s))
	}

	t.Run("scoped to the studio, newest first", func(t *testing.T) {
		result, err := repo.FindAllForTenant(ctx, tenantID, shared.DefaultFilter())
		require.NoError(t, err)
		require.Len(t, result, 3)
		assert.Equal(t, archived.ID, result[0].ID)
		assert.Equal(t, first.ID, result[2].ID)
	})

	t.Run("search by client name", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.Search = "Carla"
		result, err := repo.FindAllForTenant(ctx, tenantID, filter)
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Equal(t, second.ID, result[0].ID)
	})

	t.Run("exclude archived", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.Filters["include_archived"] = false
		result, err := repo.FindAllForTenant(ctx, tenantID, filter)
		require.NoError(t, err)
		assert.Len(t, result, 2)
	})

	t.Run("pagination", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.PageSize = 2
		filter.Page = 2
		result, err := repo.FindAllForTenant(ctx, tenantID, filter)
		require.NoError(t, err)
		assert.Len(t, result, 1)
	})

	t.Run("unarchived ids span every studio", func(t *testing.T) {
		ids, err := repo.FindUnarchivedIDs(ctx)
		require.NoError(t, err)
		assert.Len(t, ids, 3)
		assert.NotContains(t, ids, archived.ID)
	})
}

func TestGormSessionRepository_Delete(t *testing.T) {
	db := setupLedgerTestDB(t)
	pub := &recordingPublisher{}
	repo := NewGormSessionRepository(db, WithChangePublisher(pub))
	txLog := NewGormTransactionLog(db, nil, nil)
	ctx := context.Background()

	tenantID := uuid.New()
	clientID := seedClient(t, db, tenantID, "Ana Souza")

	t.Run("purges the payment log when asked", func(t *testing.T) {
		s := newTestSession(t, tenantID, clientID, time.Now())
		require.NoError(t, repo.Insert(ctx, s))
		require.NoError(t, txLog.Append(ctx, payment.LogRow{SessionID: s.ID, Kind: payment.KindPayment, Amount: decimal.NewFromInt(100)}, tenantID))

		require.NoError(t, repo.Delete(ctx, s.ID, true))

		_, err := repo.FindByID(ctx, s.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		rows, err := txLog.FindBySession(ctx, s.ID)
		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.Equal(t, changefeed.EventDelete, pub.last(t).Type)
	})

	t.Run("keeps the payment log by default", func(t *testing.T) {
		s := newTestSession(t, tenantID, clientID, time.Now())
		require.NoError(t, repo.Insert(ctx, s))
		require.NoError(t, txLog.Append(ctx, payment.LogRow{SessionID: s.ID, Kind: payment.KindPayment, Amount: decimal.NewFromInt(100)}, tenantID))

		require.NoError(t, repo.Delete(ctx, s.ID, false))

		rows, err := txLog.FindBySession(ctx, s.ID)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("missing session", func(t *testing.T) {
		assert.ErrorIs(t, repo.Delete(ctx, uuid.New(), false), shared.ErrNotFound)
	})
}

func TestGormTransactionLog_FindBySession(t *testing.T) {
	db := setupLedgerTestDB(t)
	pub := &recordingPublisher{}
	txLog := NewGormTransactionLog(db, pub, nil)
	ctx := context.Background()

	tenantID := uuid.New()
	sessionID := uuid.New()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	rows := []payment.LogRow{
		{SessionID: sessionID, Kind: payment.KindPayment, Amount: decimal.NewFromInt(100), Note: "Sinal", CreatedAt: base},
		{SessionID: sessionID, Kind: payment.KindAdjustment, Amount: decimal.NewFromInt(-20), CreatedAt: base.Add(time.Hour)},
		{SessionID: sessionID, Kind: payment.KindPayment, Amount: decimal.NewFromInt(150), Note: "Parcela 1/2", CreatedAt: base.Add(2 * time.Hour)},
		{SessionID: uuid.New(), Kind: payment.KindPayment, Amount: decimal.NewFromInt(999), CreatedAt: base},
	}
	for _, row := range rows {
		require.NoError(t, txLog.Append(ctx, row, tenantID))
	}

	t.Run("newest first", func(t *testing.T) {
		found, err := txLog.FindBySession(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, found, 3)
		assert.Equal(t, "Parcela 1/2", found[0].Note)
		assert.Equal(t, "Sinal", found[2].Note)
	})

	t.Run("filtered by kind", func(t *testing.T) {
		found, err := txLog.FindBySession(ctx, sessionID, payment.KindPayment)
		require.NoError(t, err)
		assert.Len(t, found, 2)
	})

	t.Run("appends are announced", func(t *testing.T) {
		n := pub.last(t)
		assert.Equal(t, changefeed.TableTransactions, n.Table)
		assert.Len(t, pub.notifications, 4)
	})
}

func TestGormCatalogRepository_Resolve(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewGormCatalogRepository(db)
	ctx := context.Background()

	tenantID := uuid.New()
	category := &catalog.Category{TenantID: tenantID, Name: "Gestante"}
	require.NoError(t, repo.SaveCategory(ctx, category))

	pkg := &catalog.Package{
		TenantID:       tenantID,
		Name:           "Ensaio Gestante",
		CategoryID:     &category.ID,
		BasePrice:      decimal.NewFromInt(450),
		ExtraUnitPrice: decimal.NewFromInt(20),
		Tiers:          []pricing.Tier{{Threshold: 0, UnitPrice: decimal.NewFromInt(20)}, {Threshold: 10, UnitPrice: decimal.NewFromInt(15)}},
		Products:       []pricing.IncludedProduct{{ProductID: uuid.New(), Name: "Album", Quantity: 1, UnitPrice: decimal.NewFromInt(80)}},
		Active:         true,
	}
	require.NoError(t, repo.SavePackage(ctx, pkg))

	inactive := &catalog.Package{TenantID: tenantID, Name: "Antigo", BasePrice: decimal.NewFromInt(100), Active: false}
	require.NoError(t, repo.SavePackage(ctx, inactive))

	t.Run("by id", func(t *testing.T) {
		rules, err := repo.ResolvePackage(ctx, tenantID, pkg.ID.String())
		require.NoError(t, err)
		assert.Equal(t, pkg.ID, rules.PackageID)
		assert.Equal(t, "Gestante", rules.Category)
		assert.True(t, rules.BasePrice.Equal(decimal.NewFromInt(450)))
		assert.Len(t, rules.Tiers, 2)
		assert.Len(t, rules.Products, 1)
	})

	t.Run("by name, case-insensitive", func(t *testing.T) {
		rules, err := repo.ResolvePackage(ctx, tenantID, "ensaio gestante")
		require.NoError(t, err)
		assert.Equal(t, pkg.ID, rules.PackageID)
	})

	t.Run("inactive packages are not resolved", func(t *testing.T) {
		_, err := repo.ResolvePackage(ctx, tenantID, "Antigo")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("other studios are not resolved", func(t *testing.T) {
		_, err := repo.ResolvePackage(ctx, uuid.New(), pkg.ID.String())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("category by id and by name", func(t *testing.T) {
		name, err := repo.ResolveCategory(ctx, tenantID, category.ID.String())
		require.NoError(t, err)
		assert.Equal(t, "Gestante", name)

		name, err = repo.ResolveCategory(ctx, tenantID, "Newborn")
		require.NoError(t, err)
		assert.Equal(t, "Newborn", name)
	})
}
