package session

import (
	"context"
	"errors"
	"testing"

	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/lunari/studio-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func createScenario(t *testing.T, f *ledgerFixture) *session.Session {
	t.Helper()
	created, err := f.coord.Create(context.Background(), scenarioDraft())
	require.NoError(t, err)
	f.events.reset()
	return created
}

func TestCoordinator_Create(t *testing.T) {
	f := newLedgerFixture(nil)

	created, err := f.coord.Create(context.Background(), scenarioDraft())
	require.NoError(t, err)

	assert.True(t, created.Total.Equal(d(240)), "total %s", created.Total)
	assert.Equal(t, "Gestante", created.PackageRef)
	assert.Equal(t, pricing.SourceCatalog, created.Snapshot.Source)
	assert.Empty(t, created.GetDomainEvents())
	assert.Equal(t, []string{session.EventTypeSessionCreated}, f.events.types())

	cached, ok := f.cache.Get(created.ID)
	require.True(t, ok)
	assert.True(t, cached.Total.Equal(d(240)))
}

func TestCoordinator_Create_UnknownPackageFreezesFallback(t *testing.T) {
	f := newLedgerFixture(nil)
	draft := scenarioDraft()
	draft.PackageRef = "Pacote Antigo"
	draft.Category = "Familia"

	created, err := f.coord.Create(context.Background(), draft)
	require.NoError(t, err)

	assert.Equal(t, pricing.SourceFallback, created.Snapshot.Source)
	assert.Equal(t, "Pacote Antigo", created.PackageRef)
	assert.Equal(t, "Familia", created.Category)
	// 0 base, no tiers: only the manual product minus the discount
	assert.True(t, created.Total.Equal(d(-5)), "total %s", created.Total)
}

func TestCoordinator_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("recomputes the total from components", func(t *testing.T) {
		f := newLedgerFixture(nil)
		s := createScenario(t, f)

		res, err := f.coord.Update(ctx, s.ID, map[string]any{"discount": "R$ 50,00"}, UpdateOptions{})
		require.NoError(t, err)

		assert.True(t, res.Written)
		assert.False(t, res.Corrected)
		assert.True(t, res.Session.Total.Equal(d(215)), "total %s", res.Session.Total)
		assert.Equal(t, 2, res.Session.Version)
		assert.Contains(t, res.Changed, session.FieldDiscount)
		assert.Contains(t, res.Changed, session.FieldTotal)
		assert.Equal(t, []string{session.EventTypeSessionUpdated}, f.events.types())

		cached, ok := f.cache.Get(s.ID)
		require.True(t, ok)
		assert.True(t, cached.Total.Equal(d(215)))
		require.NotNil(t, cached.Client, "joined client comes from the read-back")
		assert.Equal(t, "Carla Souza", cached.Client.Name)
	})

	t.Run("identical values write nothing", func(t *testing.T) {
		f := newLedgerFixture(nil)
		s := createScenario(t, f)

		res, err := f.coord.Update(ctx, s.ID, map[string]any{
			"discount":       25,
			"extra_quantity": "3",
			"package":        "gestante",
		}, UpdateOptions{})
		require.NoError(t, err)

		assert.False(t, res.Written)
		assert.Zero(t, f.repo.updates)
		assert.Empty(t, f.events.types())

		// the form sends the product list back without line ids
		var products []any
		for _, line := range s.Products {
			products = append(products, map[string]any{
				"product_id": line.ProductID.String(),
				"name":       line.Name,
				"quantity":   float64(line.Quantity),
				"unit_price": line.UnitPrice.String(),
				"origin":     string(line.Origin),
			})
		}
		res, err = f.coord.Update(ctx, s.ID, map[string]any{"products": products}, UpdateOptions{})
		require.NoError(t, err)

		assert.False(t, res.Written, "changed %v", res.Changed)
		assert.Zero(t, f.repo.updates)
		assert.Empty(t, f.events.types())
	})

	t.Run("caller total is discarded when a component changes", func(t *testing.T) {
		f := newLedgerFixture(nil)
		s := createScenario(t, f)

		res, err := f.coord.Update(ctx, s.ID, map[string]any{"discount": 0, "total": 9999}, UpdateOptions{})
		require.NoError(t, err)

		assert.True(t, res.Session.Total.Equal(d(265)), "total %s", res.Session.Total)
		assert.Equal(t, 1, f.repo.updates)
	})

	t.Run("a bare caller total is corrected in one step", func(t *testing.T) {
		f := newLedgerFixture(nil)
		s := createScenario(t, f)

		res, err := f.coord.Update(ctx, s.ID, map[string]any{"total": "1.000,00"}, UpdateOptions{})
		require.NoError(t, err)

		assert.True(t, res.Corrected)
		assert.True(t, res.Session.Total.Equal(d(240)))
		assert.Equal(t, 2, f.repo.updates)
		assert.Equal(t, []string{
			session.EventTypeSessionUpdated,
			session.EventTypeSessionTotalCorrected,
		}, f.events.types())
	})

	t.Run("malformed amounts are coerced to zero", func(t *testing.T) {
		f := newLedgerFixture(nil)
		s := createScenario(t, f)

		res, err := f.coord.Update(ctx, s.ID, map[string]any{"desconto": "vinte"}, UpdateOptions{})
		require.NoError(t, err)
		assert.True(t, res.Session.Discount.IsZero())
		assert.True(t, res.Session.Total.Equal(d(265)))
	})

	t.Run("silent skips events but not the cache", func(t *testing.T) {
		f := newLedgerFixture(nil)
		s := createScenario(t, f)

		_, err := f.coord.Update(ctx, s.ID, map[string]any{"notes": "cliente pediu fundo branco"}, UpdateOptions{Silent: true})
		require.NoError(t, err)

		assert.Empty(t, f.events.types())
		cached, _ := f.cache.Get(s.ID)
		assert.Equal(t, "cliente pediu fundo branco", cached.Notes)
	})

	t.Run("clearing the snapshot is dropped", func(t *testing.T) {
		f := newLedgerFixture(nil)
		s := createScenario(t, f)

		res, err := f.coord.Update(ctx, s.ID, map[string]any{"snapshot": nil}, UpdateOptions{})
		require.NoError(t, err)

		assert.False(t, res.Written)
		assert.False(t, f.repo.stored(s.ID).Snapshot.IsEmpty())
	})

	t.Run("missing session", func(t *testing.T) {
		f := newLedgerFixture(nil)
		_, err := f.coord.Update(ctx, scenarioDraft().ClientID, map[string]any{"notes": "x"}, UpdateOptions{})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestCoordinator_PackageChange(t *testing.T) {
	f := newLedgerFixture(nil)
	s := createScenario(t, f)
	require.Len(t, s.Products, 2)

	res, err := f.coord.Update(context.Background(), s.ID, map[string]any{"package": "Newborn Completo"}, UpdateOptions{})
	require.NoError(t, err)
	got := res.Session

	require.Len(t, got.Products, 3, "two new package lines plus the manual one")
	assert.Equal(t, "Album 30x30", got.Products[0].Name)
	assert.Equal(t, "Pendrive", got.Products[1].Name)
	assert.Equal(t, pricing.OriginManual, got.Products[2].Origin)
	assert.Equal(t, "Print 15x21", got.Products[2].Name)

	assert.Equal(t, "Newborn Completo", got.PackageRef)
	assert.Equal(t, "Newborn", got.Category)
	assert.True(t, got.BaseValue.Equal(d(500)))
	// 3 extras under the new tiers stay at the 0-threshold price
	assert.True(t, got.ExtraUnitPrice.Equal(d(20)))
	assert.True(t, got.ExtraSubtotal.Equal(d(60)))
	// 500 + 60 + (10 + 20) + 0 - 25
	assert.True(t, got.Total.Equal(d(565)), "total %s", got.Total)
}

func TestCoordinator_SnapshotSelfRepair(t *testing.T) {
	f := newLedgerFixture(nil)
	s := createScenario(t, f)

	broken := f.repo.stored(s.ID)
	broken.Snapshot = pricing.RuleSnapshot{}
	f.repo.put(broken)

	res, err := f.coord.Update(context.Background(), s.ID, map[string]any{"notes": "repair me"}, UpdateOptions{})
	require.NoError(t, err)

	assert.False(t, res.Session.Snapshot.IsEmpty())
	assert.Equal(t, pricing.SourceCatalog, res.Session.Snapshot.Source)
	assert.Contains(t, res.Changed, session.FieldSnapshot)
	assert.True(t, res.Session.Total.Equal(d(240)))
}

func TestCoordinator_FailurePaths(t *testing.T) {
	ctx := context.Background()

	t.Run("failed persist surfaces and leaves the cache alone", func(t *testing.T) {
		f := newLedgerFixture(nil)
		s := createScenario(t, f)
		f.repo.updateErr = errors.New("connection refused")

		_, err := f.coord.Update(ctx, s.ID, map[string]any{"discount": 100}, UpdateOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")

		cached, _ := f.cache.Get(s.ID)
		assert.True(t, cached.Discount.Equal(d(25)))
		assert.Empty(t, f.events.types())
	})

	t.Run("failed read-back trusts the written values", func(t *testing.T) {
		f := newLedgerFixture(nil)
		s := createScenario(t, f)
		f.repo.failGetAfterUpdate = true

		res, err := f.coord.Update(ctx, s.ID, map[string]any{"addition": 10}, UpdateOptions{})
		require.NoError(t, err)
		assert.True(t, res.Session.Total.Equal(d(250)))
		assert.Equal(t, 2, res.Session.Version)
	})

	t.Run("recurring divergence is corrected once and reported", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		f := newLedgerFixture(zap.New(core))
		s := createScenario(t, f)
		f.repo.afterUpdate = func(stored *session.Session) {
			stored.Total = stored.Total.Add(d(5))
		}

		res, err := f.coord.Update(ctx, s.ID, map[string]any{"discount": 30}, UpdateOptions{})
		require.NoError(t, err)

		assert.True(t, res.Corrected)
		assert.Equal(t, 2, f.repo.updates, "one write plus exactly one correction")
		assert.Equal(t, 1, logs.FilterMessage("total still diverges after correction").Len())
	})
}

func TestCoordinator_Reconcile(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(nil)
	s := createScenario(t, f)

	drifted := f.repo.stored(s.ID)
	drifted.Total = d(999)
	f.repo.put(drifted)

	rec, err := f.coord.Reconcile(ctx, s.ID, TriggerManual)
	require.NoError(t, err)
	assert.True(t, rec.Corrected)
	assert.False(t, rec.StillDiverged)
	assert.True(t, rec.Session.Total.Equal(d(240)))
	assert.Equal(t, []string{session.EventTypeSessionTotalCorrected}, f.events.types())

	again, err := f.coord.Reconcile(ctx, s.ID, TriggerManual)
	require.NoError(t, err)
	assert.False(t, again.Corrected, "converges in one corrective step")
	assert.Equal(t, 1, f.repo.updates)

	t.Run("within epsilon is accepted", func(t *testing.T) {
		nearly := f.repo.stored(s.ID)
		nearly.Total = d(240.005)
		f.repo.put(nearly)

		rec, err := f.coord.Reconcile(ctx, s.ID, TriggerManual)
		require.NoError(t, err)
		assert.False(t, rec.Corrected)
	})
}

func TestCoordinator_Sweep(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(nil)
	createScenario(t, f)
	drifting := createScenario(t, f)
	archived := createScenario(t, f)

	broken := f.repo.stored(drifting.ID)
	broken.Total = d(1)
	f.repo.put(broken)

	_, err := f.coord.Archive(ctx, archived.ID)
	require.NoError(t, err)
	brokenArchived := f.repo.stored(archived.ID)
	brokenArchived.Total = d(1)
	f.repo.put(brokenArchived)

	report, err := f.coord.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Visited)
	assert.Equal(t, 1, report.Corrected)
	assert.Zero(t, report.Failed)
	assert.True(t, f.repo.stored(drifting.ID).Total.Equal(d(240)))

	t.Run("cancelled context stops the sweep", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		report, err := f.coord.Sweep(cancelled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, report.Visited)
	})
}

func TestCoordinator_ArchiveAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(nil)
	s := createScenario(t, f)

	res, err := f.coord.Archive(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, res.Session.IsArchived())
	assert.Equal(t, []string{session.EventTypeSessionUpdated, session.EventTypeSessionArchived}, f.events.types())

	_, err = f.coord.Archive(ctx, s.ID)
	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "ALREADY_ARCHIVED", de.Code)

	_, err = f.coord.Update(ctx, s.ID, map[string]any{"discount": 1}, UpdateOptions{})
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	f.events.reset()
	require.NoError(t, f.coord.Delete(ctx, s.ID, true))
	_, ok := f.cache.Get(s.ID)
	assert.False(t, ok)
	assert.Equal(t, []string{session.EventTypeSessionDeleted}, f.events.types())
	assert.ErrorIs(t, f.coord.Delete(ctx, s.ID, true), shared.ErrNotFound)
}
