package session

import (
	"context"
	"testing"

	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerStore_Patch(t *testing.T) {
	ctx := context.Background()
	f := newLedgerFixture(nil)

	created, err := f.store.Insert(ctx, scenarioDraft())
	require.NoError(t, err)
	assert.Equal(t, "Gestante", created.Snapshot.PackageName)
	assert.True(t, created.ExtraSubtotal.Equal(d(45)))

	t.Run("unchanged value writes nothing", func(t *testing.T) {
		m, err := f.store.Patch(ctx, created.ID, []session.Intent{session.SetExtraUnitQuantity{Quantity: 3}})
		require.NoError(t, err)
		assert.True(t, m.IsNoop())
		assert.Equal(t, 0, f.repo.updates)
	})

	t.Run("extra quantity reprices the extras", func(t *testing.T) {
		m, err := f.store.Patch(ctx, created.ID, []session.Intent{session.SetExtraUnitQuantity{Quantity: 5}})
		require.NoError(t, err)
		assert.True(t, m.Touches(session.FieldExtraQuantity))
		assert.True(t, m.Touches(session.FieldExtraSubtotal))
		assert.Equal(t, 1, f.repo.updates)

		stored := f.repo.stored(created.ID)
		assert.Equal(t, 5, stored.ExtraQuantity)
		assert.True(t, stored.ExtraSubtotal.Equal(d(75)), "extra subtotal %s", stored.ExtraSubtotal)
	})

	t.Run("clearing the snapshot is dropped", func(t *testing.T) {
		m, err := f.store.Patch(ctx, created.ID, []session.Intent{session.SetSnapshot{Snapshot: pricing.RuleSnapshot{}}})
		require.NoError(t, err)
		assert.True(t, m.IsNoop())
		assert.False(t, f.repo.stored(created.ID).Snapshot.IsEmpty())
	})

	t.Run("archived sessions are frozen", func(t *testing.T) {
		archived := f.repo.stored(created.ID)
		archived.Status = session.StatusArchived
		f.repo.put(archived)

		_, err := f.store.Patch(ctx, created.ID, []session.Intent{session.SetDiscount{Amount: d(10)}})
		assert.ErrorIs(t, err, ErrSessionArchived)
	})
}
