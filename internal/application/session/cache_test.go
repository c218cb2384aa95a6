package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/application/payment"
	domainpayment "github.com/lunari/studio-ledger/internal/domain/payment"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cachedSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.NewSession(scenarioDraft(), pricing240Snapshot())
	require.NoError(t, err)
	s.Client = &session.ClientDisplay{Name: "Ana Lima"}
	return s
}

func TestSessionCache_MergePreservesJoinedClient(t *testing.T) {
	c := NewSessionCache()
	s := cachedSession(t)
	c.Upsert(s)

	narrow := s.Clone()
	narrow.Discount = d(40)
	narrow.Version = 2
	ok := c.Merge(session.NarrowRowChange(narrow, []session.Field{session.FieldDiscount}))
	require.True(t, ok)

	got, found := c.Get(s.ID)
	require.True(t, found)
	assert.True(t, got.Discount.Equal(d(40)))
	assert.Equal(t, 2, got.Version)
	require.NotNil(t, got.Client)
	assert.Equal(t, "Ana Lima", got.Client.Name)

	t.Run("upsert without client keeps the known one", func(t *testing.T) {
		bare := got.Clone()
		bare.Client = nil
		bare.Version = 3
		c.Upsert(bare)
		again, _ := c.Get(s.ID)
		require.NotNil(t, again.Client)
		assert.Equal(t, 3, again.Version)
	})

	t.Run("stale changes are ignored", func(t *testing.T) {
		old := got.Clone()
		old.Discount = d(1)
		old.Version = 1
		assert.True(t, c.Merge(session.NarrowRowChange(old, []session.Field{session.FieldDiscount})))
		c.Upsert(old)
		current, _ := c.Get(s.ID)
		assert.True(t, current.Discount.Equal(d(40)))
	})

	t.Run("unknown session is not merged", func(t *testing.T) {
		assert.False(t, c.Merge(session.RowChange{ID: uuid.New()}))
		assert.Equal(t, 1, c.Len())
	})
}

func TestSessionCache_Isolation(t *testing.T) {
	c := NewSessionCache()
	s := cachedSession(t)
	c.Upsert(s)

	s.Notes = "changed after upsert"
	got, _ := c.Get(s.ID)
	assert.Empty(t, got.Notes)

	got.Notes = "changed after get"
	again, _ := c.Get(s.ID)
	assert.Empty(t, again.Notes)
}

func TestSessionCache_SnapshotOrder(t *testing.T) {
	c := NewSessionCache()
	early := cachedSession(t)
	early.ScheduledAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := cachedSession(t)
	late.ScheduledAt = time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	c.Upsert(early)
	c.Upsert(late)

	all := c.Snapshot()
	require.Len(t, all, 2)
	assert.Equal(t, late.ID, all[0].ID)
	assert.Equal(t, early.ID, all[1].ID)
}

func TestSessionCache_Payments(t *testing.T) {
	c := NewSessionCache()
	s := cachedSession(t)
	c.Upsert(s)

	ledger := &payment.Ledger{
		SessionID: s.ID,
		Summary:   domainpayment.Summary{Paid: d(150), Pending: d(90), Overdue: d(0)},
	}
	c.SetPayments(ledger)

	got, _ := c.Get(s.ID)
	assert.True(t, got.PaidToDate.Equal(d(150)))
	stored, ok := c.Payments(s.ID)
	require.True(t, ok)
	assert.Same(t, ledger, stored)

	c.Remove(s.ID)
	_, ok = c.Payments(s.ID)
	assert.False(t, ok)
}

func TestSessionCache_Subscribe(t *testing.T) {
	c := NewSessionCache()
	changes, cancel := c.Subscribe(2)

	s := cachedSession(t)
	c.Upsert(s)
	c.Remove(s.ID)

	first := <-changes
	assert.Equal(t, ChangeUpsert, first.Kind)
	require.NotNil(t, first.Session)
	second := <-changes
	assert.Equal(t, ChangeRemove, second.Kind)
	assert.Nil(t, second.Session)

	t.Run("slow subscribers lose the oldest changes", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			next := cachedSession(t)
			c.Upsert(next)
		}
		assert.Len(t, changes, 2)
	})

	cancel()
	cancel()
	for range changes {
	}
	c.Upsert(cachedSession(t))
}
