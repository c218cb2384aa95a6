package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/lunari/studio-ledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) ResolvePackage(ctx context.Context, tenantID uuid.UUID, ref string) (*pricing.PackageRules, error) {
	args := m.Called(ctx, tenantID, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pricing.PackageRules), args.Error(1)
}

func (m *mockResolver) ResolveCategory(ctx context.Context, tenantID uuid.UUID, ref string) (string, error) {
	args := m.Called(ctx, tenantID, ref)
	return args.String(0), args.Error(1)
}

func setupCatalogCache(t *testing.T) (*CatalogCache, *mockResolver, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &mockResolver{}
	return NewCatalogCache(inner, client, WithCatalogTTL(time.Minute)), inner, mr
}

func TestCatalogCache_ResolvePackage(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	rules := &pricing.PackageRules{
		PackageID:      uuid.New(),
		Name:           "Newborn Essencial",
		Category:       "Newborn",
		BasePrice:      decimal.NewFromInt(350),
		ExtraUnitPrice: decimal.NewFromInt(20),
		Tiers:          []pricing.Tier{{Threshold: 10, UnitPrice: decimal.NewFromInt(15)}},
	}

	t.Run("miss loads and caches", func(t *testing.T) {
		c, inner, mr := setupCatalogCache(t)
		inner.On("ResolvePackage", mock.Anything, tenantID, "Newborn Essencial").Return(rules, nil).Once()

		got, err := c.ResolvePackage(ctx, tenantID, "Newborn Essencial")
		require.NoError(t, err)
		assert.Equal(t, rules.PackageID, got.PackageID)

		// case and surrounding spaces share the entry
		again, err := c.ResolvePackage(ctx, tenantID, " newborn essencial ")
		require.NoError(t, err)
		assert.True(t, again.BasePrice.Equal(decimal.NewFromInt(350)))
		require.Len(t, again.Tiers, 1)
		assert.True(t, again.Tiers[0].UnitPrice.Equal(decimal.NewFromInt(15)))

		inner.AssertExpectations(t)
		key := defaultCatalogKeyPrefix + tenantID.String() + ":pkg:newborn essencial"
		assert.True(t, mr.Exists(key))
		assert.Equal(t, time.Minute, mr.TTL(key))
	})

	t.Run("not found is not cached", func(t *testing.T) {
		c, inner, _ := setupCatalogCache(t)
		inner.On("ResolvePackage", mock.Anything, tenantID, "Ghost").Return(nil, shared.ErrNotFound).Twice()

		_, err := c.ResolvePackage(ctx, tenantID, "Ghost")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		_, err = c.ResolvePackage(ctx, tenantID, "Ghost")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		inner.AssertExpectations(t)
	})

	t.Run("redis outage falls through to the resolver", func(t *testing.T) {
		c, inner, mr := setupCatalogCache(t)
		mr.Close()
		inner.On("ResolvePackage", mock.Anything, tenantID, "Newborn Essencial").Return(rules, nil).Once()

		got, err := c.ResolvePackage(ctx, tenantID, "Newborn Essencial")
		require.NoError(t, err)
		assert.Equal(t, rules.Name, got.Name)
	})

	t.Run("corrupt entry is reloaded", func(t *testing.T) {
		c, inner, mr := setupCatalogCache(t)
		require.NoError(t, mr.Set(defaultCatalogKeyPrefix+tenantID.String()+":pkg:newborn essencial", "{not json"))
		inner.On("ResolvePackage", mock.Anything, tenantID, "Newborn Essencial").Return(rules, nil).Once()

		_, err := c.ResolvePackage(ctx, tenantID, "Newborn Essencial")
		require.NoError(t, err)
		inner.AssertExpectations(t)
	})
}

func TestCatalogCache_ResolveCategoryAndInvalidate(t *testing.T) {
	ctx := context.Background()
	tenantID := uuid.New()
	otherTenant := uuid.New()
	c, inner, mr := setupCatalogCache(t)

	inner.On("ResolveCategory", mock.Anything, tenantID, "gestante").Return("Gestante", nil).Twice()
	inner.On("ResolveCategory", mock.Anything, otherTenant, "gestante").Return("Gestante", nil).Once()

	name, err := c.ResolveCategory(ctx, tenantID, "gestante")
	require.NoError(t, err)
	assert.Equal(t, "Gestante", name)
	_, err = c.ResolveCategory(ctx, tenantID, "gestante")
	require.NoError(t, err)
	_, err = c.ResolveCategory(ctx, otherTenant, "gestante")
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, tenantID))
	assert.False(t, mr.Exists(defaultCatalogKeyPrefix+tenantID.String()+":cat:gestante"))
	assert.True(t, mr.Exists(defaultCatalogKeyPrefix+otherTenant.String()+":cat:gestante"))

	// reloaded after invalidation
	_, err = c.ResolveCategory(ctx, tenantID, "gestante")
	require.NoError(t, err)
	inner.AssertExpectations(t)

	assert.NoError(t, c.Invalidate(ctx, uuid.New()))
}
