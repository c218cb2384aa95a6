package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/catalog"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultCatalogKeyPrefix = "ledger:catalog:"
	defaultCatalogTTL       = 5 * time.Minute
)

// CatalogCache is a read-through Redis cache in front of a catalog resolver.
// Only successful lookups are cached; a Redis failure degrades to the inner resolver.
type CatalogCache struct {
	inner     catalog.Resolver
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *zap.Logger
}

// CatalogCacheOption is a functional option for configuring the cache
type CatalogCacheOption func(*CatalogCache)

// WithCatalogTTL sets how long resolved entries live
func WithCatalogTTL(ttl time.Duration) CatalogCacheOption {
	return func(c *CatalogCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCatalogKeyPrefix sets the Redis key prefix
func WithCatalogKeyPrefix(prefix string) CatalogCacheOption {
	return func(c *CatalogCache) {
		if prefix != "" {
			c.keyPrefix = prefix
		}
	}
}

// WithCatalogLogger sets the logger
func WithCatalogLogger(logger *zap.Logger) CatalogCacheOption {
	return func(c *CatalogCache) {
		c.logger = logger
	}
}

// NewCatalogCache wraps inner with a Redis read-through cache
func NewCatalogCache(inner catalog.Resolver, client *redis.Client, opts ...CatalogCacheOption) *CatalogCache {
	c := &CatalogCache{
		inner:     inner,
		client:    client,
		ttl:       defaultCatalogTTL,
		keyPrefix: defaultCatalogKeyPrefix,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolvePackage returns the cached rules of a package, loading them on a miss
func (c *CatalogCache) ResolvePackage(ctx context.Context, tenantID uuid.UUID, ref string) (*pricing.PackageRules, error) {
	key := c.key(tenantID, "pkg", ref)

	var rules pricing.PackageRules
	if c.get(ctx, key, &rules) {
		return &rules, nil
	}

	loaded, err := c.inner.ResolvePackage(ctx, tenantID, ref)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, loaded)
	return loaded, nil
}

// ResolveCategory returns the cached category name, loading it on a miss
func (c *CatalogCache) ResolveCategory(ctx context.Context, tenantID uuid.UUID, ref string) (string, error) {
	key := c.key(tenantID, "cat", ref)

	var name string
	if c.get(ctx, key, &name) {
		return name, nil
	}

	loaded, err := c.inner.ResolveCategory(ctx, tenantID, ref)
	if err != nil {
		return "", err
	}
	c.set(ctx, key, loaded)
	return loaded, nil
}

// Invalidate drops every cached entry of a studio, e.g. after a catalog edit
func (c *CatalogCache) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	pattern := c.keyPrefix + tenantID.String() + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan catalog cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete catalog cache keys: %w", err)
	}
	return nil
}

func (c *CatalogCache) key(tenantID uuid.UUID, kind, ref string) string {
	return c.keyPrefix + tenantID.String() + ":" + kind + ":" + strings.ToLower(strings.TrimSpace(ref))
}

func (c *CatalogCache) get(ctx context.Context, key string, dest any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("catalog cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CatalogCache) set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}

var _ catalog.Resolver = (*CatalogCache)(nil)
