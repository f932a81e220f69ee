// Package cache fronts tenant lookups for public entry points with Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// DefaultTTL bounds how long a renamed or deleted tenant can be served stale.
const DefaultTTL = 5 * time.Minute

// TenantCache is a read-through cache over a TenantDirectory. Misses and
// Redis failures fall through to the source; only hits are cached.
// A nil Redis client disables caching.
type TenantCache struct {
	redis  *redis.Client
	source scheduling.TenantDirectory
	ttl    time.Duration
	logger *logging.Logger
}

var _ scheduling.TenantDirectory = (*TenantCache)(nil)

// NewTenantCache wraps source.
func NewTenantCache(redisClient *redis.Client, source scheduling.TenantDirectory, ttl time.Duration, logger *logging.Logger) *TenantCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TenantCache{redis: redisClient, source: source, ttl: ttl, logger: logger}
}

func slugKey(slug string) string { return "scheduler:tenant:slug:" + slug }

func idKey(id uuid.UUID) string { return "scheduler:tenant:id:" + id.String() }

// GetTenant implements scheduling.TenantDirectory.
func (c *TenantCache) GetTenant(ctx context.Context, id uuid.UUID) (*scheduling.Tenant, error) {
	if t, ok := c.get(ctx, idKey(id)); ok {
		return t, nil
	}
	t, err := c.source.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	c.put(ctx, t)
	return t, nil
}

// GetTenantBySlug implements scheduling.TenantDirectory.
func (c *TenantCache) GetTenantBySlug(ctx context.Context, slug string) (*scheduling.Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if t, ok := c.get(ctx, slugKey(slug)); ok {
		return t, nil
	}
	t, err := c.source.GetTenantBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.put(ctx, t)
	return t, nil
}

// Invalidate drops both keys of t.
func (c *TenantCache) Invalidate(ctx context.Context, t scheduling.Tenant) error {
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, idKey(t.ID), slugKey(strings.ToLower(t.Slug))).Err(); err != nil {
		return fmt.Errorf("cache: invalidate tenant: %w", err)
	}
	return nil
}

func (c *TenantCache) get(ctx context.Context, key string) (*scheduling.Tenant, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache: tenant lookup failed", "key", key, "error", err)
		return nil, false
	}
	var t scheduling.Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		c.logger.Warn("cache: tenant entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return &t, true
}

func (c *TenantCache) put(ctx context.Context, t *scheduling.Tenant) {
	if c.redis == nil || t == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, idKey(t.ID), data, c.ttl)
	pipe.Set(ctx, slugKey(strings.ToLower(t.Slug)), data, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("cache: tenant store failed", "tenant_id", t.ID, "error", err)
	}
}
