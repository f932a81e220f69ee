package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/internal/cache"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildTenantCache puts the slug lookup behind Redis when a client exists.
// A nil client yields a pass-through cache.
func BuildTenantCache(redisClient *redis.Client, dir scheduling.TenantDirectory, cfg *appconfig.Config, logger *logging.Logger) *cache.TenantCache {
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient == nil {
		logger.Info("tenant cache disabled; resolving slugs from the database")
	}
	var ttl time.Duration
	if cfg != nil {
		ttl = cfg.TenantCacheTTL
	}
	return cache.NewTenantCache(redisClient, dir, ttl, logger)
}
