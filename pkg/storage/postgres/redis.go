package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/clinicq/pkg/observability"
)

// DefaultDirectoryTTL is how long a cached tenant lookup stays valid
const DefaultDirectoryTTL = 5 * time.Minute

// NewRedisClient parses a redis URL and verifies the connection
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// CachedDirectory keeps tenant lookups of another Directory in redis.
// Redis errors fall through to the wrapped directory.
type CachedDirectory struct {
	next    Directory
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewCachedDirectory wraps next with a redis cache. A non-positive ttl uses DefaultDirectoryTTL.
func NewCachedDirectory(next Directory, client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *CachedDirectory {
	if ttl <= 0 {
		ttl = DefaultDirectoryTTL
	}
	return &CachedDirectory{next: next, client: client, ttl: ttl, metrics: metrics}
}

func directoryKey(tenant string) string {
	return fmt.Sprintf("tenant:dsn:%s", tenant)
}

// DSN implements Directory
func (c *CachedDirectory) DSN(ctx context.Context, tenant string) (string, error) {
	key := directoryKey(tenant)

	dsn, err := c.client.Get(ctx, key).Result()
	if err == nil {
		c.metrics.RecordDirectoryLookup(true)
		return dsn, nil
	}
	if err != redis.Nil {
		observability.FromContext(ctx).WithError(err).WithField("tenant", tenant).Warn("tenant directory cache unavailable")
	}
	c.metrics.RecordDirectoryLookup(false)

	dsn, err = c.next.DSN(ctx, tenant)
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, key, dsn, c.ttl).Err(); err != nil {
		observability.FromContext(ctx).WithError(err).WithField("tenant", tenant).Warn("failed to cache tenant lookup")
	}
	return dsn, nil
}

// Invalidate drops the cached lookup for a tenant
func (c *CachedDirectory) Invalidate(ctx context.Context, tenant string) error {
	return c.client.Del(ctx, directoryKey(tenant)).Err()
}
