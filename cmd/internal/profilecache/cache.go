// Package profilecache is a Redis read-through cache for public user profiles.
package profilecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"vidshare/cmd/identity"
)

const (
	DefaultPrefix = "vidshare:profile:"
	DefaultTTL    = 5 * time.Minute
)

type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cache implements identity.ProfileCache.
type Cache struct {
	rdb    client
	prefix string
	ttl    time.Duration
}

var _ identity.ProfileCache = (*Cache)(nil)

// Options configures the Redis connection and entry lifetime.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// Open connects to Redis and pings it once.
func Open(ctx context.Context, opts Options) (*Cache, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("profilecache: ping %s: %w", opts.Addr, err)
	}
	return New(rdb, opts.Prefix, opts.TTL), rdb, nil
}

// New wraps an existing client. Zero prefix and ttl take the defaults.
func New(rdb client, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(username string) string { return c.prefix + username }

// Get returns the cached profile. A miss is (zero, false, nil).
func (c *Cache) Get(ctx context.Context, username string) (identity.PublicProfile, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return identity.PublicProfile{}, false, nil
	}
	if err != nil {
		return identity.PublicProfile{}, false, fmt.Errorf("profilecache: get: %w", err)
	}

	var p identity.PublicProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		// A corrupt entry is dropped and treated as a miss.
		_ = c.rdb.Del(ctx, c.key(username)).Err()
		return identity.PublicProfile{}, false, nil
	}
	return p, true, nil
}

// Set stores p under its username for the configured TTL.
func (c *Cache) Set(ctx context.Context, p identity.PublicProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("profilecache: marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(p.Username), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("profilecache: set: %w", err)
	}
	return nil
}

// Delete invalidates the entry for username.
func (c *Cache) Delete(ctx context.Context, username string) error {
	if err := c.rdb.Del(ctx, c.key(username)).Err(); err != nil {
		return fmt.Errorf("profilecache: delete: %w", err)
	}
	return nil
}
