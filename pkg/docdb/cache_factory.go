package docdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
)

// CacheType selects where container properties are cached.
type CacheType string

const (
	// CacheTypeMemory keeps entries in process.
	CacheTypeMemory CacheType = "memory"

	// CacheTypeNATS shares entries through a JetStream key-value bucket.
	CacheTypeNATS CacheType = "nats"

	// CacheTypeRedis shares entries through Redis.
	CacheTypeRedis CacheType = "redis"

	// CacheTypeTiered reads through a small in-process cache in front of a
	// shared NATS or Redis cache.
	CacheTypeTiered CacheType = "tiered"

	// CacheTypeNone disables caching; every lookup goes to the service.
	CacheTypeNone CacheType = "none"
)

var (
	ErrNATSConfigRequired   = errors.New("NATS configuration required for NATS cache")
	ErrRedisConfigRequired  = errors.New("redis configuration required for redis cache")
	ErrRemoteCacheRequired  = errors.New("tiered cache needs a NATS, Redis or custom remote cache")
	ErrUnsupportedCacheType = errors.New("unsupported cache type")
	ErrCacheDisabled        = errors.New("cache disabled")
)

// CacheConfig selects and configures the container-properties cache.
type CacheConfig struct {
	Type CacheType

	NATS  *NATSKVConfig
	Redis *RedisConfig

	// Remote is the shared layer of a tiered cache. It takes precedence over NATS and Redis.
	Remote Cache

	// LocalTTL caps how long a tiered cache serves an entry from process
	// memory, and so how late it sees another process's invalidation.
	LocalTTL time.Duration

	// Options apply to every backend. Nil selects the defaults.
	Options *CacheOptions
}

func (c *CacheConfig) localSize() int {
	if c.Options != nil && c.Options.MaxSize > 0 {
		return c.Options.MaxSize
	}

	return constants.DefaultCacheSize
}

func (c *CacheConfig) localTTL() time.Duration {
	if c.LocalTTL > 0 {
		return c.LocalTTL
	}

	return constants.DefaultLocalCacheTTL
}

// NewCacheFromConfig builds the cache config describes. A nil config is an
// in-process cache of the default size.
func NewCacheFromConfig(config *CacheConfig) (Cache, error) {
	if config == nil {
		return NewMemoryCache(constants.DefaultCacheSize), nil
	}

	switch config.Type {
	case CacheTypeMemory, "":
		return NewMemoryCache(config.localSize()), nil
	case CacheTypeNone:
		return disabledCache{}, nil
	case CacheTypeNATS:
		return natsCache(config.NATS)
	case CacheTypeRedis:
		if config.Redis == nil {
			return nil, ErrRedisConfigRequired
		}

		return NewRedisCache(config.Redis), nil
	case CacheTypeTiered:
		remote, err := tieredRemote(config)
		if err != nil {
			return nil, err
		}

		return NewTieredCache(NewMemoryCache(config.localSize()), remote, config.localTTL()), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCacheType, config.Type)
	}
}

func natsCache(config *NATSKVConfig) (Cache, error) {
	if config == nil {
		return nil, ErrNATSConfigRequired
	}

	cache, err := NewNATSKVCache(config)
	if err != nil {
		return nil, err
	}

	return cache, nil
}

func tieredRemote(config *CacheConfig) (Cache, error) {
	switch {
	case config.Remote != nil:
		return config.Remote, nil
	case config.NATS != nil:
		return natsCache(config.NATS)
	case config.Redis != nil:
		return NewRedisCache(config.Redis), nil
	default:
		return nil, ErrRemoteCacheRequired
	}
}

// disabledCache stores nothing.
type disabledCache struct{}

func (disabledCache) Get(context.Context, string) (*CacheEntry, error) { return nil, ErrCacheDisabled }
func (disabledCache) Set(context.Context, string, *CacheEntry) error   { return nil }
func (disabledCache) Delete(context.Context, string) error             { return nil }
func (disabledCache) Clear(context.Context) error                      { return nil }
func (disabledCache) Has(context.Context, string) bool                 { return false }

// TieredCache serves reads from process memory and falls back to a shared
// remote cache. Entries copied into memory expire after at most localTTL.
// Writes and invalidations go to both layers, remote first.
type TieredCache struct {
	local    *MemoryCache
	remote   Cache
	localTTL time.Duration
}

// NewTieredCache layers local in front of remote.
func NewTieredCache(local *MemoryCache, remote Cache, localTTL time.Duration) *TieredCache {
	if localTTL <= 0 {
		localTTL = constants.DefaultLocalCacheTTL
	}

	return &TieredCache{local: local, remote: remote, localTTL: localTTL}
}

// localCopy returns entry with its expiry capped at the local TTL.
func (c *TieredCache) localCopy(entry *CacheEntry) *CacheEntry {
	limit := time.Now().Add(c.localTTL)

	copied := *entry
	if copied.ExpiresAt.IsZero() || copied.ExpiresAt.After(limit) {
		copied.ExpiresAt = limit
	}

	return &copied
}

// Get implements Cache. A remote hit is copied into memory.
func (c *TieredCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	entry, err := c.local.Get(ctx, key)
	if err == nil {
		return entry, nil
	}

	entry, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	_ = c.local.Set(ctx, key, c.localCopy(entry))

	return entry, nil
}

// Set implements Cache. Nothing is kept locally when the remote write fails.
func (c *TieredCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	err := c.remote.Set(ctx, key, entry)
	if err != nil {
		_ = c.local.Delete(ctx, key)

		return fmt.Errorf("remote cache: %w", err)
	}

	return c.local.Set(ctx, key, c.localCopy(entry))
}

// Delete implements Cache. The local entry is dropped even if the remote delete fails.
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	_ = c.local.Delete(ctx, key)

	err := c.remote.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("remote cache: %w", err)
	}

	return nil
}

// Clear implements Cache.
func (c *TieredCache) Clear(ctx context.Context) error {
	return errors.Join(c.local.Clear(ctx), c.remote.Clear(ctx))
}

// Has implements Cache.
func (c *TieredCache) Has(ctx context.Context, key string) bool {
	return c.local.Has(ctx, key) || c.remote.Has(ctx, key)
}

// Close closes the remote layer when it holds a connection.
func (c *TieredCache) Close() error {
	switch closer := c.remote.(type) {
	case interface{ Close() error }:
		return closer.Close()
	case interface{ Close() }:
		closer.Close()
	}

	return nil
}
