package docdb

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
)

// Static errors for err113 compliance.
var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrEntryExpired  = errors.New("entry expired")
	ErrValueTooLarge = errors.New("cache value too large")
)

// Cache stores container properties and other slowly-changing metadata.
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, entry *CacheEntry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Has(ctx context.Context, key string) bool
}

// CacheEntry is a cached value. A zero ExpiresAt never expires.
type CacheEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
	ETag      string    `json:"etag,omitempty"`
}

// Expired reports whether the entry is past its expiry.
func (e *CacheEntry) Expired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// CacheOptions apply to every backend.
type CacheOptions struct {
	// TTL is how long container properties stay cached.
	TTL time.Duration
	// MaxSize bounds the in-process layer.
	MaxSize int
}

// MemoryCache is a bounded in-process cache with least-recently-used eviction.
type MemoryCache struct {
	mutex   sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
}

type memoryItem struct {
	key   string
	entry *CacheEntry
}

// NewMemoryCache creates a memory cache holding at most maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = constants.DefaultCacheSize
	}

	return &MemoryCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the entry for key.
func (c *MemoryCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	element, ok := c.items[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	item, _ := element.Value.(*memoryItem)
	if item.entry.Expired() {
		c.order.Remove(element)
		delete(c.items, key)

		return nil, fmt.Errorf("%w: %s", ErrEntryExpired, key)
	}

	c.order.MoveToFront(element)

	return item.entry, nil
}

// Set stores entry under key, evicting the least recently used entry when full.
func (c *MemoryCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if element, ok := c.items[key]; ok {
		item, _ := element.Value.(*memoryItem)
		item.entry = entry
		c.order.MoveToFront(element)

		return nil
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}

		item, _ := oldest.Value.(*memoryItem)
		c.order.Remove(oldest)
		delete(c.items, item.key)
	}

	c.items[key] = c.order.PushFront(&memoryItem{key: key, entry: entry})

	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if element, ok := c.items[key]; ok {
		c.order.Remove(element)
		delete(c.items, key)
	}

	return nil
}

// Clear removes every entry.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()

	return nil
}

// Has reports whether a live entry exists for key.
func (c *MemoryCache) Has(ctx context.Context, key string) bool {
	_, err := c.Get(ctx, key)

	return err == nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.order.Len()
}

// ContainerCache caches container properties by resource link on top of any Cache.
type ContainerCache struct {
	cache Cache
	ttl   time.Duration
}

// NewContainerCache wraps cache. A zero ttl selects the default.
func NewContainerCache(cache Cache, ttl time.Duration) *ContainerCache {
	if ttl <= 0 {
		ttl = constants.DefaultCacheTTL
	}

	return &ContainerCache{cache: cache, ttl: ttl}
}

// Get returns cached properties for link.
func (c *ContainerCache) Get(ctx context.Context, link string) (*ContainerProperties, bool) {
	entry, err := c.cache.Get(ctx, containerCacheKey(link))
	if err != nil {
		return nil, false
	}

	var props ContainerProperties

	err = json.Unmarshal(entry.Data, &props)
	if err != nil {
		return nil, false
	}

	return &props, true
}

// Put stores properties for link.
func (c *ContainerCache) Put(ctx context.Context, link string, props *ContainerProperties) error {
	data, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encoding container properties: %w", err)
	}

	err = c.cache.Set(ctx, containerCacheKey(link), &CacheEntry{
		Data:      data,
		ExpiresAt: time.Now().Add(c.ttl),
		ETag:      props.ETag,
	})
	if err != nil {
		return fmt.Errorf("caching container properties: %w", err)
	}

	return nil
}

// Invalidate drops link from the cache.
func (c *ContainerCache) Invalidate(ctx context.Context, link string) error {
	return c.cache.Delete(ctx, containerCacheKey(link))
}

func containerCacheKey(link string) string {
	return "container:" + link
}
