package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
)

// Token is a resource token with an optional expiry.
type Token struct {
	AccessToken string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether the token can still be used. Tokens expiring within
// the buffer are treated as expired.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}

	if t.ExpiresAt.IsZero() {
		return true
	}

	return time.Now().Add(constants.TokenExpirationBuffer).Before(t.ExpiresAt)
}

// TokenSource mints a token for one resource.
type TokenSource func(ctx context.Context, verb, resourceType, resourceLink string) (*Token, error)

// TokenCache caches minted tokens per resource and refreshes them shortly
// before they expire. Concurrent misses for the same resource share one call
// to the source.
type TokenCache struct {
	source TokenSource

	mutex  sync.Mutex
	tokens map[string]*Token
	group  singleflight.Group
}

// NewTokenCache creates a cache over source.
func NewTokenCache(source TokenSource) *TokenCache {
	return &TokenCache{
		source: source,
		tokens: make(map[string]*Token),
	}
}

// GetToken returns a valid token for the resource, minting one if needed.
func (c *TokenCache) GetToken(ctx context.Context, verb, resourceType, resourceLink string) (string, error) {
	key := resourceType + "|" + resourceLink

	c.mutex.Lock()
	token := c.tokens[key]
	c.mutex.Unlock()

	if token.Valid() {
		return token.AccessToken, nil
	}

	// The shared mint outlives any one waiter; each waiter still honours its own ctx.
	shared := context.WithoutCancel(ctx)

	results := c.group.DoChan(key, func() (interface{}, error) {
		minted, err := c.source(shared, verb, resourceType, resourceLink)
		if err != nil {
			return nil, err
		}

		if !minted.Valid() {
			return nil, fmt.Errorf("%w for %s", ErrTokenExpired, resourceLink)
		}

		c.mutex.Lock()
		c.tokens[key] = minted
		c.mutex.Unlock()

		return minted, nil
	})

	var result singleflight.Result

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("minting resource token: %w", ctx.Err())
	case result = <-results:
	}

	if result.Err != nil {
		return "", fmt.Errorf("minting resource token: %w", result.Err)
	}

	minted, _ := result.Val.(*Token)

	return minted.AccessToken, nil
}

// Invalidate drops the cached token for a resource, for example after a 401.
func (c *TokenCache) Invalidate(resourceType, resourceLink string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.tokens, resourceType+"|"+resourceLink)
}
