package auth_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fivetwenty-io/docdb-client/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSourceUnavailable = errors.New("token service unavailable")

func TestToken_Valid(t *testing.T) {
	t.Parallel()

	tests := getTokenValidityTestCases()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.token.Valid())
		})
	}
}

func getTokenValidityTestCases() []struct {
	name     string
	token    *auth.Token
	expected bool
} {
	return []struct {
		name     string
		token    *auth.Token
		expected bool
	}{
		{
			name:     "nil token",
			token:    nil,
			expected: false,
		},
		{
			name: "empty token",
			token: &auth.Token{
				AccessToken: "",
			},
			expected: false,
		},
		{
			name: "valid token without expiry",
			token: &auth.Token{
				AccessToken: "test-token",
			},
			expected: true,
		},
		{
			name: "valid token with future expiry",
			token: &auth.Token{
				AccessToken: "test-token",
				ExpiresAt:   time.Now().Add(1 * time.Hour),
			},
			expected: true,
		},
		{
			name: "expired token",
			token: &auth.Token{
				AccessToken: "test-token",
				ExpiresAt:   time.Now().Add(-1 * time.Hour),
			},
			expected: false,
		},
		{
			name: "token expiring within buffer",
			token: &auth.Token{
				AccessToken: "test-token",
				ExpiresAt:   time.Now().Add(15 * time.Second),
			},
			expected: false, // Should be false due to 30 second buffer
		},
		{
			name: "token expiring just outside buffer",
			token: &auth.Token{
				AccessToken: "test-token",
				ExpiresAt:   time.Now().Add(35 * time.Second),
			},
			expected: true,
		},
	}
}

func TestTokenCache(t *testing.T) {
	t.Parallel()

	t.Run("reuses a valid token", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32

		cache := auth.NewTokenCache(func(ctx context.Context, verb, resourceType, resourceLink string) (*auth.Token, error) {
			calls.Add(1)

			return &auth.Token{AccessToken: "token-for-" + resourceLink, ExpiresAt: time.Now().Add(time.Hour)}, nil
		})

		for range 3 {
			token, err := cache.GetToken(context.Background(), "GET", "docs", "dbs/db/colls/items")
			require.NoError(t, err)
			assert.Equal(t, "token-for-dbs/db/colls/items", token)
		}

		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("invalidate forces a new token", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32

		cache := auth.NewTokenCache(func(ctx context.Context, verb, resourceType, resourceLink string) (*auth.Token, error) {
			n := calls.Add(1)
			if n == 1 {
				return &auth.Token{AccessToken: "first", ExpiresAt: time.Now().Add(time.Hour)}, nil
			}

			return &auth.Token{AccessToken: "second", ExpiresAt: time.Now().Add(time.Hour)}, nil
		})

		token, err := cache.GetToken(context.Background(), "GET", "docs", "dbs/db/colls/items")
		require.NoError(t, err)
		assert.Equal(t, "first", token)

		cache.Invalidate("docs", "dbs/db/colls/items")

		token, err = cache.GetToken(context.Background(), "GET", "docs", "dbs/db/colls/items")
		require.NoError(t, err)
		assert.Equal(t, "second", token)
	})

	t.Run("rejects an already expired token", func(t *testing.T) {
		t.Parallel()

		cache := auth.NewTokenCache(func(ctx context.Context, verb, resourceType, resourceLink string) (*auth.Token, error) {
			return &auth.Token{AccessToken: "stale", ExpiresAt: time.Now().Add(10 * time.Second)}, nil
		})

		_, err := cache.GetToken(context.Background(), "GET", "docs", "dbs/db/colls/items")
		require.ErrorIs(t, err, auth.ErrTokenExpired)
	})

	t.Run("propagates source errors", func(t *testing.T) {
		t.Parallel()

		cache := auth.NewTokenCache(func(ctx context.Context, verb, resourceType, resourceLink string) (*auth.Token, error) {
			return nil, errSourceUnavailable
		})

		_, err := cache.GetToken(context.Background(), "GET", "dbs", "dbs/db")
		require.ErrorIs(t, err, errSourceUnavailable)
	})
}
