package client

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/internal/emulator"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

var errProviderDown = errors.New("token service unavailable")

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires endpoint", func(t *testing.T) {
		t.Parallel()

		_, err := New(context.Background(), &docdb.Config{})
		require.Error(t, err)
		require.ErrorIs(t, err, docdb.ErrConfiguration)
		assert.Contains(t, err.Error(), "Endpoint")
	})

	t.Run("rejects malformed endpoint", func(t *testing.T) {
		t.Parallel()

		_, err := New(context.Background(), &docdb.Config{Endpoint: "ftp://example.com", Key: constants.EmulatorMasterKey})
		require.ErrorIs(t, err, docdb.ErrConfiguration)
	})

	t.Run("rejects undecodable key", func(t *testing.T) {
		t.Parallel()

		_, err := New(context.Background(), &docdb.Config{Endpoint: "https://example.com", Key: "not base64!"})
		require.ErrorIs(t, err, docdb.ErrAuthentication)
	})

	t.Run("rejects two credentials", func(t *testing.T) {
		t.Parallel()

		_, err := New(context.Background(), &docdb.Config{
			Endpoint:      "https://example.com",
			Key:           constants.EmulatorMasterKey,
			ResourceToken: "token",
		})
		require.ErrorIs(t, err, docdb.ErrConfiguration)
	})

	t.Run("rejects unsupported cache", func(t *testing.T) {
		t.Parallel()

		_, err := New(context.Background(), &docdb.Config{
			Endpoint: "https://example.com",
			Key:      constants.EmulatorMasterKey,
			Cache:    &docdb.CacheConfig{Type: "bogus"},
		})
		require.ErrorIs(t, err, docdb.ErrConfiguration)
	})

	t.Run("makes no network call", func(t *testing.T) {
		t.Parallel()

		emu := newTestEmulator(t, emulator.Options{})
		_ = NewTestClient(t, emu)

		assert.Empty(t, emu.Requests())
	})
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "docdb-go/1.0.0", userAgent(""))
	assert.Equal(t, "docdb-go/1.0.0 DocDBGoQuickstart", userAgent(" DocDBGoQuickstart "))
}

func TestClient_Headers(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	client := NewTestClient(t, emu, func(c *docdb.Config) {
		c.UserAgentSuffix = "DocDBGoQuickstart"
		c.ConsistencyLevel = docdb.ConsistencyEventual
	})

	_, err := client.Databases().CreateIfNotExists(context.Background(), "headers")
	require.NoError(t, err)

	requests := emu.Requests()
	require.NotEmpty(t, requests)

	last := requests[len(requests)-1]
	assert.Equal(t, "docdb-go/1.0.0 DocDBGoQuickstart", last.Headers.Get(constants.HeaderUserAgent))
	assert.Equal(t, "Eventual", last.Headers.Get(constants.HeaderConsistencyLevel))
	assert.Equal(t, constants.APIVersion, last.Headers.Get(constants.HeaderVersion))
	assert.NotEmpty(t, last.Headers.Get(constants.HeaderActivityID))
}

func TestClient_WrongKeyIsAuthenticationError(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	client := NewTestClient(t, emu, func(c *docdb.Config) {
		c.Key = "dGhpcyBpcyBub3QgdGhlIGtleQ=="
	})

	_, err := client.Databases().Create(context.Background(), "denied")
	require.ErrorIs(t, err, docdb.ErrAuthentication)
}

func TestClient_ResourceToken(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{ResourceTokens: []string{"type=resource&ver=1.0&sig=abc"}})
	client := NewTestClient(t, emu, func(c *docdb.Config) {
		c.Key = ""
		c.ResourceToken = "type=resource&ver=1.0&sig=abc"
	})

	db, err := client.Databases().Create(context.Background(), "tokens")
	require.NoError(t, err)
	assert.Equal(t, "tokens", db.ID)
}

func TestClient_TokenProvider(t *testing.T) {
	t.Parallel()

	const token = "type=resource&ver=1.0&sig=minted"

	var calls atomic.Int32

	emu := newTestEmulator(t, emulator.Options{ResourceTokens: []string{token}})
	client := NewTestClient(t, emu, func(c *docdb.Config) {
		c.Key = ""
		c.TokenProvider = func(_ context.Context, req docdb.TokenRequest) (*docdb.ResourceToken, error) {
			calls.Add(1)

			if req.ResourceType == "" {
				return nil, errProviderDown
			}

			return &docdb.ResourceToken{Token: token, ExpiresAt: time.Now().Add(time.Hour)}, nil
		}
	})

	ctx := context.Background()

	for range 3 {
		_, err := client.Databases().CreateIfNotExists(ctx, "minted")
		require.NoError(t, err)
	}

	// One token for POST dbs and one for GET dbs/minted, each reused afterwards.
	assert.LessOrEqual(t, calls.Load(), int32(2))

	_, err := client.Account(ctx)
	require.ErrorIs(t, err, docdb.ErrAuthentication)
	assert.Contains(t, err.Error(), errProviderDown.Error())
}

func TestClient_Account(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	client := NewTestClient(t, emu)

	account, err := client.Account(context.Background())
	require.NoError(t, err)
	require.Len(t, account.ReadableLocations, 1)
	assert.Equal(t, constants.EmulatorRegion, account.ReadableLocations[0].Name)

	_, err = client.Account(context.Background())
	require.NoError(t, err)

	accountReads := 0

	for _, req := range emu.Requests() {
		if req.Method == http.MethodGet && req.Path == "/" {
			accountReads++
		}
	}

	assert.Equal(t, 1, accountReads)
}

func TestClient_PreferredRegionRouting(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	client := NewTestClient(t, emu, func(c *docdb.Config) {
		c.PreferredRegions = []string{"Nowhere", constants.EmulatorRegion}
	})

	container := provisionContainer(t, client)
	item := newFamily("Andersen")

	_, err := client.Items().Create(context.Background(), container, item, nil)
	require.NoError(t, err)

	outcome, err := client.Items().Read(context.Background(), container, item.ID, docdb.NewPartitionKey("Andersen"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, outcome.StatusCode)
}

func TestNew_CopiesPreferredRegions(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	regions := []string{constants.EmulatorRegion}
	config := &docdb.Config{Endpoint: emu.URL(), Key: emu.Key(), PreferredRegions: regions}

	client, err := New(context.Background(), config)
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	regions[0] = "Mutated Region"
	config.PreferredRegions = append(config.PreferredRegions, "Other Region")

	assert.Equal(t, []string{constants.EmulatorRegion}, client.locations.preferred)
}

func TestProvisioner_CallerCancelDoesNotFailOthers(t *testing.T) {
	t.Parallel()

	p := &provisioner{group: &singleflight.Group{}}
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	var sharedErr atomic.Value

	fn := func(ctx context.Context) (interface{}, error) {
		select {
		case started <- struct{}{}:
		default:
		}

		<-release

		if ctx.Err() != nil {
			sharedErr.Store(ctx.Err())
		}

		return "db", nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)

	go func() {
		_, err := p.do(first, "dbs/db", fn)
		firstDone <- err
	}()

	<-started

	secondDone := make(chan interface{}, 1)

	go func() {
		value, err := p.do(context.Background(), "dbs/db", fn)
		assert.NoError(t, err)
		secondDone <- value
	}()

	cancel()
	require.ErrorIs(t, <-firstDone, context.Canceled)

	close(release)
	assert.Equal(t, "db", <-secondDone)
	assert.Nil(t, sharedErr.Load())
}

func TestClient_Close(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	client := NewTestClient(t, emu)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err := client.Databases().Create(context.Background(), "closed")
	require.ErrorIs(t, err, docdb.ErrClientClosed)
	assert.Empty(t, emu.Requests())
}
