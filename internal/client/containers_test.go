package client

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/docdb-client/internal/emulator"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

func TestContainersClient_CreateIfNotExists(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	client := NewTestClient(t, emu)
	ctx := context.Background()

	db, err := client.Databases().CreateIfNotExists(ctx, "db")
	require.NoError(t, err)

	first, err := client.Containers().CreateIfNotExists(ctx, db, "items", "/lastName", 400)
	require.NoError(t, err)
	assert.Equal(t, "db", first.DatabaseID)
	assert.Equal(t, "items", first.ID)
	assert.Equal(t, "/lastName", first.PartitionKeyPath)
	assert.Equal(t, 400, first.ProvisionedThroughput)
	assert.Equal(t, "dbs/db/colls/items", first.Link())

	second, err := client.Containers().CreateIfNotExists(ctx, db, "items", "/lastName", 400)
	require.NoError(t, err)
	assert.Equal(t, first.RID, second.RID)
	assert.Equal(t, first.PartitionKeyPath, second.PartitionKeyPath)
	assert.Equal(t, 400, second.ProvisionedThroughput)
}

func TestContainersClient_SchemaConflict(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	client := NewTestClient(t, emu)
	ctx := context.Background()

	db, err := client.Databases().CreateIfNotExists(ctx, "db")
	require.NoError(t, err)

	_, err = client.Containers().CreateIfNotExists(ctx, db, "items", "/lastName", 400)
	require.NoError(t, err)

	_, err = client.Containers().CreateIfNotExists(ctx, db, "items", "/district", 400)
	require.ErrorIs(t, err, docdb.ErrSchemaConflict)

	var conflict *docdb.SchemaConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "/lastName", conflict.ExistingPath)
	assert.Equal(t, "/district", conflict.RequestedPath)
}

func TestContainersClient_Validation(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	client := NewTestClient(t, emu)
	ctx := context.Background()
	db := &docdb.DatabaseHandle{ID: "db"}

	tests := []struct {
		name       string
		db         *docdb.DatabaseHandle
		id         string
		path       string
		throughput int
		target     error
	}{
		{name: "nil database", db: nil, id: "items", path: "/lastName", throughput: 400, target: docdb.ErrDatabaseRequired},
		{name: "empty path", db: db, id: "items", path: "", throughput: 400, target: docdb.ErrConfiguration},
		{name: "relative path", db: db, id: "items", path: "lastName", throughput: 400, target: docdb.ErrConfiguration},
		{name: "negative throughput", db: db, id: "items", path: "/lastName", throughput: -1, target: docdb.ErrConfiguration},
		{name: "empty id", db: db, id: "", path: "/lastName", throughput: 400, target: docdb.ErrConfiguration},
	}

	for _, tt := range tests {
		_, err := client.Containers().CreateIfNotExists(ctx, tt.db, tt.id, tt.path, tt.throughput)
		require.ErrorIs(t, err, tt.target, tt.name)
	}

	assert.Empty(t, emu.Requests())
}

func TestContainersClient_ThroughputOutOfRange(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	client := NewTestClient(t, emu)
	ctx := context.Background()

	db, err := client.Databases().CreateIfNotExists(ctx, "db")
	require.NoError(t, err)

	_, err = client.Containers().CreateIfNotExists(ctx, db, "tiny", "/lastName", 10)
	require.Error(t, err)

	var apiErr *docdb.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestContainersClient_GetUsesCache(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	client := NewTestClient(t, emu)
	ctx := context.Background()

	container := provisionContainer(t, client)
	db := &docdb.DatabaseHandle{ID: container.DatabaseID}

	before := emu.CountRequests(http.MethodGet, "/dbs/")

	for range 3 {
		got, err := client.Containers().Get(ctx, db, "items")
		require.NoError(t, err)
		assert.Equal(t, container.RID, got.RID)
		assert.Equal(t, "/lastName", got.PartitionKeyPath)
	}

	assert.Equal(t, before, emu.CountRequests(http.MethodGet, "/dbs/"))

	require.NoError(t, client.Containers().Delete(ctx, db, "items"))

	_, err := client.Containers().Get(ctx, db, "items")
	require.ErrorIs(t, err, docdb.ErrNotFound)
}

func TestContainersClient_TieredCacheSharedBetweenClients(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	remote := docdb.NewMemoryCache(10)
	tiered := func(config *docdb.Config) {
		config.Cache = &docdb.CacheConfig{Type: docdb.CacheTypeTiered, Remote: remote}
	}
	ctx := context.Background()

	first := NewTestClient(t, emu, tiered)
	container := provisionContainer(t, first)
	db := &docdb.DatabaseHandle{ID: container.DatabaseID}

	assert.True(t, remote.Has(ctx, "container:"+container.Link()))

	second := NewTestClient(t, emu, tiered)
	before := emu.CountRequests(http.MethodGet, "/dbs/")

	got, err := second.Containers().Get(ctx, db, "items")
	require.NoError(t, err)
	assert.Equal(t, container.RID, got.RID)
	assert.Equal(t, before, emu.CountRequests(http.MethodGet, "/dbs/"), "served from the shared layer")

	require.NoError(t, first.Containers().Delete(ctx, db, "items"))
	assert.False(t, remote.Has(ctx, "container:"+container.Link()))
}
