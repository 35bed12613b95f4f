package client

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/docdb-client/internal/emulator"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// family is the record the client tests store.
type family struct {
	ID       string   `json:"id"`
	LastName string   `json:"lastName"`
	District string   `json:"district,omitempty"`
	Children []string `json:"children,omitempty"`
	Address  *address `json:"address,omitempty"`
}

type address struct {
	State  string `json:"state"`
	County string `json:"county"`
	City   string `json:"city"`
}

func newFamily(lastName string) *family {
	return &family{
		ID:       fmt.Sprintf("%s-%s", lastName, uuid.NewString()),
		LastName: lastName,
		District: "WA5",
		Children: []string{"Henriette", "Merriam"},
		Address:  &address{State: "WA", County: "King", City: "Seattle"},
	}
}

// newTestEmulator starts an emulator that is stopped when the test ends.
func newTestEmulator(t *testing.T, opts emulator.Options) *emulator.Emulator {
	t.Helper()

	emu := emulator.New(opts).Start()
	t.Cleanup(emu.Close)

	return emu
}

// NewTestClient creates a client against emu. Transport retries are disabled
// unless mutate turns them back on.
func NewTestClient(t *testing.T, emu *emulator.Emulator, mutate ...func(*docdb.Config)) *Client {
	t.Helper()

	config := &docdb.Config{
		Endpoint:       emu.URL(),
		Key:            emu.Key(),
		RequestTimeout: 5 * time.Second,
		RetryMax:       -1,
	}

	for _, fn := range mutate {
		fn(config)
	}

	client, err := New(context.Background(), config)
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	return client
}

// provisionContainer creates a database and a /lastName container with a unique name.
func provisionContainer(t *testing.T, client *Client) *docdb.ContainerHandle {
	t.Helper()

	ctx := context.Background()

	db, err := client.Databases().CreateIfNotExists(ctx, "db-"+uuid.NewString()[:8])
	require.NoError(t, err)

	container, err := client.Containers().CreateIfNotExists(ctx, db, "items", "/lastName", 400)
	require.NoError(t, err)

	return container
}

// drain reads every page of it and returns the ids in delivery order.
func drain(t *testing.T, it *docdb.QueryIterator) []string {
	t.Helper()

	var ids []string

	for it.HasMore() {
		page, err := it.NextPage(context.Background())
		require.NoError(t, err)

		ids = append(ids, page.IDs()...)
	}

	return ids
}
