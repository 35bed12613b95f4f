package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/internal/emulator"
	dochttp "github.com/fivetwenty-io/docdb-client/internal/http"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

func TestThroughputClient_ReadReplace(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	client := NewTestClient(t, emu)
	ctx := context.Background()

	container := provisionContainer(t, client)

	current, err := client.Throughput().Read(ctx, container)
	require.NoError(t, err)
	assert.Equal(t, 400, current.Throughput)
	assert.False(t, current.ReplacePending)
	assert.Positive(t, current.RequestCharge)

	replaced, err := client.Throughput().Replace(ctx, container, current.Throughput+100)
	require.NoError(t, err)
	assert.Equal(t, 500, replaced.Throughput)

	after, err := client.Throughput().Read(ctx, container)
	require.NoError(t, err)
	assert.Equal(t, current.Throughput+100, after.Throughput)
}

func TestThroughputClient_HandleWithoutRID(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	client := NewTestClient(t, emu)

	container := provisionContainer(t, client)
	bare := &docdb.ContainerHandle{DatabaseID: container.DatabaseID, ID: container.ID, PartitionKeyPath: "/lastName"}

	current, err := client.Throughput().Read(context.Background(), bare)
	require.NoError(t, err)
	assert.Equal(t, 400, current.Throughput)
}

func TestThroughputClient_ReplaceValidation(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{})
	client := NewTestClient(t, emu)
	ctx := context.Background()

	container := provisionContainer(t, client)

	_, err := client.Throughput().Replace(ctx, container, 0)
	require.ErrorIs(t, err, docdb.ErrConfiguration)

	_, err = client.Throughput().Replace(ctx, nil, 500)
	require.ErrorIs(t, err, docdb.ErrContainerRequired)

	_, err = client.Throughput().Replace(ctx, container, 450)
	require.Error(t, err)
	assert.False(t, docdb.IsRetryable(err))
}

func TestThroughputClient_PollUntilApplied(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{PendingReplaceReads: 3})
	client := NewTestClient(t, emu)
	client.throughput.pollInterval = constants.QuickPollInterval

	ctx := context.Background()
	container := provisionContainer(t, client)

	replaced, err := client.Throughput().Replace(ctx, container, 600)
	require.NoError(t, err)
	assert.True(t, replaced.ReplacePending)

	applied, err := client.Throughput().PollUntilApplied(ctx, container)
	require.NoError(t, err)
	assert.False(t, applied.ReplacePending)
	assert.Equal(t, 600, applied.Throughput)
}

func TestThroughputClient_PollTimeout(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{PendingReplaceReads: 1000})
	client := NewTestClient(t, emu)
	client.throughput.pollInterval = constants.QuickPollInterval
	client.throughput.pollTimeout = 50 * time.Millisecond

	ctx := context.Background()
	container := provisionContainer(t, client)

	_, err := client.Throughput().Replace(ctx, container, 600)
	require.NoError(t, err)

	last, err := client.Throughput().PollUntilApplied(ctx, container)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout waiting for throughput replace")
	require.NotNil(t, last)
	assert.True(t, last.ReplacePending)
}

func TestThroughputClient_OfferOnLaterPage(t *testing.T) {
	t.Parallel()

	emu := newTestEmulator(t, emulator.Options{MaxItemCount: 1})
	client := NewTestClient(t, emu)
	ctx := context.Background()

	db, err := client.Databases().CreateIfNotExists(ctx, "paged")
	require.NoError(t, err)

	containers := make([]*docdb.ContainerHandle, 0, 3)

	for i, id := range []string{"a", "b", "c"} {
		container, err := client.Containers().CreateIfNotExists(ctx, db, id, "/lastName", 400+100*i)
		require.NoError(t, err)

		containers = append(containers, container)
	}

	listOffers := func() int {
		count := 0

		for _, req := range emu.Requests() {
			if req.Method == http.MethodGet && req.Path == "/offers" {
				count++
			}
		}

		return count
	}

	before := listOffers()

	for i, container := range containers {
		current, err := client.Throughput().Read(ctx, container)
		require.NoError(t, err)
		assert.Equal(t, 400+100*i, current.Throughput)
	}

	// One offer per page: the offers at positions 0, 1 and 2 need 1, 2 and 3 pages.
	assert.Equal(t, 6, listOffers()-before)
}

func TestThroughputClient_FollowsOfferContinuation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")

		switch {
		case request.URL.Path == "/offers" && request.Header.Get(constants.HeaderContinuation) == "":
			writer.Header().Set(constants.HeaderContinuation, "page-2")
			_ = json.NewEncoder(writer).Encode(map[string]interface{}{
				"Offers": []docdb.Offer{{ID: "other", OfferResourceID: "rid-other"}},
			})
		case request.URL.Path == "/offers" && request.Header.Get(constants.HeaderContinuation) == "page-2":
			_ = json.NewEncoder(writer).Encode(map[string]interface{}{
				"Offers": []docdb.Offer{{ID: "mine", OfferResourceID: "rid-c"}},
			})
		case request.URL.Path == "/offers/mine":
			_ = json.NewEncoder(writer).Encode(docdb.Offer{
				ID:              "mine",
				OfferResourceID: "rid-c",
				Content:         docdb.OfferContent{OfferThroughput: 700},
			})
		default:
			writer.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	httpClient := dochttp.NewClient(server.URL, nil, dochttp.WithRetryConfig(-1, 0, 0))
	throughput := NewThroughputClient(httpClient)

	container := &docdb.ContainerHandle{DatabaseID: "db", ID: "c", PartitionKeyPath: "/id", RID: "rid-c"}

	current, err := throughput.Read(context.Background(), container)
	require.NoError(t, err)
	assert.Equal(t, 700, current.Throughput)
	assert.Equal(t, "mine", current.Offer.ID)
}
