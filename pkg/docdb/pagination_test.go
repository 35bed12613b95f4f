package docdb_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

// pagedFetcher serves total numbered documents in pages of size, using the
// index of the next document as the continuation token.
type pagedFetcher struct {
	mutex  sync.Mutex
	total  int
	size   int
	calls  []string
	failAt map[int]error
}

func (f *pagedFetcher) FetchPage(ctx context.Context, continuation string) (*docdb.QueryPage, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.calls = append(f.calls, continuation)

	if err, ok := f.failAt[len(f.calls)]; ok {
		return nil, err
	}

	start := 0
	if continuation != "" {
		var err error

		start, err = strconv.Atoi(continuation)
		if err != nil {
			return nil, err
		}
	}

	end := min(start+f.size, f.total)
	page := &docdb.QueryPage{RequestCharge: 1.5}

	for i := start; i < end; i++ {
		page.Results = append(page.Results, json.RawMessage(fmt.Sprintf(`{"id":"doc-%d","n":%d}`, i, i)))
	}

	if end < f.total {
		page.ContinuationToken = strconv.Itoa(end)
	}

	return page, nil
}

func TestQueryIterator_Pages(t *testing.T) {
	t.Parallel()

	fetcher := &pagedFetcher{total: 10, size: 4}
	it := docdb.NewQueryIterator(fetcher, "")
	ctx := context.Background()

	assert.True(t, it.HasMore())
	assert.Empty(t, it.ContinuationToken())

	var ids []string

	for it.HasMore() {
		page, err := it.NextPage(ctx)
		require.NoError(t, err)

		ids = append(ids, page.IDs()...)
	}

	assert.Len(t, ids, 10)
	assert.Equal(t, 3, it.PagesFetched())
	assert.Equal(t, []string{"", "4", "8"}, fetcher.calls)
	assert.Empty(t, it.ContinuationToken())

	_, err := it.NextPage(ctx)
	require.ErrorIs(t, err, docdb.ErrQueryExhausted)
}

func TestQueryIterator_FailedFetchKeepsPosition(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	fetcher := &pagedFetcher{total: 10, size: 4, failAt: map[int]error{2: boom}}
	it := docdb.NewQueryIterator(fetcher, "")
	ctx := context.Background()

	_, err := it.NextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4", it.ContinuationToken())

	_, err = it.NextPage(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "4", it.ContinuationToken())
	assert.Equal(t, 1, it.PagesFetched())
	assert.True(t, it.HasMore())

	page, err := it.NextPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-4", "doc-5", "doc-6", "doc-7"}, page.IDs())
}

func TestQueryIterator_Resume(t *testing.T) {
	t.Parallel()

	it := docdb.NewQueryIterator(&pagedFetcher{total: 10, size: 4}, "8")

	results, err := it.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestQueryIterator_Close(t *testing.T) {
	t.Parallel()

	it := docdb.NewQueryIterator(&pagedFetcher{total: 10, size: 4}, "")
	it.Close()
	it.Close()

	assert.False(t, it.HasMore())

	_, err := it.NextPage(context.Background())
	require.ErrorIs(t, err, docdb.ErrIteratorClosed)
}

func TestQueryIterator_SingleFetchInFlight(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})

	fetcher := docdb.PageFetcherFunc(func(ctx context.Context, continuation string) (*docdb.QueryPage, error) {
		close(started)
		<-release

		return &docdb.QueryPage{}, nil
	})

	it := docdb.NewQueryIterator(fetcher, "")
	done := make(chan error, 1)

	go func() {
		_, err := it.NextPage(context.Background())
		done <- err
	}()

	<-started

	_, err := it.NextPage(context.Background())
	require.ErrorIs(t, err, docdb.ErrFetchInProgress)

	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first fetch did not complete")
	}

	assert.False(t, it.HasMore())
}

func TestQueryIterator_ForEachPageStopsOnError(t *testing.T) {
	t.Parallel()

	stop := errors.New("stop")
	it := docdb.NewQueryIterator(&pagedFetcher{total: 10, size: 2}, "")
	pages := 0

	err := it.ForEachPage(context.Background(), func(page *docdb.QueryPage) error {
		pages++
		if pages == 2 {
			return stop
		}

		return nil
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 2, pages)
	assert.Equal(t, "4", it.ContinuationToken())
}

func TestItemIterator(t *testing.T) {
	t.Parallel()

	type doc struct {
		ID string `json:"id"`
		N  int    `json:"n"`
	}

	it := docdb.NewItemIterator[doc](docdb.NewQueryIterator(&pagedFetcher{total: 7, size: 3}, ""))
	ctx := context.Background()

	first, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, doc{ID: "doc-0", N: 0}, first)

	rest, err := it.All(ctx)
	require.NoError(t, err)
	require.Len(t, rest, 6)
	assert.Equal(t, 6, rest[5].N)

	_, err = it.Next(ctx)
	require.ErrorIs(t, err, docdb.ErrNoMoreItems)
}

func TestItemIterator_EmptyQuery(t *testing.T) {
	t.Parallel()

	it := docdb.NewItemIterator[map[string]interface{}](docdb.NewQueryIterator(&pagedFetcher{total: 0, size: 3}, ""))

	items, err := it.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestItemIterator_DecodeError(t *testing.T) {
	t.Parallel()

	it := docdb.NewItemIterator[int](docdb.NewQueryIterator(&pagedFetcher{total: 2, size: 2}, ""))

	_, err := it.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing result 0")
}
