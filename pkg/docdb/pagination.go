package docdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
)

// Static errors for err113 compliance.
var (
	ErrIteratorClosed = errors.New("query iterator closed")
	ErrTooManyPages   = errors.New("query exceeded maximum page count")
)

// PageFetcher fetches the page that starts at continuation. An empty
// continuation requests the first page.
type PageFetcher interface {
	FetchPage(ctx context.Context, continuation string) (*QueryPage, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, continuation string) (*QueryPage, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, continuation string) (*QueryPage, error) {
	return f(ctx, continuation)
}

// QueryIterator is a lazy, pull-based sequence of query pages.
//
// Only one page fetch may be outstanding at a time; a concurrent NextPage
// returns ErrFetchInProgress. A failed fetch leaves the continuation token
// where it was, so calling NextPage again (or starting a new iterator from
// ContinuationToken) resumes at the first unread page.
type QueryIterator struct {
	fetcher PageFetcher

	mutex        sync.Mutex
	fetching     bool
	started      bool
	exhausted    bool
	closed       bool
	continuation string
	pages        int
}

// NewQueryIterator creates an iterator. A non-empty continuation resumes a
// previous iteration.
func NewQueryIterator(fetcher PageFetcher, continuation string) *QueryIterator {
	return &QueryIterator{
		fetcher:      fetcher,
		continuation: continuation,
	}
}

// NextPage fetches the next page. It returns ErrQueryExhausted once the last
// page has been delivered.
func (it *QueryIterator) NextPage(ctx context.Context) (*QueryPage, error) {
	it.mutex.Lock()

	switch {
	case it.closed:
		it.mutex.Unlock()

		return nil, ErrIteratorClosed
	case it.exhausted:
		it.mutex.Unlock()

		return nil, ErrQueryExhausted
	case it.fetching:
		it.mutex.Unlock()

		return nil, ErrFetchInProgress
	}

	it.fetching = true
	continuation := it.continuation
	it.mutex.Unlock()

	page, err := it.fetcher.FetchPage(ctx, continuation)

	it.mutex.Lock()
	defer it.mutex.Unlock()

	it.fetching = false

	if err != nil {
		return nil, err
	}

	it.started = true
	it.pages++
	it.continuation = page.ContinuationToken
	it.exhausted = page.ContinuationToken == ""

	return page, nil
}

// HasMore reports whether another page may be available.
func (it *QueryIterator) HasMore() bool {
	it.mutex.Lock()
	defer it.mutex.Unlock()

	return !it.exhausted && !it.closed
}

// ContinuationToken returns the token that resumes after the last delivered page.
// It is empty before the first page and after the last one.
func (it *QueryIterator) ContinuationToken() string {
	it.mutex.Lock()
	defer it.mutex.Unlock()

	return it.continuation
}

// PagesFetched returns the number of pages delivered so far.
func (it *QueryIterator) PagesFetched() int {
	it.mutex.Lock()
	defer it.mutex.Unlock()

	return it.pages
}

// Close stops the iteration. It is safe to call between page fetches and
// more than once.
func (it *QueryIterator) Close() {
	it.mutex.Lock()
	defer it.mutex.Unlock()

	it.closed = true
}

// ForEachPage calls fn for every remaining page. Iteration stops at the first
// error from the fetcher or from fn.
func (it *QueryIterator) ForEachPage(ctx context.Context, fn func(page *QueryPage) error) error {
	for it.HasMore() {
		if it.PagesFetched() >= constants.MaxPages {
			return fmt.Errorf("%w: %d", ErrTooManyPages, constants.MaxPages)
		}

		page, err := it.NextPage(ctx)
		if err != nil {
			return err
		}

		err = fn(page)
		if err != nil {
			return err
		}
	}

	return nil
}

// All collects the results of every remaining page.
func (it *QueryIterator) All(ctx context.Context) ([]json.RawMessage, error) {
	var results []json.RawMessage

	err := it.ForEachPage(ctx, func(page *QueryPage) error {
		results = append(results, page.Results...)

		return nil
	})
	if err != nil {
		return results, err
	}

	return results, nil
}

// ItemIterator yields decoded items one at a time across pages.
type ItemIterator[T any] struct {
	pages  *QueryIterator
	buffer []T
	index  int
}

// NewItemIterator wraps a page iterator.
func NewItemIterator[T any](pages *QueryIterator) *ItemIterator[T] {
	return &ItemIterator[T]{pages: pages}
}

// Next returns the next item, fetching pages as needed. It returns
// ErrNoMoreItems when the query is exhausted.
func (it *ItemIterator[T]) Next(ctx context.Context) (T, error) {
	var zero T

	for it.index >= len(it.buffer) {
		if !it.pages.HasMore() {
			return zero, ErrNoMoreItems
		}

		page, err := it.pages.NextPage(ctx)
		if err != nil {
			if errors.Is(err, ErrQueryExhausted) {
				return zero, ErrNoMoreItems
			}

			return zero, err
		}

		items, err := DecodePage[T](page)
		if err != nil {
			return zero, err
		}

		it.buffer = items
		it.index = 0
	}

	item := it.buffer[it.index]
	it.index++

	return item, nil
}

// All drains the iterator.
func (it *ItemIterator[T]) All(ctx context.Context) ([]T, error) {
	var items []T

	for {
		item, err := it.Next(ctx)
		if errors.Is(err, ErrNoMoreItems) {
			return items, nil
		}

		if err != nil {
			return items, err
		}

		items = append(items, item)
	}
}
