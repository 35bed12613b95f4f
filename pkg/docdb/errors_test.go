package docdb_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

func errorHeader(charge, retryAfter string) http.Header {
	header := http.Header{}
	header.Set(constants.HeaderActivityID, "activity-1")
	header.Set(constants.HeaderRequestCharge, charge)

	if retryAfter != "" {
		header.Set(constants.HeaderRetryAfterMS, retryAfter)
	}

	return header
}

func TestErrorFromResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		sentinel  error
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, docdb.ErrAuthentication, false},
		{"forbidden", http.StatusForbidden, docdb.ErrAuthentication, false},
		{"not found", http.StatusNotFound, docdb.ErrNotFound, false},
		{"conflict", http.StatusConflict, docdb.ErrConflict, false},
		{"timeout", http.StatusRequestTimeout, docdb.ErrTimeout, true},
		{"throttled", http.StatusTooManyRequests, docdb.ErrThroughputExceeded, true},
		{"unavailable", http.StatusServiceUnavailable, docdb.ErrServiceUnavailable, true},
		{"internal", http.StatusInternalServerError, docdb.ErrServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			body := []byte(`{"code":"SomeCode","message":"something happened"}`)
			err := docdb.ErrorFromResponse(tt.status, errorHeader("2.5", "100"), body, "dbs/db/colls/items")

			require.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.retryable, docdb.IsRetryable(err))
			assert.InDelta(t, 2.5, docdb.RequestChargeOf(err), 1e-9)
		})
	}
}

func TestErrorFromResponse_BadRequest(t *testing.T) {
	t.Parallel()

	err := docdb.ErrorFromResponse(http.StatusBadRequest, nil, []byte(`{"code":"BadRequest","message":"bad"}`), "dbs/db")

	var apiErr *docdb.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "BadRequest", apiErr.Code)
	assert.Equal(t, "bad", apiErr.Message)
	assert.Equal(t, "dbs/db", apiErr.ResourceLink)
	assert.False(t, docdb.IsRetryable(err))
	assert.NotErrorIs(t, err, docdb.ErrServiceUnavailable)
	assert.Equal(t, "BadRequest: bad (status: 400)", err.Error())
}

func TestErrorFromResponse_EmptyBody(t *testing.T) {
	t.Parallel()

	err := docdb.ErrorFromResponse(http.StatusBadGateway, nil, nil, "")

	var apiErr *docdb.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Code)
}

func TestErrorFromResponse_SubStatus(t *testing.T) {
	t.Parallel()

	header := errorHeader("1", "")
	header.Set(constants.HeaderSubStatus, "1002")

	err := docdb.ErrorFromResponse(http.StatusGone, header, []byte(`{"code":"Gone","message":"moved"}`), "")
	assert.Contains(t, err.Error(), "substatus: 1002")
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	err := docdb.ErrorFromResponse(http.StatusTooManyRequests, errorHeader("0.5", "250"), nil, "dbs/db/colls/items/docs")

	wait, ok := docdb.RetryAfter(fmt.Errorf("creating item: %w", err))
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, wait)
	assert.True(t, docdb.IsThroughputExceeded(err))

	_, ok = docdb.RetryAfter(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, docdb.IsRetryable(nil))
	assert.False(t, docdb.IsRetryable(context.Canceled))
	assert.False(t, docdb.IsRetryable(&docdb.TimeoutError{Op: "query", Err: context.Canceled}))
	assert.True(t, docdb.IsRetryable(&docdb.TimeoutError{Op: "query", Err: context.DeadlineExceeded}))
	assert.False(t, docdb.IsRetryable(&docdb.ConfigurationError{Field: "Endpoint", Reason: "missing host"}))
	assert.False(t, docdb.IsRetryable(&docdb.SchemaConflictError{}))
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		`container "dbs/db/colls/items" exists with partition key path "/lastName", requested "/district"`,
		(&docdb.SchemaConflictError{ContainerLink: "dbs/db/colls/items", ExistingPath: "/lastName", RequestedPath: "/district"}).Error())
	assert.Equal(t, `invalid query "SELEC"`, (&docdb.InvalidQueryError{Query: "SELEC"}).Error())
	assert.Equal(t, `item has no value at partition key path "/lastName"`,
		(&docdb.PartitionKeyMismatchError{Path: "/lastName", Missing: true}).Error())
	assert.Equal(t, "configuration error: Endpoint: missing host",
		(&docdb.ConfigurationError{Field: "Endpoint", Reason: "missing host"}).Error())
	assert.Equal(t, "query timed out", (&docdb.TimeoutError{Op: "query"}).Error())

	mismatch := &docdb.PartitionKeyMismatchError{
		Path:     "/lastName",
		Item:     docdb.NewPartitionKey("Andersen"),
		Supplied: docdb.NewPartitionKey("Smith"),
	}
	assert.Contains(t, mismatch.Error(), `["Andersen"]`)
	assert.Contains(t, mismatch.Error(), `["Smith"]`)
	require.ErrorIs(t, mismatch, docdb.ErrPartitionKeyMismatch)
}
