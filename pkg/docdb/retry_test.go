package docdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

func fastPolicy(attempts int) *docdb.RetryPolicy {
	return &docdb.RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryThrottled_EventuallySucceeds(t *testing.T) {
	t.Parallel()

	calls := 0

	err := docdb.RetryThrottled(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &docdb.ThroughputExceededError{RetryAfter: time.Millisecond}
		}

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryThrottled_GivesUp(t *testing.T) {
	t.Parallel()

	calls := 0

	err := docdb.RetryThrottled(context.Background(), fastPolicy(2), func(ctx context.Context) error {
		calls++

		return &docdb.APIError{StatusCode: 503}
	})
	require.ErrorIs(t, err, docdb.ErrServiceUnavailable)
	assert.Equal(t, 2, calls)
}

func TestRetryThrottled_NonRetryable(t *testing.T) {
	t.Parallel()

	calls := 0

	err := docdb.RetryThrottled(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++

		return &docdb.ConflictError{ResourceLink: "dbs/db"}
	})
	require.ErrorIs(t, err, docdb.ErrConflict)
	assert.Equal(t, 1, calls)
}

func TestRetryThrottled_ContextCancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	policy := &docdb.RetryPolicy{MaxAttempts: 3, MaxDelay: time.Minute}

	err := docdb.RetryThrottled(ctx, policy, func(ctx context.Context) error {
		return &docdb.ThroughputExceededError{RetryAfter: time.Minute}
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "waiting to retry")
}

func TestRetry_ReturnsValue(t *testing.T) {
	t.Parallel()

	calls := 0

	value, err := docdb.Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &docdb.TimeoutError{Op: "read", Err: errors.New("deadline")}
		}

		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0

	_, err := docdb.Retry(context.Background(), &docdb.RetryPolicy{}, func(ctx context.Context) (int, error) {
		calls++

		return 0, &docdb.ThroughputExceededError{}
	})
	require.ErrorIs(t, err, docdb.ErrThroughputExceeded)
	assert.Equal(t, 1, calls)
}

func TestDefaultRetryPolicy(t *testing.T) {
	t.Parallel()

	policy := docdb.DefaultRetryPolicy()
	assert.Positive(t, policy.MaxAttempts)
	assert.Positive(t, policy.BaseDelay)
	assert.GreaterOrEqual(t, policy.MaxDelay, policy.BaseDelay)
}
