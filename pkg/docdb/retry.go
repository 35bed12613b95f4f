package docdb

import (
	"context"
	"fmt"
	"time"

	"github.com/fivetwenty-io/docdb-client/internal/constants"
)

// RetryPolicy controls RetryThrottled.
type RetryPolicy struct {
	// MaxAttempts includes the first call.
	MaxAttempts int
	// BaseDelay is used when the error carries no retry-after hint. It doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single wait.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the policy used when nil is passed.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: constants.DefaultThrottleRetries,
		BaseDelay:   constants.DefaultRetryWaitMin,
		MaxDelay:    constants.ExtendedRetryWaitMax,
	}
}

// RetryThrottled calls fn until it succeeds, returns a non-retryable error,
// or the attempts run out. Throttled errors wait for the service's retry-after
// hint; timeouts and 5xx errors back off exponentially.
func RetryThrottled(ctx context.Context, policy *RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	return err
}

// Retry is RetryThrottled for functions that return a value.
func Retry[T any](ctx context.Context, policy *RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var (
		value T
		err   error
	)

	for attempt := range attempts {
		value, err = fn(ctx)
		if err == nil || !IsRetryable(err) || attempt == attempts-1 {
			return value, err
		}

		wait := policy.delay(attempt, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()

			return value, fmt.Errorf("waiting to retry: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return value, err
}

func (p *RetryPolicy) delay(attempt int, err error) time.Duration {
	wait, ok := RetryAfter(err)
	if !ok || wait <= 0 {
		wait = p.BaseDelay << attempt
	}

	if p.MaxDelay > 0 && wait > p.MaxDelay {
		wait = p.MaxDelay
	}

	return wait
}
