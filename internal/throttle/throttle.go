// Package throttle retries dashboard calls that were rejected with HTTP 429.
package throttle

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"meraki-toolkit/internal/dashboard"
	"meraki-toolkit/internal/logging"
)

// Retrier holds what every retried call reports to
type Retrier struct {
	logger  *logging.Logger
	onRetry func(operation string, wait time.Duration)
}

// New returns a Retrier. onRetry may be nil.
func New(logger *logging.Logger, onRetry func(operation string, wait time.Duration)) *Retrier {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Retrier{logger: logger, onRetry: onRetry}
}

// Call runs fn until it returns anything other than a
// *dashboard.RateLimitedError. Each wait is exactly the server supplied
// RetryAfter; there is no attempt cap and no growth. Cancellation of ctx
// during a wait ends the loop with ctx.Err(). The second return value is the
// number of retries performed.
func Call[T any](ctx context.Context, r *Retrier, operation string, fn func(context.Context) (T, error)) (T, int, error) {
	if r == nil {
		r = New(nil, nil)
	}

	var (
		result  T
		retries int
		wait    time.Duration
	)

	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		return wait, false
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		value, err := fn(ctx)

		var rateLimited *dashboard.RateLimitedError
		if errors.As(err, &rateLimited) {
			retries++
			wait = rateLimited.RetryAfter
			r.logger.LogRetry(operation, retries, wait)
			if r.onRetry != nil {
				r.onRetry(operation, wait)
			}
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}

		result = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, retries, err
	}
	return result, retries, nil
}
