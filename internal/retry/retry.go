// Package retry is the caller-side retry helper: the core never
// retries implicitly, but callers may wrap an operation with Do to
// re-attempt on the taxonomy's retryable failures (deadlocks,
// serialization failures, timeouts, pool exhaustion).
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"sqlmodel/internal/sqlerr"
)

// Options bound the retry loop.
type Options struct {
	// MaxAttempts caps total attempts; 0 means the default of 5.
	MaxAttempts int
	// InitialInterval seeds the exponential backoff; 0 means 100ms.
	InitialInterval time.Duration
	// MaxInterval caps a single backoff wait; 0 means 2s.
	MaxInterval time.Duration
}

func (o Options) normalized() Options {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 5
	}
	if o.InitialInterval == 0 {
		o.InitialInterval = 100 * time.Millisecond
	}
	if o.MaxInterval == 0 {
		o.MaxInterval = 2 * time.Second
	}
	return o
}

// Do runs fn, retrying with exponential backoff while the error is
// retryable and the context is live. Non-retryable errors return
// immediately.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	opts = opts.normalized()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.InitialInterval
	bo.MaxInterval = opts.MaxInterval
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(opts.MaxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if sqlerr.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}
