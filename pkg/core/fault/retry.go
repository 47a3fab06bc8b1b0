package fault

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff schedule for transient retries: 250ms doubling, jittered,
// capped at 60s.
const (
	retryInitial = 250 * time.Millisecond
	retryCap     = 60 * time.Second
)

// NewBackoff builds the pipeline's standard exponential backoff.
func NewBackoff(ctx context.Context, maxAttempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitial
	b.Multiplier = 2
	b.MaxInterval = retryCap
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0 // bounded by attempts, not wall clock
	var bo backoff.BackOff = backoff.WithContext(b, ctx)
	if maxAttempts > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(maxAttempts-1))
	}
	return bo
}

// Retry runs op with the standard backoff, retrying only retryable kinds.
// Non-retryable faults are returned immediately via backoff.Permanent.
func Retry(ctx context.Context, maxAttempts int, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, NewBackoff(ctx, maxAttempts))
}
