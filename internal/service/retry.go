package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/restaurant-reservation/internal/repository"
)

// RetryPolicy bounds how often an operation is attempted.  The wait
// before attempt n+1 is Backoff*n.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// wait sleeps before the next attempt or returns early when ctx ends.
func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	if p.Backoff <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Backoff * time.Duration(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withStoreRetry runs fn until it succeeds, returns a non-transient error
// or the policy is exhausted.  Exhaustion is reported as
// ErrServiceUnavailable.
func withStoreRetry[T any](ctx context.Context, p RetryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	var last error
	for attempt := 1; attempt <= p.attempts(); attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !repository.IsTransient(err) {
			return zero, err
		}
		last = err
		if attempt < p.attempts() {
			if werr := p.wait(ctx, attempt); werr != nil {
				return zero, werr
			}
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrServiceUnavailable, last)
}
