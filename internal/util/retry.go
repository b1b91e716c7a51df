package util

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds a retried operation. Multiplier <= 1 keeps Delay fixed
// between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	// Retryable decides whether a failed attempt may be repeated. Nil means
	// every error is retryable.
	Retryable func(error) bool
	// OnRetry, when set, is called before sleeping after a failed attempt.
	OnRetry func(attempt int, err error)
}

// Retry calls fn up to p.MaxAttempts times, sleeping p.Delay between
// attempts. It returns the number of attempts made and nil on the first
// success, or the last error once attempts are exhausted or the error is not
// retryable. Sleeps are interrupted by context cancellation.
func Retry(ctx context.Context, p RetryPolicy, fn func(attempt int) error) (int, error) {
	maxAttempts := max(p.MaxAttempts, 1)
	delay := p.Delay

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(attempt)
		if err == nil {
			return attempt, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return attempt, err
		}

		// Don't sleep after the last failed attempt.
		if attempt == maxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if serr := Sleep(ctx, delay); serr != nil {
			return attempt, fmt.Errorf("%w (last attempt: %v)", serr, err)
		}
		if p.Multiplier > 1 {
			delay = time.Duration(float64(delay) * p.Multiplier)
		}
	}
	return maxAttempts, err
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
