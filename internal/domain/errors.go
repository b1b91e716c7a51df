package domain

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrTransient marks a failure worth retrying (timeouts, 5xx, resets).
	ErrTransient = errors.New("transient fetch error")
	// ErrRateLimited is a transient failure caused by an upstream limit.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrNoData means the provider answered but had nothing for the ticker.
	ErrNoData = errors.New("no data available")
	// ErrSchemaMismatch means a snapshot or row does not match the declared
	// valuation schema.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrStoreUnavailable means the store connection itself is gone.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
