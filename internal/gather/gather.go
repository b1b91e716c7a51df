// Package gather defines the external data collaborators the ingestion
// pipeline pulls from. Implementations live in sub-packages per market.
package gather

import (
	"context"

	"stocknet/internal/domain"
)

// MarketDataSource returns the valuation snapshot of a ticker for a date.
// Implementations enforce their own per-call timeouts and wrap retryable
// failures with domain.ErrTransient or domain.ErrRateLimited.
type MarketDataSource interface {
	Snapshot(ctx context.Context, ticker, date string) (domain.Snapshot, error)
}

// NewsSource returns the articles published about a ticker around a date.
type NewsSource interface {
	Articles(ctx context.Context, ticker, date string) ([]domain.Article, error)
}

// MarketCalendar answers whether the market was open on a date.
type MarketCalendar interface {
	IsTradingDay(ctx context.Context, date string) (bool, error)
}
