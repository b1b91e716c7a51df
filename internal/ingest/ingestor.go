// Package ingest runs the daily per-ticker pipeline: fetch the valuation
// snapshot and news, score sentiment, and persist one row per ticker-day.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stocknet/internal/domain"
	"stocknet/internal/gather"
	"stocknet/internal/sentiment"
	"stocknet/internal/store"
	"stocknet/internal/util"
)

// Retry settings for a single ticker.
type RetryOptions struct {
	Attempts int
	Delay    time.Duration
}

// Ingestor processes one ticker for one date.
type Ingestor struct {
	market     gather.MarketDataSource
	news       gather.NewsSource
	aggregator *sentiment.Aggregator
	rows       store.RowStore
	schema     domain.Schema
	retry      RetryOptions
	log        *slog.Logger
}

// NewIngestor creates an Ingestor that validates rows against
// domain.ValuationSchema.
func NewIngestor(market gather.MarketDataSource, news gather.NewsSource, agg *sentiment.Aggregator,
	rows store.RowStore, retry RetryOptions, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		market:     market,
		news:       news,
		aggregator: agg,
		rows:       rows,
		schema:     domain.ValuationSchema,
		retry:      retry,
		log:        log,
	}
}

type stage string

const (
	stageFetch     stage = "fetch"
	stageSentiment stage = "sentiment"
	stageStore     stage = "store"
)

// stageError tags an attempt failure with the step that produced it.
type stageError struct {
	stage stage
	err   error
}

func (e *stageError) Error() string { return string(e.stage) + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// Ingest fetches, scores and stores ticker for date. Transient fetch and
// store failures retry the whole ticker with a fixed delay. A row that is
// already stored yields StatusSkipped without contacting any provider.
func (i *Ingestor) Ingest(ctx context.Context, ticker, date string) domain.IngestOutcome {
	out := domain.IngestOutcome{Ticker: ticker}
	log := i.log.With("ticker", ticker, "date", date)

	exists, err := i.rows.Exists(ctx, ticker, date)
	if err != nil {
		return i.fail(log, out, &stageError{stageStore, err})
	}
	if exists {
		out.Status = domain.StatusSkipped
		out.Reason = store.AlreadyExists.String()
		log.Info("ticker skipped", "reason", out.Reason)
		return out
	}

	log.Info("ticker pull")
	var (
		result store.InsertResult
		sent   sentiment.Result
	)
	policy := util.RetryPolicy{
		MaxAttempts: i.retry.Attempts,
		Delay:       i.retry.Delay,
		Retryable:   domain.IsTransient,
		OnRetry: func(attempt int, err error) {
			log.Warn("ticker retry", "attempt", attempt, "delay", i.retry.Delay.String(), "error", err)
		},
	}
	out.Attempts, err = util.Retry(ctx, policy, func(int) error {
		var err error
		result, sent, err = i.attempt(ctx, ticker, date)
		return err
	})
	if err != nil {
		if domain.IsTransient(err) && out.Attempts >= i.retry.Attempts {
			log.Warn("retry exhausted", "attempts", out.Attempts, "error", err)
		}
		return i.fail(log, out, err)
	}

	switch result {
	case store.AlreadyExists:
		out.Status = domain.StatusSkipped
		out.Reason = result.String()
		log.Info("ticker skipped", "reason", out.Reason, "attempts", out.Attempts)
	default:
		out.Status = domain.StatusSuccess
		log.Info("ticker success", "attempts", out.Attempts, "sentiment", sent.Value,
			"fallback", sent.Fallback, "scored", sent.Scored, "discarded", sent.Discarded)
	}
	return out
}

// attempt runs one pass of the pipeline for ticker.
func (i *Ingestor) attempt(ctx context.Context, ticker, date string) (store.InsertResult, sentiment.Result, error) {
	snap, err := i.market.Snapshot(ctx, ticker, date)
	if err != nil {
		return store.Rejected, sentiment.Result{}, &stageError{stageFetch, err}
	}
	values, err := i.schema.Vector(snap.Fields)
	if err != nil {
		return store.Rejected, sentiment.Result{}, &stageError{stageFetch, fmt.Errorf("snapshot for %s: %w", ticker, err)}
	}

	articles, err := i.news.Articles(ctx, ticker, date)
	if err != nil {
		if ctx.Err() != nil {
			return store.Rejected, sentiment.Result{}, &stageError{stageFetch, ctx.Err()}
		}
		i.log.Warn("news unavailable, continuing without articles", "ticker", ticker, "error", err)
		articles = nil
	}

	sent, err := i.aggregator.Aggregate(ctx, ticker, articles)
	if err != nil {
		return store.Rejected, sentiment.Result{}, &stageError{stageSentiment, err}
	}

	raw, err := domain.EncodeArticles(articles)
	if err != nil {
		return store.Rejected, sent, &stageError{stageStore, err}
	}

	row := domain.TickerRow{
		Ticker:            ticker,
		Date:              date,
		Industry:          snap.Industry,
		Sector:            snap.Sector,
		SchemaVersion:     i.schema.Version,
		Values:            values,
		Sentiment:         sent.Value,
		SentimentFallback: sent.Fallback,
		RawNews:           raw,
	}
	result, err := i.rows.Insert(ctx, row)
	if err != nil {
		return result, sent, &stageError{stageStore, err}
	}
	return result, sent, nil
}

// fail records a Failed outcome with a reason derived from err.
func (i *Ingestor) fail(log *slog.Logger, out domain.IngestOutcome, err error) domain.IngestOutcome {
	out.Status = domain.StatusFailed
	out.Err = err
	out.Reason = failureReason(err)
	if out.Attempts == 0 {
		out.Attempts = 1
	}
	log.Error("ticker failed", "reason", out.Reason, "attempts", out.Attempts, "error", err)
	return out
}

func failureReason(err error) string {
	var se *stageError
	switch {
	case errors.Is(err, context.Canceled):
		return domain.ReasonCancelled
	case errors.Is(err, domain.ErrStoreUnavailable):
		return domain.ReasonStoreLost
	case errors.Is(err, domain.ErrSchemaMismatch):
		return domain.ReasonSchemaMismatch
	case errors.As(err, &se) && se.stage == stageStore:
		return domain.ReasonStoreFailed
	case domain.IsTransient(err):
		return domain.ReasonFetchTransient
	default:
		return domain.ReasonFetchFailed
	}
}
