package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stocknet/internal/domain"
	"stocknet/internal/store"
)

// TickerIngestor processes one ticker; *Ingestor is the production
// implementation.
type TickerIngestor interface {
	Ingest(ctx context.Context, ticker, date string) domain.IngestOutcome
}

// Controller runs the ticker universe for a date and owns the run marker
// update.
type Controller struct {
	ingestor TickerIngestor
	marker   store.RunMarker
	tickers  []string
	log      *slog.Logger
}

// NewController creates a Controller over tickers, processed in the given
// order.
func NewController(ingestor TickerIngestor, marker store.RunMarker, tickers []string, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		ingestor: ingestor,
		marker:   marker,
		tickers:  append([]string(nil), tickers...),
		log:      log,
	}
}

// Run ingests every ticker sequentially for date. Per-ticker failures do
// not stop the run. The marker is set to date only after every ticker
// reached a terminal state; cancellation or loss of the store returns
// early with the marker untouched.
func (c *Controller) Run(ctx context.Context, date string) (domain.RunSummary, error) {
	summary := domain.RunSummary{Date: date}
	started := time.Now()
	c.log.Info("run start", "date", date, "tickers", len(c.tickers))

	for _, ticker := range c.tickers {
		if err := ctx.Err(); err != nil {
			c.log.Warn("run interrupted", "date", date, "attempted", summary.Attempted(), "tickers", len(c.tickers))
			return summary, err
		}

		o := c.ingestor.Ingest(ctx, ticker, date)
		summary.Add(o)

		if errors.Is(o.Err, domain.ErrStoreUnavailable) {
			c.log.Error("run aborted, store unavailable", "date", date, "ticker", ticker, "error", o.Err)
			return summary, fmt.Errorf("run %s aborted at %s: %w", date, ticker, o.Err)
		}
	}

	if err := ctx.Err(); err != nil {
		c.log.Warn("run interrupted", "date", date, "attempted", summary.Attempted(), "tickers", len(c.tickers))
		return summary, err
	}

	if err := c.marker.SetLastRunDate(ctx, date); err != nil {
		return summary, fmt.Errorf("setting run marker to %s: %w", date, err)
	}

	c.log.Info("run end",
		"date", date,
		"success", summary.Success,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"retried", summary.Retried,
		"elapsed", time.Since(started).Round(time.Second).String(),
	)
	return summary, nil
}
