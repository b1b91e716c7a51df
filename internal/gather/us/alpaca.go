package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stocknet/internal/domain"
	"stocknet/internal/gather"
	"stocknet/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.MarketDataSource = (*SnapshotSource)(nil)

// Trading-day lookbacks used to derive the rolling valuation fields.
const (
	lookbackYear       = 252
	lookbackQuarter    = 63
	lookbackTenDays    = 10
	lookbackFifty      = 50
	lookbackTwoHundred = 200
)

// ---------------------------------------------------------------------------
// SnapshotSource: daily valuation snapshot from the Alpaca market-data API.
// ---------------------------------------------------------------------------

// SnapshotSource builds a domain.Snapshot for a US equity from the Alpaca
// snapshot endpoint plus one year of daily bars. Fundamentals that Alpaca
// does not publish (PE, margins, ratios) are declared null.
type SnapshotSource struct {
	client   *marketdata.Client
	feed     string
	profiles map[string]Profile
	limiter  *util.RateLimiter
	loc      *time.Location
	log      *slog.Logger
}

// NewSnapshotSource creates a SnapshotSource configured with the given
// Alpaca credentials. profiles supplies industry and sector per ticker and
// may be nil.
func NewSnapshotSource(apiKey, apiSecret, dataURL, feed string, profiles map[string]Profile, limiter *util.RateLimiter) (*SnapshotSource, error) {
	opts := marketdata.ClientOpts{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading ET timezone: %w", err)
	}

	return &SnapshotSource{
		client:   marketdata.NewClient(opts),
		feed:     feed,
		profiles: profiles,
		limiter:  limiter,
		loc:      loc,
		log:      slog.Default().With("source", "alpaca-snapshot"),
	}, nil
}

// Snapshot fetches the latest snapshot and the trailing year of daily bars
// for ticker and converts them to the valuation schema. The daily bar must
// belong to date; an older bar means the session is not published yet and
// is reported as transient.
func (s *SnapshotSource) Snapshot(ctx context.Context, ticker, date string) (domain.Snapshot, error) {
	day, err := time.ParseInLocation(domain.DateLayout, date, s.loc)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("parsing date %q: %w", date, err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return domain.Snapshot{}, err
	}
	snap, err := s.client.GetSnapshot(ticker, marketdata.GetSnapshotRequest{
		Feed: marketdata.Feed(s.feed),
	})
	if err != nil {
		return domain.Snapshot{}, classifyAlpacaError(fmt.Errorf("GetSnapshot %s: %w", ticker, err))
	}
	if snap == nil || snap.DailyBar == nil {
		return domain.Snapshot{}, fmt.Errorf("GetSnapshot %s: %w", ticker, domain.ErrNoData)
	}
	if got := snap.DailyBar.Timestamp.In(s.loc).Format(domain.DateLayout); got != date {
		return domain.Snapshot{}, fmt.Errorf("daily bar for %s is %s, want %s: %w", ticker, got, date, domain.ErrTransient)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return domain.Snapshot{}, err
	}
	bars, err := s.client.GetBars(ticker, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      day.AddDate(-1, 0, -7),
		End:        day.AddDate(0, 0, 1),
		Adjustment: marketdata.Split,
		Feed:       marketdata.Feed(s.feed),
	})
	if err != nil {
		return domain.Snapshot{}, classifyAlpacaError(fmt.Errorf("GetBars %s: %w", ticker, err))
	}

	profile := s.profiles[ticker]
	s.log.Debug("snapshot fetched", "ticker", ticker, "date", date, "bars", len(bars))
	return domain.Snapshot{
		Ticker:   ticker,
		Date:     date,
		Industry: profile.Industry,
		Sector:   profile.Sector,
		Fields:   deriveFields(snap, bars),
	}, nil
}

// deriveFields maps an Alpaca snapshot and trailing daily bars (oldest
// first) onto the valuation schema. Every schema key is present; unknown
// values stay nil.
func deriveFields(snap *marketdata.Snapshot, bars []marketdata.Bar) map[string]*float64 {
	fields := domain.ValuationSchema.EmptyFields()
	set := func(name string, v float64) { fields[name] = &v }

	if b := snap.DailyBar; b != nil {
		set("open", b.Open)
		set("dayLow", b.Low)
		set("dayHigh", b.High)
		set("volume", float64(b.Volume))
		set("currentPrice", b.Close)
	}
	if b := snap.PrevDailyBar; b != nil {
		set("previousClose", b.Close)
	}
	if t := snap.LatestTrade; t != nil && t.Price > 0 {
		set("currentPrice", t.Price)
	}
	if q := snap.LatestQuote; q != nil {
		if q.BidPrice > 0 {
			set("bid", q.BidPrice)
		}
		if q.AskPrice > 0 {
			set("ask", q.AskPrice)
		}
	}

	if len(bars) == 0 {
		return fields
	}
	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = float64(b.Volume)
	}

	if v, ok := meanLast(closes, lookbackFifty); ok {
		set("fiftyDayAverage", v)
	}
	if v, ok := meanLast(closes, lookbackTwoHundred); ok {
		set("twoHundredDayAverage", v)
	}
	if v, ok := meanLast(volumes, lookbackQuarter); ok {
		set("averageVolume", v)
	}
	if v, ok := meanLast(volumes, lookbackTenDays); ok {
		set("averageVolume10days", v)
	}

	year := bars[max(0, len(bars)-lookbackYear):]
	lo, hi := year[0].Low, year[0].High
	for _, b := range year[1:] {
		lo = min(lo, b.Low)
		hi = max(hi, b.High)
	}
	set("fiftyTwoWeekLow", lo)
	set("fiftyTwoWeekHigh", hi)

	return fields
}

// meanLast averages the last n values; it reports false when fewer than n
// values are available.
func meanLast(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	var sum float64
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n), true
}

// classifyAlpacaError wraps throttling and server-side failures with the
// retryable domain errors.
func classifyAlpacaError(err error) error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %w", domain.ErrTransient, err)
		}
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit"):
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") || strings.Contains(msg, "eof"):
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}
