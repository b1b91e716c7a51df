package us

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"stocknet/internal/domain"
	"stocknet/internal/gather"
)

var _ gather.MarketCalendar = (*Calendar)(nil)

// Calendar answers trading-day questions from the Alpaca trading calendar.
// Each year is fetched once and cached. When the API fails and a fallback
// calendar is set, the fallback answers instead.
type Calendar struct {
	client   *alpaca.Client
	fallback gather.MarketCalendar
	log      *slog.Logger

	mu    sync.Mutex
	years map[int]map[string]struct{}
}

// NewCalendar creates a Calendar using the Alpaca trading API credentials.
// fallback may be nil.
func NewCalendar(apiKey, apiSecret, baseURL string, fallback gather.MarketCalendar) *Calendar {
	return &Calendar{
		fallback: fallback,
		log:      slog.Default().With("source", "alpaca-calendar"),
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		years: make(map[int]map[string]struct{}),
	}
}

// IsTradingDay reports whether NYSE holds a regular session on date.
func (c *Calendar) IsTradingDay(ctx context.Context, date string) (bool, error) {
	t, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return false, fmt.Errorf("parsing date %q: %w", date, err)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	days, ok := c.years[t.Year()]
	if !ok {
		cal, err := c.client.GetCalendar(alpaca.GetCalendarRequest{
			Start: time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(t.Year(), 12, 31, 0, 0, 0, 0, time.UTC),
		})
		if err != nil {
			err = classifyAlpacaError(fmt.Errorf("GetCalendar: %w", err))
			if c.fallback == nil {
				return false, err
			}
			c.log.Warn("calendar lookup failed, using fallback", "date", date, "error", err)
			return c.fallback.IsTradingDay(ctx, date)
		}
		days = calendarSet(cal)
		c.years[t.Year()] = days
	}
	_, open := days[date]
	return open, nil
}

func calendarSet(cal []alpaca.CalendarDay) map[string]struct{} {
	days := make(map[string]struct{}, len(cal))
	for _, d := range cal {
		days[d.Date] = struct{}{}
	}
	return days
}
