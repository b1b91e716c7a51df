package util

import (
	"context"
	"time"
)

// TradingCalendar is the offline market calendar: every weekday is a
// trading day. It is used when no calendar API is configured and in tests.
// Exchange holidays are listed explicitly.
type TradingCalendar struct {
	holidays map[string]struct{}
}

// NewTradingCalendar creates a TradingCalendar with the given holiday dates
// (YYYY-MM-DD).
func NewTradingCalendar(holidays ...string) *TradingCalendar {
	h := make(map[string]struct{}, len(holidays))
	for _, d := range holidays {
		h[d] = struct{}{}
	}
	return &TradingCalendar{holidays: h}
}

// IsTradingDay reports whether the market is open on date (YYYY-MM-DD).
func (tc *TradingCalendar) IsTradingDay(_ context.Context, date string) (bool, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return false, err
	}
	if IsWeekend(t) {
		return false, nil
	}
	_, holiday := tc.holidays[date]
	return !holiday, nil
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
