// Package schedule decides when the daily run may start.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stocknet/internal/config"
	"stocknet/internal/domain"
	"stocknet/internal/gather"
	"stocknet/internal/store"
	"stocknet/internal/util"
)

// Scheduler gates the daily run on the wall-clock window, the market
// calendar and the run marker. It never writes the marker.
type Scheduler struct {
	loc        *time.Location
	start, end time.Duration
	calendar   gather.MarketCalendar
	marker     store.RunMarker
	log        *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates a Scheduler from the schedule configuration.
func New(cfg config.Schedule, calendar gather.MarketCalendar, marker store.RunMarker, log *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule timezone: %w", err)
	}
	start, err := config.ParseClock(cfg.WindowStart)
	if err != nil {
		return nil, fmt.Errorf("schedule window_start: %w", err)
	}
	end, err := config.ParseClock(cfg.WindowEnd)
	if err != nil {
		return nil, fmt.Errorf("schedule window_end: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		loc:      loc,
		start:    start,
		end:      end,
		calendar: calendar,
		marker:   marker,
		log:      log,
		now:      time.Now,
		sleep:    util.Sleep,
	}, nil
}

// InWindow reports whether t falls inside the run window. A window whose
// end precedes its start wraps past midnight; equal bounds mean all day.
func (s *Scheduler) InWindow(t time.Time) bool {
	clock := sinceMidnight(t.In(s.loc))
	switch {
	case s.start == s.end:
		return true
	case s.start < s.end:
		return clock >= s.start && clock < s.end
	default:
		return clock >= s.start || clock < s.end
	}
}

// SessionDate returns the trading date a run started at t belongs to. In
// the after-midnight part of a wrapping window that is the previous day.
func (s *Scheduler) SessionDate(t time.Time) string {
	t = t.In(s.loc)
	if s.start > s.end && sinceMidnight(t) < s.end {
		t = t.AddDate(0, 0, -1)
	}
	return t.Format(domain.DateLayout)
}

// NextStart returns the first window opening strictly after t.
func (s *Scheduler) NextStart(t time.Time) time.Time {
	t = t.In(s.loc)
	next := atClock(t, s.start)
	for !next.After(t) {
		next = atClock(next.AddDate(0, 0, 1), s.start)
	}
	return next
}

// WaitForWindow blocks until the wall clock is inside the window and
// returns the time it woke.
func (s *Scheduler) WaitForWindow(ctx context.Context) (time.Time, error) {
	for {
		now := s.now()
		if s.InWindow(now) {
			return now, nil
		}
		next := s.NextStart(now)
		s.log.Info("waiting for run window", "until", next.Format(time.RFC3339))
		if err := s.sleep(ctx, next.Sub(now)); err != nil {
			return time.Time{}, err
		}
	}
}

// WaitForNextWindow sleeps until the next window opening after now.
func (s *Scheduler) WaitForNextWindow(ctx context.Context) error {
	now := s.now()
	next := s.NextStart(now)
	s.log.Info("sleeping until next run window", "until", next.Format(time.RFC3339))
	return s.sleep(ctx, next.Sub(now))
}

// ShouldRunToday waits for the window, then reports the session date and
// whether it still needs a run: the market was open and the run marker is
// not already on that date.
func (s *Scheduler) ShouldRunToday(ctx context.Context) (string, bool, error) {
	now, err := s.WaitForWindow(ctx)
	if err != nil {
		return "", false, err
	}
	date := s.SessionDate(now)

	open, err := s.calendar.IsTradingDay(ctx, date)
	if err != nil {
		return date, false, fmt.Errorf("checking calendar for %s: %w", date, err)
	}
	if !open {
		s.log.Info("market closed, no run", "date", date)
		return date, false, nil
	}

	last, err := s.marker.LastRunDate(ctx)
	if err != nil {
		return date, false, fmt.Errorf("reading run marker: %w", err)
	}
	if last == date {
		s.log.Info("run already completed", "date", date)
		return date, false, nil
	}
	return date, true, nil
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond())
}

func atClock(day time.Time, clock time.Duration) time.Time {
	h := int(clock / time.Hour)
	m := int((clock % time.Hour) / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}
