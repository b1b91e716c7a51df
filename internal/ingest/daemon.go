package ingest

import (
	"context"
	"log/slog"
	"time"

	"stocknet/internal/domain"
	"stocknet/internal/util"
)

// Gate decides whether and for which date a run should start.
// *schedule.Scheduler implements it.
type Gate interface {
	ShouldRunToday(ctx context.Context) (string, bool, error)
	WaitForNextWindow(ctx context.Context) error
}

// Runner runs the universe for one date.
type Runner interface {
	Run(ctx context.Context, date string) (domain.RunSummary, error)
}

// DefaultRetryAfter is how long the daemon waits before re-checking after
// a failed schedule check or an aborted run.
const DefaultRetryAfter = time.Hour

// Daemon repeats the schedule check and the run until its context ends.
type Daemon struct {
	gate       Gate
	runner     Runner
	retryAfter time.Duration
	sleep      func(context.Context, time.Duration) error
	log        *slog.Logger
}

// NewDaemon creates a Daemon. retryAfter <= 0 uses DefaultRetryAfter.
func NewDaemon(gate Gate, runner Runner, retryAfter time.Duration, log *slog.Logger) *Daemon {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	if log == nil {
		log = slog.Default()
	}
	return &Daemon{gate: gate, runner: runner, retryAfter: retryAfter, sleep: util.Sleep, log: log}
}

// Run blocks until ctx is cancelled. Cancellation is a clean shutdown and
// returns nil.
func (d *Daemon) Run(ctx context.Context) error {
	for {
		date, ok, err := d.gate.ShouldRunToday(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			d.log.Error("schedule check failed", "error", err, "retryIn", d.retryAfter.String())
			if d.sleep(ctx, d.retryAfter) != nil {
				return nil
			}
			continue
		}

		if ok {
			if _, err := d.runner.Run(ctx, date); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.log.Error("run failed", "date", date, "error", err, "retryIn", d.retryAfter.String())
				if d.sleep(ctx, d.retryAfter) != nil {
					return nil
				}
				continue
			}
		}

		if d.gate.WaitForNextWindow(ctx) != nil {
			return nil
		}
	}
}
