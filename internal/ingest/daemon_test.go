package ingest

import (
	"context"
	"testing"
	"time"

	"stocknet/internal/domain"
)

type fakeGate struct {
	dates  []string
	checks int
	waits  int
	cancel context.CancelFunc
	// stopAfter cancels the context on the given WaitForNextWindow call.
	stopAfter int
}

func (g *fakeGate) ShouldRunToday(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	date := g.dates[min(g.checks, len(g.dates)-1)]
	g.checks++
	return date, true, nil
}

func (g *fakeGate) WaitForNextWindow(ctx context.Context) error {
	g.waits++
	if g.waits >= g.stopAfter {
		g.cancel()
		return ctx.Err()
	}
	return nil
}

type fakeRunner struct {
	errs []error
	runs []string
}

func (r *fakeRunner) Run(_ context.Context, date string) (domain.RunSummary, error) {
	i := len(r.runs)
	r.runs = append(r.runs, date)
	if i < len(r.errs) {
		return domain.RunSummary{Date: date}, r.errs[i]
	}
	return domain.RunSummary{Date: date}, nil
}

func TestDaemonRunsEachWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := &fakeGate{dates: []string{"2024-06-11", "2024-06-12"}, cancel: cancel, stopAfter: 2}
	runner := &fakeRunner{}
	d := NewDaemon(gate, runner, time.Minute, quietLog)

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() = %v, want nil on shutdown", err)
	}
	if len(runner.runs) != 2 || runner.runs[0] != "2024-06-11" || runner.runs[1] != "2024-06-12" {
		t.Errorf("runs = %v", runner.runs)
	}
}

func TestDaemonRetriesFailedRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gate := &fakeGate{dates: []string{"2024-06-11"}, cancel: cancel, stopAfter: 1}
	runner := &fakeRunner{errs: []error{domain.ErrStoreUnavailable}}
	d := NewDaemon(gate, runner, time.Minute, quietLog)
	var slept []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}

	if err := d.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(runner.runs) != 2 {
		t.Errorf("runs = %v, want a retry of the failed day", runner.runs)
	}
	if len(slept) != 1 || slept[0] != time.Minute {
		t.Errorf("slept = %v, want one retry delay", slept)
	}
}

func TestDaemonStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gate := &fakeGate{dates: []string{"2024-06-11"}, cancel: cancel, stopAfter: 1}
	runner := &fakeRunner{}
	if err := NewDaemon(gate, runner, 0, quietLog).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(runner.runs) != 0 {
		t.Errorf("runs = %v, want none", runner.runs)
	}
}
