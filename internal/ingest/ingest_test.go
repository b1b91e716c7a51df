package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stocknet/internal/domain"
	"stocknet/internal/sentiment"
	"stocknet/internal/store"
	"stocknet/internal/util"
)

const testDate = "2024-06-11"

var quietLog = util.NewLogger("error", "text", io.Discard)

// fakeMarket returns a well-formed snapshot unless told otherwise.
type fakeMarket struct {
	transientFailures map[string]int // failures left before success
	permanent         map[string]error
	dropField         map[string]string
	calls             map[string]int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		transientFailures: map[string]int{},
		permanent:         map[string]error{},
		dropField:         map[string]string{},
		calls:             map[string]int{},
	}
}

func (m *fakeMarket) Snapshot(_ context.Context, ticker, date string) (domain.Snapshot, error) {
	m.calls[ticker]++
	if err := m.permanent[ticker]; err != nil {
		return domain.Snapshot{}, err
	}
	if m.transientFailures[ticker] > 0 {
		m.transientFailures[ticker]--
		return domain.Snapshot{}, fmt.Errorf("GetSnapshot %s: %w", ticker, domain.ErrTransient)
	}
	fields := domain.ValuationSchema.EmptyFields()
	price := 100.0
	fields["currentPrice"] = &price
	if name := m.dropField[ticker]; name != "" {
		delete(fields, name)
	}
	return domain.Snapshot{Ticker: ticker, Date: date, Sector: "Technology", Fields: fields}, nil
}

type fakeNews struct {
	articles map[string][]domain.Article
	err      error
}

func (n *fakeNews) Articles(_ context.Context, ticker, _ string) ([]domain.Article, error) {
	if n.err != nil {
		return nil, n.err
	}
	return n.articles[ticker], nil
}

// titleCompleter replies with the score registered for the article title
// found in the prompt.
type titleCompleter map[string]string

func (c titleCompleter) Complete(_ context.Context, prompt string) (string, error) {
	for title, reply := range c {
		if strings.Contains(prompt, title) {
			return reply, nil
		}
	}
	return sentiment.NoneToken, nil
}

type memMarker struct {
	date string
	sets int
}

func (m *memMarker) LastRunDate(context.Context) (string, error) { return m.date, nil }

func (m *memMarker) SetLastRunDate(_ context.Context, date string) error {
	m.date = date
	m.sets++
	return nil
}

type harness struct {
	store    *store.SQLiteStore
	market   *fakeMarket
	news     *fakeNews
	ingestor *Ingestor
}

func newHarness(t *testing.T, completer sentiment.Completer) *harness {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "ingest.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	h := &harness{store: s, market: newFakeMarket(), news: &fakeNews{articles: map[string][]domain.Article{}}}
	agg := sentiment.NewAggregator(completer, quietLog)
	h.ingestor = NewIngestor(h.market, h.news, agg, s, RetryOptions{Attempts: 3}, quietLog)
	return h
}

func (h *harness) rows(t *testing.T) map[string]domain.TickerRow {
	t.Helper()
	all, err := h.store.ReadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]domain.TickerRow, len(all))
	for _, r := range all {
		out[r.Ticker+"/"+r.Date] = r
	}
	return out
}

func TestRunScenario(t *testing.T) {
	h := newHarness(t, titleCompleter{"AAA rallies": "8", "AAA steady": "6"})
	h.news.articles["AAA"] = []domain.Article{
		{Title: "AAA rallies", Body: "up", Link: "https://n/1"},
		{Title: "AAA steady", Body: "flat", Link: "https://n/2"},
	}
	h.market.transientFailures["BBB"] = 2

	ctrl := NewController(h.ingestor, h.store, []string{"AAA", "BBB"}, quietLog)
	summary, err := ctrl.Run(context.Background(), testDate)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if summary.Success != 2 || summary.Failed != 0 || summary.Retried != 1 {
		t.Errorf("summary = %+v, want 2 success (1 retried), 0 failed", summary)
	}
	if summary.Outcomes[1].Attempts != 3 {
		t.Errorf("BBB attempts = %d, want 3", summary.Outcomes[1].Attempts)
	}

	rows := h.rows(t)
	aaa, ok := rows["AAA/"+testDate]
	if !ok {
		t.Fatal("AAA row missing")
	}
	if aaa.Sentiment != 7.0 || aaa.SentimentFallback {
		t.Errorf("AAA sentiment = %v (fallback %v), want 7", aaa.Sentiment, aaa.SentimentFallback)
	}
	news, err := domain.DecodeArticles(aaa.RawNews)
	if err != nil || len(news) != 2 {
		t.Errorf("AAA raw news = %v, %v", news, err)
	}

	bbb, ok := rows["BBB/"+testDate]
	if !ok {
		t.Fatal("BBB row missing")
	}
	if bbb.Sentiment != domain.NeutralSentiment || !bbb.SentimentFallback {
		t.Errorf("BBB sentiment = %v (fallback %v), want fallback 5", bbb.Sentiment, bbb.SentimentFallback)
	}

	last, err := h.store.LastRunDate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if last != testDate {
		t.Errorf("LastRunDate = %q, want %q", last, testDate)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctrl := NewController(h.ingestor, h.store, []string{"AAA", "BBB"}, quietLog)

	if _, err := ctrl.Run(context.Background(), testDate); err != nil {
		t.Fatal(err)
	}
	summary, err := ctrl.Run(context.Background(), testDate)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Skipped != 2 || summary.Success != 0 {
		t.Errorf("second run summary = %+v, want 2 skipped", summary)
	}
	if h.market.calls["AAA"] != 1 || h.market.calls["BBB"] != 1 {
		t.Errorf("provider calls = %v, want one per ticker", h.market.calls)
	}
	if n := len(h.rows(t)); n != 2 {
		t.Errorf("stored rows = %d, want 2", n)
	}
}

func TestRetryBound(t *testing.T) {
	h := newHarness(t, nil)
	h.market.transientFailures["CCC"] = 100

	ctrl := NewController(h.ingestor, h.store, []string{"CCC", "DDD"}, quietLog)
	summary, err := ctrl.Run(context.Background(), testDate)
	if err != nil {
		t.Fatal(err)
	}

	if h.market.calls["CCC"] != 3 {
		t.Errorf("CCC attempted %d times, want 3", h.market.calls["CCC"])
	}
	ccc := summary.Outcomes[0]
	if ccc.Status != domain.StatusFailed || ccc.Reason != domain.ReasonFetchTransient || ccc.Attempts != 3 {
		t.Errorf("CCC outcome = %+v", ccc)
	}
	if summary.Outcomes[1].Status != domain.StatusSuccess {
		t.Errorf("DDD outcome = %+v, want success", summary.Outcomes[1])
	}

	// A run with failures still completes the day.
	if last, _ := h.store.LastRunDate(context.Background()); last != testDate {
		t.Errorf("LastRunDate = %q, want %q", last, testDate)
	}
}

func TestPermanentFetchErrorNotRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.market.permanent["EEE"] = errors.New("symbol not found")

	o := h.ingestor.Ingest(context.Background(), "EEE", testDate)
	if o.Status != domain.StatusFailed || o.Reason != domain.ReasonFetchFailed || o.Attempts != 1 {
		t.Errorf("outcome = %+v", o)
	}
	if h.market.calls["EEE"] != 1 {
		t.Errorf("calls = %d, want 1", h.market.calls["EEE"])
	}
}

func TestSchemaRejection(t *testing.T) {
	h := newHarness(t, nil)
	h.market.dropField["FFF"] = "marketCap"

	o := h.ingestor.Ingest(context.Background(), "FFF", testDate)
	if o.Status != domain.StatusFailed || o.Reason != domain.ReasonSchemaMismatch {
		t.Errorf("outcome = %+v, want schema_mismatch failure", o)
	}
	if o.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", o.Attempts)
	}
	exists, err := h.store.Exists(context.Background(), "FFF", testDate)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("rejected row was persisted")
	}
}

func TestNewsFailureDegradesToNoArticles(t *testing.T) {
	h := newHarness(t, titleCompleter{})
	h.news.err = fmt.Errorf("google: %w", domain.ErrTransient)

	o := h.ingestor.Ingest(context.Background(), "GGG", testDate)
	if o.Status != domain.StatusSuccess || o.Attempts != 1 {
		t.Fatalf("outcome = %+v, want success on first attempt", o)
	}
	row := h.rows(t)["GGG/"+testDate]
	if !row.SentimentFallback || string(row.RawNews) != "[]" {
		t.Errorf("row sentiment fallback = %v raw news = %s", row.SentimentFallback, row.RawNews)
	}
}

// cancellingIngestor cancels the run context once a given ticker finishes.
type cancellingIngestor struct {
	inner  TickerIngestor
	after  string
	cancel context.CancelFunc
}

func (c *cancellingIngestor) Ingest(ctx context.Context, ticker, date string) domain.IngestOutcome {
	o := c.inner.Ingest(ctx, ticker, date)
	if ticker == c.after {
		c.cancel()
	}
	return o
}

func TestMarkerUnsetAfterInterruption(t *testing.T) {
	h := newHarness(t, nil)
	marker := &memMarker{date: "2024-06-10"}
	tickers := []string{"AAA", "BBB", "CCC"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupted := NewController(&cancellingIngestor{inner: h.ingestor, after: "AAA", cancel: cancel}, marker, tickers, quietLog)

	summary, err := interrupted.Run(ctx, testDate)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if summary.Attempted() != 1 {
		t.Errorf("attempted = %d, want 1", summary.Attempted())
	}
	if marker.date != "2024-06-10" || marker.sets != 0 {
		t.Errorf("marker = %+v, want untouched", marker)
	}

	restarted := NewController(h.ingestor, marker, tickers, quietLog)
	summary, err = restarted.Run(context.Background(), testDate)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Outcomes[0].Status != domain.StatusSkipped {
		t.Errorf("AAA after restart = %+v, want skipped", summary.Outcomes[0])
	}
	if summary.Success != 2 {
		t.Errorf("success after restart = %d, want 2", summary.Success)
	}
	if marker.date != testDate {
		t.Errorf("marker = %q, want %q", marker.date, testDate)
	}
	if h.market.calls["AAA"] != 1 {
		t.Errorf("AAA fetched %d times, want 1", h.market.calls["AAA"])
	}
}

func TestStoreLossAbortsRun(t *testing.T) {
	h := newHarness(t, nil)
	marker := &memMarker{}
	if err := h.store.Close(); err != nil {
		t.Fatal(err)
	}

	ctrl := NewController(h.ingestor, marker, []string{"AAA", "BBB"}, quietLog)
	summary, err := ctrl.Run(context.Background(), testDate)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("Run() error = %v, want ErrStoreUnavailable", err)
	}
	if summary.Attempted() != 1 || summary.Outcomes[0].Reason != domain.ReasonStoreLost {
		t.Errorf("summary = %+v", summary)
	}
	if marker.sets != 0 {
		t.Error("marker was updated after store loss")
	}
}

// faultyStore wraps a real store and fails Insert or Exists for one ticker.
type faultyStore struct {
	*store.SQLiteStore
	ticker    string
	insertErr error
	existsErr error
}

func (f *faultyStore) Insert(ctx context.Context, row domain.TickerRow) (store.InsertResult, error) {
	if row.Ticker == f.ticker && f.insertErr != nil {
		return store.Rejected, f.insertErr
	}
	return f.SQLiteStore.Insert(ctx, row)
}

func (f *faultyStore) Exists(ctx context.Context, ticker, date string) (bool, error) {
	if ticker == f.ticker && f.existsErr != nil {
		return false, f.existsErr
	}
	return f.SQLiteStore.Exists(ctx, ticker, date)
}

func TestInsertFailureDoesNotStopRun(t *testing.T) {
	h := newHarness(t, nil)
	rows := &faultyStore{SQLiteStore: h.store, ticker: "AAA", insertErr: errors.New("disk quota exceeded")}
	ingestor := NewIngestor(h.market, h.news, sentiment.NewAggregator(nil, quietLog), rows, RetryOptions{Attempts: 3}, quietLog)

	ctrl := NewController(ingestor, h.store, []string{"AAA", "BBB"}, quietLog)
	summary, err := ctrl.Run(context.Background(), testDate)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	aaa := summary.Outcomes[0]
	if aaa.Status != domain.StatusFailed || aaa.Reason != domain.ReasonStoreFailed || aaa.Attempts != 1 {
		t.Errorf("AAA outcome = %+v, want store_failed after one attempt", aaa)
	}
	if summary.Outcomes[1].Status != domain.StatusSuccess {
		t.Errorf("BBB outcome = %+v, want success", summary.Outcomes[1])
	}
	if _, ok := h.rows(t)["AAA/"+testDate]; ok {
		t.Error("AAA row stored despite insert failure")
	}
	if last, _ := h.store.LastRunDate(context.Background()); last != testDate {
		t.Errorf("LastRunDate = %q, want %q", last, testDate)
	}
}

func TestExistsFailureIsStoreFailure(t *testing.T) {
	h := newHarness(t, nil)
	rows := &faultyStore{SQLiteStore: h.store, ticker: "AAA", existsErr: fmt.Errorf("database is locked: %w", domain.ErrTransient)}
	ingestor := NewIngestor(h.market, h.news, sentiment.NewAggregator(nil, quietLog), rows, RetryOptions{Attempts: 3}, quietLog)

	o := ingestor.Ingest(context.Background(), "AAA", testDate)
	if o.Status != domain.StatusFailed || o.Reason != domain.ReasonStoreFailed {
		t.Errorf("outcome = %+v, want store_failed", o)
	}
	if h.market.calls["AAA"] != 0 {
		t.Errorf("market called %d times after failed existence check", h.market.calls["AAA"])
	}

	rows.existsErr = fmt.Errorf("sql: database is closed: %w", domain.ErrStoreUnavailable)
	o = ingestor.Ingest(context.Background(), "AAA", testDate)
	if o.Reason != domain.ReasonStoreLost {
		t.Errorf("reason = %q, want %q", o.Reason, domain.ReasonStoreLost)
	}
}

// cancellingMarket cancels the run context after each snapshot request.
type cancellingMarket struct {
	inner  *fakeMarket
	cancel context.CancelFunc
}

func (c *cancellingMarket) Snapshot(ctx context.Context, ticker, date string) (domain.Snapshot, error) {
	defer c.cancel()
	return c.inner.Snapshot(ctx, ticker, date)
}

func TestCancelDuringRetryDelay(t *testing.T) {
	h := newHarness(t, nil)
	h.market.transientFailures["AAA"] = 2
	marker := &memMarker{date: "2024-06-10"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	market := &cancellingMarket{inner: h.market, cancel: cancel}
	ingestor := NewIngestor(market, h.news, sentiment.NewAggregator(nil, quietLog), h.store,
		RetryOptions{Attempts: 3, Delay: time.Hour}, quietLog)

	done := make(chan struct{})
	var (
		summary domain.RunSummary
		err     error
	)
	go func() {
		defer close(done)
		summary, err = NewController(ingestor, marker, []string{"AAA", "BBB"}, quietLog).Run(ctx, testDate)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation during retry delay")
	}

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if summary.Attempted() != 1 {
		t.Fatalf("attempted = %d, want 1", summary.Attempted())
	}
	o := summary.Outcomes[0]
	if o.Reason != domain.ReasonCancelled || o.Attempts != 1 {
		t.Errorf("AAA outcome = %+v, want cancelled after one attempt", o)
	}
	if h.market.calls["AAA"] != 1 || h.market.calls["BBB"] != 0 {
		t.Errorf("provider calls = %v", h.market.calls)
	}
	if marker.date != "2024-06-10" || marker.sets != 0 {
		t.Errorf("marker = %+v, want untouched", marker)
	}
}
