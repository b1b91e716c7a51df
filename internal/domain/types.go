// Package domain holds the core types shared by the ingestion pipeline:
// snapshots, articles, persisted ticker-day rows and run outcomes.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the ISO date format used for row keys and the run marker.
const DateLayout = "2006-01-02"

// NeutralSentiment is the aggregate used when no article produced a score.
const NeutralSentiment = 5.0

// Sentiment score bounds for a single article.
const (
	MinScore = 1
	MaxScore = 10
)

// Snapshot is one provider response for a ticker on a date. Fields must
// declare every schema column; a nil value means the provider did not
// supply it.
type Snapshot struct {
	Ticker   string
	Date     string
	Industry string
	Sector   string
	Fields   map[string]*float64
}

// Article is a news item gathered for a ticker.
type Article struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Link      string    `json:"link"`
	Source    string    `json:"source"`
	Published time.Time `json:"published"`
}

// Ref returns a short identifier for logging.
func (a Article) Ref() string {
	if a.Link != "" {
		return a.Link
	}
	return a.Title
}

// EncodeArticles serialises articles into the opaque raw_news blob.
func EncodeArticles(articles []Article) ([]byte, error) {
	if articles == nil {
		articles = []Article{}
	}
	b, err := json.Marshal(articles)
	if err != nil {
		return nil, fmt.Errorf("encoding articles: %w", err)
	}
	return b, nil
}

// DecodeArticles is the inverse of EncodeArticles.
func DecodeArticles(blob []byte) ([]Article, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var out []Article
	if err := json.Unmarshal(blob, &out); err != nil {
		return nil, fmt.Errorf("decoding articles: %w", err)
	}
	return out, nil
}

// ArticleScore is the per-article sentiment. It only lives during
// aggregation.
type ArticleScore struct {
	Ticker        string
	ArticleRef    string
	Score         int
	Indeterminate bool
}

// TickerRow is the persisted unit: one row per (Ticker, Date).
type TickerRow struct {
	Ticker            string
	Date              string
	Industry          string
	Sector            string
	SchemaVersion     int
	Values            []*float64 // aligned with ValuationSchema.Fields
	Sentiment         float64
	SentimentFallback bool
	RawNews           []byte
}

// Value returns the named valuation column, or nil when it is null or
// unknown.
func (r TickerRow) Value(s Schema, name string) *float64 {
	i := s.Index(name)
	if i < 0 || i >= len(r.Values) {
		return nil
	}
	return r.Values[i]
}

// IngestStatus is the terminal state of one ticker in a run.
type IngestStatus string

const (
	StatusSuccess IngestStatus = "success"
	StatusSkipped IngestStatus = "skipped"
	StatusFailed  IngestStatus = "failed"
)

// Failure reasons attached to IngestOutcome.Reason.
const (
	ReasonFetchTransient = "fetch_transient"
	ReasonFetchFailed    = "fetch_failed"
	ReasonSchemaMismatch = "schema_mismatch"
	ReasonStoreFailed    = "store_failed"
	ReasonStoreLost      = "store_unavailable"
	ReasonCancelled      = "cancelled"
)

// IngestOutcome records what happened to one ticker.
type IngestOutcome struct {
	Ticker   string
	Status   IngestStatus
	Attempts int
	Reason   string
	Err      error
}

// RunSummary aggregates the outcomes of a run.
type RunSummary struct {
	Date     string
	Outcomes []IngestOutcome
	Success  int
	Skipped  int
	Failed   int
	Retried  int // successes that needed more than one attempt
}

// Add records an outcome and updates the counters.
func (s *RunSummary) Add(o IngestOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case StatusSuccess:
		s.Success++
		if o.Attempts > 1 {
			s.Retried++
		}
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

// Attempted returns how many tickers reached a terminal state.
func (s *RunSummary) Attempted() int { return len(s.Outcomes) }
