// Package sentiment turns a ticker's daily news into one buy-interest score
// using an LLM.
package sentiment

import (
	"context"
	"log/slog"

	"stocknet/internal/domain"
)

// Completer sends a prompt to a language model and returns its text reply.
// Implementations enforce their own per-call timeout.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Result is the aggregate sentiment for one ticker-day.
type Result struct {
	Value     float64
	Scored    int
	Discarded int
	// Fallback is set when no article produced a score and Value is the
	// neutral default.
	Fallback bool
	Scores   []domain.ArticleScore
}

// Aggregator scores articles one at a time and averages the kept scores.
type Aggregator struct {
	completer Completer
	log       *slog.Logger
}

// NewAggregator creates an Aggregator. A nil completer scores nothing, so
// every ticker gets the neutral fallback.
func NewAggregator(c Completer, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{completer: c, log: log}
}

// Aggregate scores each article and returns the mean of the kept scores, or
// the neutral default when none were kept. A completer error discards that
// article. The only error returned is the context's.
func (a *Aggregator) Aggregate(ctx context.Context, ticker string, articles []domain.Article) (Result, error) {
	var res Result
	sum := 0

	for _, art := range articles {
		if a.completer == nil {
			break
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		score := domain.ArticleScore{Ticker: ticker, ArticleRef: art.Ref()}
		resp, err := a.completer.Complete(ctx, BuildPrompt(ticker, art))
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			a.log.Warn("sentiment scoring failed", "ticker", ticker, "article", art.Ref(), "error", err)
			score.Indeterminate = true
		} else if n, ok := ParseScore(resp); ok {
			score.Score = n
		} else {
			a.log.Info("sentiment indeterminate", "ticker", ticker, "article", art.Ref())
			score.Indeterminate = true
		}

		res.Scores = append(res.Scores, score)
		if score.Indeterminate {
			res.Discarded++
			continue
		}
		res.Scored++
		sum += score.Score
	}

	if res.Scored == 0 {
		res.Value = domain.NeutralSentiment
		res.Fallback = true
		a.log.Warn("sentiment fallback", "ticker", ticker, "articles", len(articles),
			"discarded", res.Discarded, "value", res.Value)
		return res, nil
	}
	res.Value = float64(sum) / float64(res.Scored)
	return res, nil
}
