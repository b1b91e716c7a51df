package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stocknet/internal/domain"
	"stocknet/internal/gather"
	"stocknet/internal/util"
)

var _ gather.NewsSource = (*Source)(nil)

const (
	DefaultGoogleURL = "https://news.google.com/rss/search"
	DefaultGlobeURL  = "https://www.globenewswire.com/RssFeed/keyword/%s/feedTitle/GlobeNewswire.xml"

	// minBodyLen is the body length below which the article page is
	// fetched and its paragraphs extracted.
	minBodyLen = 200
)

// Options configures a Source. Empty Alpaca credentials disable the Alpaca
// feed; an empty feed URL disables that RSS feed.
type Options struct {
	APIKey    string
	APISecret string
	DataURL   string

	GoogleURL string
	GlobeURL  string

	Limit       int
	FetchBodies bool
	HTTPClient  *http.Client
	Limiter     *util.RateLimiter
}

// Source merges the configured feeds into one deduplicated article list.
type Source struct {
	mdc         *marketdata.Client
	googleURL   string
	globeURL    string
	limit       int
	fetchBodies bool
	client      *http.Client
	limiter     *util.RateLimiter
	loc         *time.Location
	log         *slog.Logger
}

// NewSource creates a Source from opts.
func NewSource(opts Options) (*Source, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading ET timezone: %w", err)
	}

	s := &Source{
		googleURL:   opts.GoogleURL,
		globeURL:    opts.GlobeURL,
		limit:       opts.Limit,
		fetchBodies: opts.FetchBodies,
		client:      opts.HTTPClient,
		limiter:     opts.Limiter,
		loc:         loc,
		log:         slog.Default().With("source", "news"),
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.APIKey != "" {
		mdOpts := marketdata.ClientOpts{APIKey: opts.APIKey, APISecret: opts.APISecret}
		if opts.DataURL != "" {
			mdOpts.BaseURL = opts.DataURL
		}
		s.mdc = marketdata.NewClient(mdOpts)
	}
	return s, nil
}

// Window returns the publication window for date: from 16:00 ET on the
// previous day to 20:00 ET on date.
func (s *Source) Window(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(domain.DateLayout, date, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing date %q: %w", date, err)
	}
	start := day.AddDate(0, 0, -1).Add(16 * time.Hour)
	end := day.Add(20 * time.Hour)
	return start, end, nil
}

// Articles gathers news for ticker published around date. A feed that
// fails is logged and skipped; an error is returned only when every
// configured feed failed.
func (s *Source) Articles(ctx context.Context, ticker, date string) ([]domain.Article, error) {
	start, end, err := s.Window(date)
	if err != nil {
		return nil, err
	}

	type feed struct {
		name  string
		fetch func() ([]domain.Article, error)
	}
	var feeds []feed
	if s.mdc != nil {
		feeds = append(feeds, feed{SourceAlpaca, func() ([]domain.Article, error) {
			return FetchAlpacaNews(s.mdc, ticker, start, end, s.limit)
		}})
	}
	if s.googleURL != "" {
		feeds = append(feeds, feed{SourceGoogle, func() ([]domain.Article, error) {
			return fetchRSS(ctx, s.client, GoogleNewsURL(s.googleURL, ticker), SourceGoogle, start, end)
		}})
	}
	if s.globeURL != "" {
		feeds = append(feeds, feed{SourceGlobe, func() ([]domain.Article, error) {
			return fetchRSS(ctx, s.client, GlobeNewswireURL(s.globeURL, ticker), SourceGlobe, start, end)
		}})
	}
	if len(feeds) == 0 {
		return nil, nil
	}

	var (
		all  []domain.Article
		errs []error
	)
	for _, f := range feeds {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		got, err := f.fetch()
		if err != nil {
			s.log.Warn("news feed failed", "feed", f.name, "ticker", ticker, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		all = append(all, got...)
	}
	if len(errs) == len(feeds) {
		return nil, errors.Join(errs...)
	}

	articles := dedupe(all)
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].Published.After(articles[j].Published)
	})
	if s.limit > 0 && len(articles) > s.limit {
		articles = articles[:s.limit]
	}

	if s.fetchBodies {
		for i := range articles {
			a := &articles[i]
			if len(a.Body) >= minBodyLen || a.Link == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			body, err := FetchBody(ctx, s.client, a.Link)
			if err != nil {
				s.log.Debug("article body fetch failed", "ticker", ticker, "link", a.Link, "error", err)
				continue
			}
			if len(body) > len(a.Body) {
				a.Body = body
			}
		}
	}

	s.log.Debug("news gathered", "ticker", ticker, "date", date, "articles", len(articles))
	return articles, nil
}

// dedupe drops repeated articles, keyed by link or, without one, by
// lower-cased title. The first occurrence wins.
func dedupe(in []domain.Article) []domain.Article {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.Article, 0, len(in))
	for _, a := range in {
		key := a.Link
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(a.Title))
		}
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}
