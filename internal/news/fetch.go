// Package news gathers the articles scored for a ticker each day from
// Alpaca, Google News RSS and GlobeNewswire RSS.
package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stocknet/internal/domain"
)

// Source names recorded on domain.Article.Source.
const (
	SourceAlpaca = "alpaca"
	SourceGoogle = "google"
	SourceGlobe  = "globenewswire"
)

const userAgent = "Mozilla/5.0"

// --- Alpaca ---

// FetchAlpacaNews fetches news from the Alpaca marketdata API.
func FetchAlpacaNews(mdc *marketdata.Client, symbol string, start, end time.Time, limit int) ([]domain.Article, error) {
	alpacaNews, err := mdc.GetNews(marketdata.GetNewsRequest{
		Symbols:            []string{symbol},
		Start:              start,
		End:                end,
		TotalLimit:         limit,
		IncludeContent:     true,
		ExcludeContentless: false,
		Sort:               marketdata.SortDesc,
	})
	if err != nil {
		return nil, err
	}

	articles := make([]domain.Article, 0, len(alpacaNews))
	for _, a := range alpacaNews {
		body := a.Summary
		if a.Content != "" {
			body = ExtractSymbolContent(a.Content, symbol)
		}
		articles = append(articles, domain.Article{
			Title:     a.Headline,
			Body:      body,
			Link:      a.URL,
			Source:    SourceAlpaca,
			Published: a.CreatedAt,
		})
	}
	return articles, nil
}

// --- RSS ---

type rssResponse struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
	Desc    string `xml:"description"`
}

var rssTimeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 02 Jan 2006 15:04 MST",
}

func parseRSSTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range rssTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// fetchRSS downloads a feed and returns the items published in [start, end].
func fetchRSS(ctx context.Context, client *http.Client, feedURL, source string, start, end time.Time) ([]domain.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var rss rssResponse
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, fmt.Errorf("decoding %s feed: %w", source, err)
	}

	var articles []domain.Article
	for _, item := range rss.Channel.Items {
		t, ok := parseRSSTime(item.PubDate)
		if !ok || t.Before(start) || t.After(end) {
			continue
		}
		headline := strings.TrimSpace(item.Title)
		if source == SourceGoogle {
			// Google appends " - Publisher" to every title.
			if idx := strings.LastIndex(headline, " - "); idx > 0 {
				headline = headline[:idx]
			}
		}
		articles = append(articles, domain.Article{
			Title:     headline,
			Body:      StripHTML(item.Desc),
			Link:      strings.TrimSpace(item.Link),
			Source:    source,
			Published: t,
		})
	}
	return articles, nil
}

// GoogleNewsURL builds the Google News RSS search URL for symbol.
func GoogleNewsURL(base, symbol string) string {
	q := url.QueryEscape(symbol + " stock")
	return base + "?q=" + q + "&hl=en-US&gl=US&ceid=US:en"
}

// GlobeNewswireURL builds the GlobeNewswire keyword feed URL for symbol from
// a format string with one %s verb.
func GlobeNewswireURL(format, symbol string) string {
	return fmt.Sprintf(format, url.PathEscape(symbol))
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", resp.Request.URL.Host, domain.ErrRateLimited)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%s returned %d: %w", resp.Request.URL.Host, resp.StatusCode, domain.ErrTransient)
	default:
		return fmt.Errorf("%s returned %d", resp.Request.URL.Host, resp.StatusCode)
	}
}
