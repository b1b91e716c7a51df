package news

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxBodyBytes caps how much of an article page is parsed.
const maxBodyBytes = 2 << 20

// StripHTML returns the text content of an HTML fragment with whitespace
// normalized.
func StripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// ExtractSymbolContent extracts paragraphs mentioning the symbol from HTML content.
// Falls back to full stripped HTML if no paragraphs mention the symbol.
func ExtractSymbolContent(rawHTML, symbol string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return StripHTML(rawHTML)
	}

	upper := strings.ToUpper(symbol)
	var matched []string
	doc.Find("p, li, h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		plain := strings.Join(strings.Fields(sel.Text()), " ")
		if plain != "" && strings.Contains(strings.ToUpper(plain), upper) {
			matched = append(matched, plain)
		}
	})
	if len(matched) > 0 {
		return strings.Join(matched, " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// ExtractParagraphs returns the text of every <p> element in an HTML page,
// joined by newlines.
func ExtractParagraphs(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	var paras []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.Join(strings.Fields(sel.Text()), " "); text != "" {
			paras = append(paras, text)
		}
	})
	return strings.Join(paras, "\n"), nil
}

// FetchBody downloads an article page and extracts its paragraph text.
func FetchBody(ctx context.Context, client *http.Client, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	return ExtractParagraphs(io.LimitReader(resp.Body, maxBodyBytes))
}
