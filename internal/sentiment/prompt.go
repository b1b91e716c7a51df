package sentiment

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"stocknet/internal/domain"
)

// NoneToken is the literal a model returns when an article carries no
// usable signal.
const NoneToken = "NONE"

// maxArticleChars bounds the article text embedded in a prompt.
const maxArticleChars = 12000

// BuildPrompt returns the evaluation prompt for one article.
func BuildPrompt(ticker string, a domain.Article) string {
	body := truncate(a.Body, maxArticleChars)
	return fmt.Sprintf(`Imagine you are a human who is hoping to buy %[1]s stock.
You want to read articles, and rate your interest in buying %[1]s on a scale from %[2]d-%[3]d based on the article.
A "%[2]d" means no interest in buying %[1]s, and a "%[3]d" means full interest in buying %[1]s.

Ignore advertising, promotional and boilerplate text within the article; it says nothing about the performance of %[1]s.

If enough information about the sentiment can be derived, return only a number between %[2]d-%[3]d, and nothing else.
If enough information about the sentiment cannot be derived, return the word "%[4]s" and nothing else.

Article below:

%[5]s

%[6]s
`, ticker, domain.MinScore, domain.MaxScore, NoneToken, a.Title, body)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ParseScore interprets a model response. It reports false for the none
// token and for anything that is not an integer in the score range.
func ParseScore(resp string) (int, bool) {
	s := strings.TrimSpace(resp)
	s = strings.Trim(s, "\"'`*")
	s = strings.TrimSuffix(s, ".")
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, NoneToken) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < domain.MinScore || n > domain.MaxScore {
		return 0, false
	}
	return n, true
}
