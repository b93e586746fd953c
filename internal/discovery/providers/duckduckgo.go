package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/uxforge/design-scout/internal/design"
)

const ddgEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the HTML search frontend. It needs no API key and
// no quota, which makes it the fallback of last resort.
type DuckDuckGo struct {
	userAgent string
	timeout   time.Duration
}

// NewDuckDuckGo builds a DuckDuckGo provider.
func NewDuckDuckGo(userAgent string) *DuckDuckGo {
	if userAgent == "" {
		userAgent = "design-scout/0.1"
	}
	return &DuckDuckGo{
		userAgent: userAgent,
		timeout:   20 * time.Second,
	}
}

// Name identifies the provider for quota accounting.
func (d *DuckDuckGo) Name() string {
	return "duckduckgo"
}

// Search scrapes one result page and maps the organic hits to SearchResults.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]design.SearchResult, error) {
	collector := colly.NewCollector(colly.Async(false))
	collector.UserAgent = d.userAgent
	collector.SetRequestTimeout(d.timeout)

	var (
		results   []design.SearchResult
		scrapeErr error
	)

	collector.OnHTML("div.result", func(e *colly.HTMLElement) {
		if len(results) >= limit {
			return
		}
		href := e.ChildAttr("a.result__a", "href")
		target := resolveDDGRedirect(href)
		if target == "" {
			return
		}
		results = append(results, design.SearchResult{
			URL:     target,
			Title:   strings.TrimSpace(e.ChildText("a.result__a")),
			Snippet: strings.TrimSpace(e.ChildText("a.result__snippet")),
		})
	})

	collector.OnError(func(resp *colly.Response, err error) {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			scrapeErr = design.ErrTooManyRequests
			return
		}
		scrapeErr = fmt.Errorf("duckduckgo scrape: %w", err)
	})

	searchURL := ddgEndpoint + "?" + url.Values{"q": {query}}.Encode()
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(searchURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("duckduckgo search canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit duckduckgo: %w", err)
		}
	}

	if scrapeErr != nil {
		return nil, scrapeErr
	}
	return results, nil
}

// resolveDDGRedirect unwraps the /l/?uddg=... indirection DuckDuckGo
// puts around result links. Plain links pass through untouched.
func resolveDDGRedirect(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if uddg := u.Query().Get("uddg"); uddg != "" {
		if target, err := url.QueryUnescape(uddg); err == nil {
			return target
		}
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}
