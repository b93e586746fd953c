package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsGate checks a site's robots.txt before a crawl starts. Missing
// or unreachable files allow the crawl; an explicit root disallow for
// our agent blocks it.
type robotsGate struct {
	client    *http.Client
	userAgent string
}

func newRobotsGate(userAgent string) *robotsGate {
	return &robotsGate{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
	}
}

func (g *robotsGate) allowed(ctx context.Context, siteURL string) bool {
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return true
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return true
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return true
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return true
	}
	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		return true
	}
	return robots.FindGroup(g.userAgent).Test("/")
}
