// Package providers implements the search backends used by discovery.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/uxforge/design-scout/internal/design"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave calls the Brave Search web API.
type Brave struct {
	apiKey string
	client *http.Client
}

// NewBrave builds a Brave provider.
func NewBrave(apiKey string) *Brave {
	return &Brave{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name identifies the provider for quota accounting.
func (b *Brave) Name() string {
	return "brave"
}

type braveResponse struct {
	Web struct {
		Results []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search executes one web search and maps the hits to SearchResults.
func (b *Brave) Search(ctx context.Context, query string, limit int) ([]design.SearchResult, error) {
	if b.apiKey == "" {
		return nil, fmt.Errorf("brave api key is not configured")
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build brave request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, design.ErrTooManyRequests
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read brave response: %w", err)
	}
	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}

	results := make([]design.SearchResult, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, design.SearchResult{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: r.Description,
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
