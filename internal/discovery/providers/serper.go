package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/uxforge/design-scout/internal/design"
)

const serperEndpoint = "https://google.serper.dev/search"

// Serper calls the serper.dev Google search API.
type Serper struct {
	apiKey string
	client *http.Client
}

// NewSerper builds a Serper provider.
func NewSerper(apiKey string) *Serper {
	return &Serper{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name identifies the provider for quota accounting.
func (s *Serper) Name() string {
	return "serper"
}

type serperResponse struct {
	Organic []struct {
		Link    string `json:"link"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search executes one web search and maps the organic hits to SearchResults.
func (s *Serper) Search(ctx context.Context, query string, limit int) ([]design.SearchResult, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("serper api key is not configured")
	}
	payload, err := json.Marshal(map[string]any{"q": query, "num": limit})
	if err != nil {
		return nil, fmt.Errorf("marshal serper payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serperEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build serper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper search: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, design.ErrTooManyRequests
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read serper response: %w", err)
	}
	var parsed serperResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode serper response: %w", err)
	}

	results := make([]design.SearchResult, 0, len(parsed.Organic))
	for _, r := range parsed.Organic {
		if r.Link == "" {
			continue
		}
		results = append(results, design.SearchResult{
			URL:     r.Link,
			Title:   r.Title,
			Snippet: r.Snippet,
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
