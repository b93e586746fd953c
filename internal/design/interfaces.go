package design

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get operations when no row matches.
var ErrNotFound = errors.New("not found")

// ErrVisionExhausted marks a vision-analysis failure that survived its
// whole retry budget. The orchestrator fails the source rather than
// accepting a partially scored site.
var ErrVisionExhausted = errors.New("vision analysis retries exhausted")

// ErrTooManyRequests is returned by a SearchProvider on an HTTP 429.
// The discovery service moves on to the next provider instead of
// retrying the throttled one.
var ErrTooManyRequests = errors.New("provider rate limited")

// Store persists sources, designs, patterns, feedback, prompts and the
// leaderboard. Store/Get operations are idempotent.
type Store interface {
	GetPrompt(ctx context.Context, name string) (Prompt, error)
	UpdatePrompt(ctx context.Context, name, content string, version int) error

	GetSourceByURL(ctx context.Context, url string) (Source, error)
	StoreSource(ctx context.Context, source Source) error
	UpdateSourceStatus(ctx context.Context, id string, status SourceStatus) error
	GetPendingSources(ctx context.Context, limit int) ([]Source, error)
	ResetStuckProcessingSources(ctx context.Context) (int, error)

	StoreDesign(ctx context.Context, d CapturedDesign) error
	GetDesign(ctx context.Context, id string) (CapturedDesign, error)
	RenameDesign(ctx context.Context, id, name string) error

	GetLeaderboard(ctx context.Context, n int) ([]LeaderboardEntry, error)
	GetLeaderboardFloor(ctx context.Context) (float64, int, error)
	UpdateLeaderboardRanks(ctx context.Context) error
	EvictFromLeaderboard(ctx context.Context, designID string) error

	StorePattern(ctx context.Context, p Pattern) error
	GetPattern(ctx context.Context, id string) (Pattern, error)
	GetTopPatterns(ctx context.Context, n int) ([]Pattern, error)

	StoreFeedback(ctx context.Context, f Feedback) error
	GetRecentFeedback(ctx context.Context, n int) ([]Feedback, error)

	GetModelPerformance(ctx context.Context, model, pageType string) (ModelPerformance, error)
	StoreModelPerformance(ctx context.Context, perf ModelPerformance) error
}

// LLMClient generates text from a prompt pair. The core never re-calls
// the model on bad output; every caller has a deterministic fallback.
type LLMClient interface {
	Generate(ctx context.Context, model, userPrompt, systemPrompt string) (string, error)
}

// BrowserSession is one open headless browser page with explicit close.
type BrowserSession interface {
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context, width int) ([]byte, error)
	ExtractHTML(ctx context.Context) (string, error)
	ExtractCSS(ctx context.Context) (string, error)
	Close() error
}

// Browser opens sessions against a shared browser process.
type Browser interface {
	NewSession(ctx context.Context) (BrowserSession, error)
}

// Analyzer scores a captured design. Implemented by the vision analysis
// collaborator; returns ErrVisionExhausted once its retry budget is spent.
type Analyzer interface {
	Analyze(ctx context.Context, d CapturedDesign) (CapturedDesign, error)
}

// SearchProvider executes one provider-specific web search.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// BlobStore writes raw artifacts (screenshots, extracted HTML) and
// returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes lifecycle events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
