package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uxforge/design-scout/internal/design"
	"github.com/uxforge/design-scout/internal/metrics"
	"github.com/uxforge/design-scout/internal/quota"
	"github.com/uxforge/design-scout/internal/storage/memory"
)

func init() {
	metrics.Init()
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type seqIDGen struct {
	n int
}

func (g *seqIDGen) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%04d", g.n), nil
}

type fakeLLM struct {
	replies []string
	err     error
	calls   int
}

func (f *fakeLLM) Generate(_ context.Context, _, _, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

type fakeProvider struct {
	name    string
	results []design.SearchResult
	err     error
	calls   int
}

func (p *fakeProvider) Name() string {
	return p.name
}

func (p *fakeProvider) Search(_ context.Context, _ string, _ int) ([]design.SearchResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.results, nil
}

func newService(
	t *testing.T,
	store design.Store,
	llm design.LLMClient,
	tracker *quota.Tracker,
	providers ...design.SearchProvider,
) *Service {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	if tracker == nil {
		tracker = quota.New(nil, clock)
	}
	return New(store, llm, tracker, providers, &seqIDGen{}, clock, Config{
		PrimaryProvider:    "brave",
		EvaluationThrottle: time.Millisecond,
	}, zap.NewNop())
}

func TestSearchDesignSources_ProviderRotation(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	tracker := quota.New(map[string]quota.Limits{
		"brave":  {Daily: 1},
		"serper": {Monthly: 100},
	}, clock)
	tracker.RecordCall("brave") // exhaust A

	exhausted := &fakeProvider{name: "brave"}
	limited := &fakeProvider{name: "serper", err: design.ErrTooManyRequests}
	healthy := &fakeProvider{name: "duckduckgo", results: []design.SearchResult{
		{URL: "https://stripe.com", Title: "Stripe"},
	}}

	svc := newService(t, memory.New(), &fakeLLM{}, tracker, exhausted, limited, healthy)

	results := svc.SearchDesignSources(context.Background(), "best design", 5)
	require.Len(t, results, 1)
	require.Equal(t, "https://stripe.com", results[0].URL)

	require.Zero(t, exhausted.calls, "quota-exhausted provider must never be called")
	require.Equal(t, 1, limited.calls, "rate-limited provider must not be retried")
	require.Equal(t, 1, healthy.calls)
}

func TestSearchDesignSources_AllProvidersFailReturnsEmpty(t *testing.T) {
	t.Parallel()

	a := &fakeProvider{name: "brave", err: design.ErrTooManyRequests}
	b := &fakeProvider{name: "duckduckgo", err: errors.New("network down")}

	svc := newService(t, memory.New(), &fakeLLM{}, nil, a, b)

	results := svc.SearchDesignSources(context.Background(), "best design", 5)
	require.Empty(t, results)
}

func TestSearchDesignSources_EmptyProviderContinuesToNext(t *testing.T) {
	t.Parallel()

	empty := &fakeProvider{name: "brave"}
	healthy := &fakeProvider{name: "serper", results: []design.SearchResult{
		{URL: "https://linear.app"},
	}}

	svc := newService(t, memory.New(), &fakeLLM{}, nil, empty, healthy)

	results := svc.SearchDesignSources(context.Background(), "q", 5)
	require.Len(t, results, 1)
	require.Equal(t, 1, empty.calls)
}

func TestEvaluateSearchResult_WorthySource(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{replies: []string{
		`Sure, here is my verdict:
{"is_design_worthy": true, "trust_score": 9, "category": "saas", "tags": ["dark-mode", "gradients"]}`,
	}}
	svc := newService(t, memory.New(), llm, nil)

	source, err := svc.EvaluateSearchResult(context.Background(), "http://Stripe.com/", "best saas design")
	require.NoError(t, err)
	require.NotNil(t, source)
	require.Equal(t, "https://stripe.com", source.URL)
	require.Equal(t, design.SourceStatusPending, source.Status)
	require.Equal(t, "search", source.DiscoveryMethod)
	require.InDelta(t, 9.0, source.TrustScore, 0.001)
	require.Equal(t, []string{"dark-mode", "gradients"}, source.Tags)
}

func TestEvaluateSearchResult_UnparsableDefaultsToReject(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{replies: []string{"I cannot answer that in JSON, sorry."}}
	svc := newService(t, memory.New(), llm, nil)

	source, err := svc.EvaluateSearchResult(context.Background(), "https://example.com", "q")
	require.NoError(t, err)
	require.Nil(t, source)
}

func TestEvaluateSearchResult_KnownURLSkipped(t *testing.T) {
	t.Parallel()

	store := memory.New()
	require.NoError(t, store.StoreSource(context.Background(), design.Source{
		ID:  "existing",
		URL: "https://stripe.com",
	}))

	llm := &fakeLLM{replies: []string{`{"is_design_worthy": true, "trust_score": 9}`}}
	svc := newService(t, store, llm, nil)

	source, err := svc.EvaluateSearchResult(context.Background(), "https://stripe.com/", "q")
	require.NoError(t, err)
	require.Nil(t, source)
	require.Zero(t, llm.calls, "known URL must not be re-evaluated")
}

func TestGenerateSearchQueries_ParsesLines(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{replies: []string{
		"# my suggestions\nbest saas landing pages\n\n2. award winning portfolio sites\n",
	}}
	svc := newService(t, memory.New(), llm, nil)

	queries := svc.GenerateSearchQueries(context.Background(), 5, "")
	require.Equal(t, []string{"best saas landing pages", "award winning portfolio sites"}, queries)
}

func TestGenerateSearchQueries_FallbackOnLLMError(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{err: errors.New("model unavailable")}
	svc := newService(t, memory.New(), llm, nil)

	queries := svc.GenerateSearchQueries(context.Background(), 3, "saas")
	require.Len(t, queries, 3)
}

func TestRunDiscoveryCycle_StopsAtTarget(t *testing.T) {
	t.Parallel()

	store := memory.New()
	provider := &fakeProvider{name: "duckduckgo", results: []design.SearchResult{
		{URL: "https://one.com"}, {URL: "https://two.com"}, {URL: "https://three.com"},
	}}
	llm := &fakeLLM{replies: []string{
		"best design sites",
		`{"is_design_worthy": true, "trust_score": 7, "category": "saas"}`,
		`{"is_design_worthy": true, "trust_score": 7, "category": "saas"}`,
	}}
	svc := newService(t, store, llm, nil, provider)

	stored, err := svc.RunDiscoveryCycle(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 2, stored)

	pending, err := store.GetPendingSources(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestRunDiscoveryCycle_AttemptBudgetBoundsRejectionStorm(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{name: "duckduckgo", results: []design.SearchResult{
		{URL: "https://a.com"}, {URL: "https://b.com"}, {URL: "https://c.com"},
		{URL: "https://d.com"}, {URL: "https://e.com"}, {URL: "https://f.com"},
		{URL: "https://g.com"},
	}}
	// Query generation succeeds, every evaluation rejects.
	llm := &fakeLLM{replies: []string{
		"some query",
		`{"is_design_worthy": false}`,
	}}
	svc := newService(t, memory.New(), llm, nil, provider)

	stored, err := svc.RunDiscoveryCycle(context.Background(), 2)
	require.NoError(t, err)
	require.Zero(t, stored)
	// 1 query-generation call plus at most 3 x targetCount evaluations.
	require.LessOrEqual(t, llm.calls, 1+6)
}

func TestSeedCuratedSources_IdempotentAndTrustFloor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.StoreSource(ctx, design.Source{
		ID:              "low-trust",
		URL:             "https://stripe.com",
		TrustScore:      5.5,
		DiscoveryMethod: "search",
		Status:          design.SourceStatusAccepted,
	}))

	svc := newService(t, store, &fakeLLM{}, nil)
	seeds := []CuratedSeed{
		{URL: "https://stripe.com/", Category: "saas"},
		{URL: "https://linear.app", Category: "saas"},
	}

	require.NoError(t, svc.SeedCuratedSources(ctx, seeds))
	require.NoError(t, svc.SeedCuratedSources(ctx, seeds)) // second run is a no-op

	existing, err := store.GetSourceByURL(ctx, "https://stripe.com")
	require.NoError(t, err)
	require.InDelta(t, 8.0, existing.TrustScore, 0.001)
	require.Equal(t, "curated", existing.DiscoveryMethod)
	require.Equal(t, design.SourceStatusAccepted, existing.Status, "seeding must not reset status")

	fresh, err := store.GetSourceByURL(ctx, "https://linear.app")
	require.NoError(t, err)
	require.Equal(t, design.SourceStatusPending, fresh.Status)
	require.InDelta(t, 8.0, fresh.TrustScore, 0.001)
}
