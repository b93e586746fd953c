// Package discovery finds candidate design sources via quota-aware
// multi-provider web search and LLM evaluation.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uxforge/design-scout/internal/design"
	"github.com/uxforge/design-scout/internal/metrics"
	"github.com/uxforge/design-scout/internal/quota"
)

// Config controls discovery behavior.
type Config struct {
	PrimaryProvider    string
	UnmeteredFallback  string
	QueriesPerCycle    int
	ResultsPerQuery    int
	EvaluationThrottle time.Duration
}

// Service runs search, evaluation and curated seeding.
type Service struct {
	store     design.Store
	llm       design.LLMClient
	tracker   *quota.Tracker
	providers []design.SearchProvider
	retry     *retryPolicy
	idGen     design.IDGenerator
	clock     design.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Service. Provider order is the fixed rotation order;
// the configured primary is tried first regardless of its position.
func New(
	store design.Store,
	llm design.LLMClient,
	tracker *quota.Tracker,
	providers []design.SearchProvider,
	idGen design.IDGenerator,
	clock design.Clock,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.QueriesPerCycle <= 0 {
		cfg.QueriesPerCycle = 5
	}
	if cfg.ResultsPerQuery <= 0 {
		cfg.ResultsPerQuery = 10
	}
	if cfg.EvaluationThrottle <= 0 {
		cfg.EvaluationThrottle = 500 * time.Millisecond
	}
	if cfg.UnmeteredFallback == "" {
		cfg.UnmeteredFallback = "duckduckgo"
	}
	return &Service{
		store:     store,
		llm:       llm,
		tracker:   tracker,
		providers: providers,
		retry:     newRetryPolicy(),
		idGen:     idGen,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// GenerateSearchQueries asks the LLM for diverse search queries. The
// reply is parsed as newline-separated non-empty lines capped at 20;
// an unusable reply falls back to the built-in query list.
func (s *Service) GenerateSearchQueries(ctx context.Context, count int, category string) []string {
	if count <= 0 {
		count = s.cfg.QueriesPerCycle
	}
	categoryHint := ""
	if category != "" {
		categoryHint = fmt.Sprintf("Focus on the %q category.", category)
	}

	prompt := s.promptOrDefault(ctx, PromptQueryGeneration, defaultQueryGenerationPrompt)
	userPrompt := fmt.Sprintf(prompt, count, categoryHint)

	start := time.Now()
	raw, err := s.llm.Generate(ctx, "", userPrompt, "")
	metrics.ObserveLLMCall("query_generation", time.Since(start))
	if err != nil {
		s.logger.Warn("query generation failed, using fallback queries", zap.Error(err))
		return cappedCopy(fallbackQueries, count)
	}

	queries := parseQueryLines(raw)
	if len(queries) == 0 {
		s.logger.Warn("query generation returned no usable lines, using fallback queries")
		return cappedCopy(fallbackQueries, count)
	}
	if len(queries) > count {
		queries = queries[:count]
	}
	return queries
}

// SearchDesignSources executes the query against the first provider that
// both has quota and returns at least one result. A rate-limited provider
// is skipped immediately; other failures are retried with backoff before
// rotating. Exhausting every provider yields an empty slice, never an error.
func (s *Service) SearchDesignSources(ctx context.Context, query string, limit int) []design.SearchResult {
	if limit <= 0 {
		limit = s.cfg.ResultsPerQuery
	}
	s.tracker.ResetExpiredQuotas()

	candidates := s.candidateProviders()
	if len(candidates) == 0 {
		s.logger.Warn("no search providers available", zap.String("query", query))
		return nil
	}

	for _, provider := range candidates {
		results, err := s.searchWithRetry(ctx, provider, query, limit)
		switch {
		case err != nil:
			outcome := "error"
			if errors.Is(err, design.ErrTooManyRequests) {
				outcome = "rate_limited"
			}
			metrics.ObserveSearchCall(provider.Name(), outcome)
			s.logger.Warn("provider search failed",
				zap.String("provider", provider.Name()),
				zap.String("query", query),
				zap.Error(err),
			)
		case len(results) == 0:
			metrics.ObserveSearchCall(provider.Name(), "empty")
			s.logger.Debug("provider returned no results",
				zap.String("provider", provider.Name()),
				zap.String("query", query),
			)
		default:
			s.tracker.RecordCall(provider.Name())
			metrics.ObserveSearchCall(provider.Name(), "ok")
			return results
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

func (s *Service) searchWithRetry(
	ctx context.Context,
	provider design.SearchProvider,
	query string,
	limit int,
) ([]design.SearchResult, error) {
	var lastErr error
	for attempt := 0; attempt < s.retry.maxAttempts; attempt++ {
		results, err := provider.Search(ctx, query, limit)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if !s.retry.shouldRetry(err, attempt) {
			break
		}
		if err := sleepWithContext(ctx, s.retry.backoff(attempt)); err != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// candidateProviders orders providers primary-first and filters to those
// with remaining quota. When every metered provider is capped, the
// unmetered fallback alone is returned.
func (s *Service) candidateProviders() []design.SearchProvider {
	ordered := make([]design.SearchProvider, 0, len(s.providers))
	for _, p := range s.providers {
		if p.Name() == s.cfg.PrimaryProvider {
			ordered = append([]design.SearchProvider{p}, ordered...)
		} else {
			ordered = append(ordered, p)
		}
	}

	withQuota := make([]design.SearchProvider, 0, len(ordered))
	for _, p := range ordered {
		if s.tracker.HasQuotaRemaining(p.Name()) {
			withQuota = append(withQuota, p)
		}
	}
	if len(withQuota) > 0 {
		return withQuota
	}
	for _, p := range ordered {
		if p.Name() == s.cfg.UnmeteredFallback {
			return []design.SearchProvider{p}
		}
	}
	return nil
}

// EvaluateSearchResult asks the LLM whether a URL is design-worthy and,
// if so, builds a pending Source. Known URLs and unworthy or unparsable
// verdicts yield (nil, nil): rejection is the default, never an error.
func (s *Service) EvaluateSearchResult(ctx context.Context, rawURL, query string) (*design.Source, error) {
	normalized, err := design.NormalizeSourceURL(rawURL)
	if err != nil {
		return nil, nil
	}

	if _, err := s.store.GetSourceByURL(ctx, normalized); err == nil {
		return nil, nil
	} else if !errors.Is(err, design.ErrNotFound) {
		return nil, fmt.Errorf("lookup source by url: %w", err)
	}

	prompt := s.promptOrDefault(ctx, PromptSourceEvaluation, defaultSourceEvaluationPrompt)
	userPrompt := fmt.Sprintf(prompt, normalized, query)

	start := time.Now()
	raw, llmErr := s.llm.Generate(ctx, "", userPrompt, "")
	metrics.ObserveLLMCall("source_evaluation", time.Since(start))
	if llmErr != nil {
		s.logger.Warn("source evaluation call failed, rejecting",
			zap.String("url", normalized), zap.Error(llmErr))
		return nil, nil
	}

	eval, ok := parseEvaluation(raw)
	if !ok || !eval.IsDesignWorthy {
		return nil, nil
	}

	id, err := s.idGen.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate source id: %w", err)
	}
	category := eval.Category
	if category == "" {
		category = "other"
	}
	return &design.Source{
		ID:              id,
		URL:             normalized,
		Category:        category,
		TrustScore:      eval.TrustScore,
		DiscoveryMethod: "search",
		DiscoveryQuery:  query,
		Tags:            eval.Tags,
		Status:          design.SourceStatusPending,
		DiscoveredAt:    s.clock.Now(),
	}, nil
}

// RunDiscoveryCycle loops query generation, search and evaluation until
// targetCount sources are stored or the attempt budget of 3x targetCount
// is spent. Accepted sources are stored immediately, not batched.
func (s *Service) RunDiscoveryCycle(ctx context.Context, targetCount int) (int, error) {
	if targetCount <= 0 {
		return 0, nil
	}
	maxAttempts := 3 * targetCount
	stored := 0
	attempts := 0

	for stored < targetCount && attempts < maxAttempts {
		if ctx.Err() != nil {
			return stored, ctx.Err()
		}
		queries := s.GenerateSearchQueries(ctx, s.cfg.QueriesPerCycle, "")
		for _, query := range queries {
			if stored >= targetCount || attempts >= maxAttempts || ctx.Err() != nil {
				break
			}
			results := s.SearchDesignSources(ctx, query, s.cfg.ResultsPerQuery)
			for _, result := range results {
				if stored >= targetCount || attempts >= maxAttempts {
					break
				}
				attempts++
				// Throttle so target sites see a human-ish cadence.
				if err := sleepWithContext(ctx, s.cfg.EvaluationThrottle); err != nil {
					return stored, err
				}
				source, err := s.EvaluateSearchResult(ctx, result.URL, query)
				if err != nil {
					s.logger.Warn("evaluate search result failed",
						zap.String("url", result.URL), zap.Error(err))
					continue
				}
				if source == nil {
					continue
				}
				if err := s.store.StoreSource(ctx, *source); err != nil {
					s.logger.Error("store source failed",
						zap.String("url", source.URL), zap.Error(err))
					continue
				}
				metrics.ObserveSourceStatus(string(design.SourceStatusPending))
				stored++
				s.logger.Info("source discovered",
					zap.String("url", source.URL),
					zap.String("category", source.Category),
					zap.Float64("trust_score", source.TrustScore),
				)
			}
		}
	}
	return stored, nil
}

// CuratedSeed is one hand-picked source for SeedCuratedSources.
type CuratedSeed struct {
	URL      string
	Category string
	Tags     []string
}

// SeedCuratedSources idempotently inserts the curated list. Known URLs
// are bumped to at least trust 8.0; new ones are inserted pending with
// discovery method "curated".
func (s *Service) SeedCuratedSources(ctx context.Context, seeds []CuratedSeed) error {
	for _, seed := range seeds {
		normalized, err := design.NormalizeSourceURL(seed.URL)
		if err != nil {
			s.logger.Warn("skipping invalid curated url", zap.String("url", seed.URL), zap.Error(err))
			continue
		}

		existing, err := s.store.GetSourceByURL(ctx, normalized)
		switch {
		case err == nil:
			if existing.TrustScore >= 8.0 && existing.DiscoveryMethod == "curated" {
				continue
			}
			existing.TrustScore = max(existing.TrustScore, 8.0)
			existing.DiscoveryMethod = "curated"
			if err := s.store.StoreSource(ctx, existing); err != nil {
				return fmt.Errorf("update curated source %s: %w", normalized, err)
			}
		case errors.Is(err, design.ErrNotFound):
			id, idErr := s.idGen.NewID()
			if idErr != nil {
				return fmt.Errorf("generate curated source id: %w", idErr)
			}
			source := design.Source{
				ID:              id,
				URL:             normalized,
				Category:        seed.Category,
				TrustScore:      8.0,
				DiscoveryMethod: "curated",
				Tags:            seed.Tags,
				Status:          design.SourceStatusPending,
				DiscoveredAt:    s.clock.Now(),
			}
			if err := s.store.StoreSource(ctx, source); err != nil {
				return fmt.Errorf("store curated source %s: %w", normalized, err)
			}
			metrics.ObserveSourceStatus(string(design.SourceStatusPending))
		default:
			return fmt.Errorf("lookup curated source %s: %w", normalized, err)
		}
	}
	return nil
}

func (s *Service) promptOrDefault(ctx context.Context, name, fallback string) string {
	prompt, err := s.store.GetPrompt(ctx, name)
	if err != nil || prompt.Content == "" {
		return fallback
	}
	return prompt.Content
}

func cappedCopy(src []string, n int) []string {
	if n > len(src) {
		n = len(src)
	}
	out := make([]string, n)
	copy(out, src[:n])
	return out
}
