// Package learning extracts reusable design patterns from accepted
// designs and closes the human feedback loop: calibration, renames,
// mismatch explanations and prompt evolution.
package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uxforge/design-scout/internal/design"
	"github.com/uxforge/design-scout/internal/metrics"
)

// Prompt names owned by this package.
const (
	PromptMismatchExplanation = "learning_mismatch_explanation"
)

const defaultMismatchExplanationPrompt = `A design scoring model rated a website %.1f out of 10 but a human rated it %.1f.
Site: %s
In two or three sentences, explain the most likely reason for the gap.`

const evolutionInstruction = `You maintain the scoring prompt below. Human reviewers disagreed with its scores as shown in the feedback rows (model score, human score, gap). Rewrite the prompt to reduce these gaps while keeping its scoring criteria just as specific. Reply with the new prompt text only.

Current prompt:
%s

Feedback:
%s`

const (
	maxEvolutionSamples = 10
	trendingLimit       = 10
	trendCandidatePool  = 200
)

// Config holds the learning thresholds.
type Config struct {
	PageScoreThreshold      float64
	CategoryScoreThreshold  float64
	MismatchThreshold       float64
	MinFeedbackForEvolution int
	// EvolutionPromptName is the stored prompt rewritten when feedback
	// shows sustained mismatch.
	EvolutionPromptName string
}

// Service implements pattern extraction and feedback processing.
type Service struct {
	store  design.Store
	llm    design.LLMClient
	clock  design.Clock
	cfg    Config
	logger *zap.Logger
}

// New constructs a Service.
func New(store design.Store, llm design.LLMClient, clock design.Clock, cfg Config, logger *zap.Logger) *Service {
	if cfg.PageScoreThreshold <= 0 {
		cfg.PageScoreThreshold = 8.0
	}
	if cfg.CategoryScoreThreshold <= 0 {
		cfg.CategoryScoreThreshold = 8.5
	}
	if cfg.MismatchThreshold <= 0 {
		cfg.MismatchThreshold = 2.0
	}
	if cfg.MinFeedbackForEvolution <= 0 {
		cfg.MinFeedbackForEvolution = 5
	}
	if cfg.EvolutionPromptName == "" {
		cfg.EvolutionPromptName = "analysis_scoring"
	}
	return &Service{store: store, llm: llm, clock: clock, cfg: cfg, logger: logger}
}

// ExtractPatterns records one pattern per strong category of every
// strong page of the design, then bumps pairwise co-occurrence for all
// patterns seen together in it. Returns the IDs of every pattern
// observed. Two pages of one design can share a page type and so map to
// the same pattern ID; the design still counts as a single observation.
func (s *Service) ExtractPatterns(ctx context.Context, d design.CapturedDesign) ([]string, error) {
	now := s.clock.Now()
	var observed []string
	seen := make(map[string]bool)

	for _, page := range d.Pages {
		if page.OverallPageScore < s.cfg.PageScoreThreshold {
			continue
		}
		categories := sortedCategories(page.CategoryScores)
		for _, category := range categories {
			score := page.CategoryScores[category]
			if score < s.cfg.CategoryScoreThreshold {
				continue
			}
			if seen[patternName(page.PageType, category, d.URL)] {
				continue
			}
			pattern, err := s.observePattern(ctx, d, page, category, score, now)
			if err != nil {
				return nil, err
			}
			seen[pattern.ID] = true
			observed = append(observed, pattern.ID)
		}
	}

	if err := s.recordCoOccurrence(ctx, observed, now); err != nil {
		return nil, err
	}
	return observed, nil
}

func (s *Service) observePattern(
	ctx context.Context,
	d design.CapturedDesign,
	page design.PageAnalysis,
	category string,
	score float64,
	now time.Time,
) (design.Pattern, error) {
	id := patternName(page.PageType, category, d.URL)

	existing, err := s.store.GetPattern(ctx, id)
	switch {
	case errors.Is(err, design.ErrNotFound):
		pattern := buildPattern(d, page, category, score, now)
		if storeErr := s.store.StorePattern(ctx, pattern); storeErr != nil {
			return design.Pattern{}, fmt.Errorf("store pattern %s: %w", id, storeErr)
		}
		metrics.ObservePatternExtracted()
		s.logger.Info("learned new pattern",
			zap.String("pattern", id),
			zap.String("category", category),
			zap.Float64("score", score),
		)
		return pattern, nil
	case err != nil:
		return design.Pattern{}, fmt.Errorf("load pattern %s: %w", id, err)
	}

	existing.ObservationCount++
	existing.QualityScore = math.Max(existing.QualityScore, score)
	existing.LastUpdatedAt = now
	if !contains(existing.SourceDesignIDs, d.ID) {
		existing.SourceDesignIDs = append(existing.SourceDesignIDs, d.ID)
	}
	for _, tag := range strengthTags(page.Strengths) {
		if !contains(existing.Tags, tag) {
			existing.Tags = append(existing.Tags, tag)
		}
	}
	if err := s.store.StorePattern(ctx, existing); err != nil {
		return design.Pattern{}, fmt.Errorf("update pattern %s: %w", id, err)
	}
	return existing, nil
}

// recordCoOccurrence increments both directions of every unordered pair
// of patterns observed in the same design.
func (s *Service) recordCoOccurrence(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) < 2 {
		return nil
	}
	for i := 0; i < len(ids); i++ {
		pattern, err := s.store.GetPattern(ctx, ids[i])
		if err != nil {
			return fmt.Errorf("load pattern %s: %w", ids[i], err)
		}
		if pattern.CoOccurringPatterns == nil {
			pattern.CoOccurringPatterns = make(map[string]int)
		}
		for j := 0; j < len(ids); j++ {
			if ids[i] == ids[j] {
				continue
			}
			pattern.CoOccurringPatterns[ids[j]]++
		}
		pattern.LastUpdatedAt = now
		if err := s.store.StorePattern(ctx, pattern); err != nil {
			return fmt.Errorf("update pattern %s: %w", ids[i], err)
		}
	}
	return nil
}

// ProcessFeedback records a binary human verdict on a design: a rating
// of 1 reads as a 4.0, anything else as a 9.0. Large mismatches get an
// LLM explanation, calibration is updated for the scoring model, and
// sustained mismatch triggers an out-of-band prompt evolution.
func (s *Service) ProcessFeedback(ctx context.Context, designID string, rating int, customName string) (design.Feedback, error) {
	d, err := s.store.GetDesign(ctx, designID)
	if err != nil {
		return design.Feedback{}, fmt.Errorf("load design %s: %w", designID, err)
	}

	humanScore := 9.0
	if rating == 1 {
		humanScore = 4.0
	}
	feedback := design.Feedback{
		DesignID:   designID,
		Rating:     rating,
		HumanScore: humanScore,
		LLMScore:   d.OverallScore,
		Mismatch:   math.Abs(humanScore - d.OverallScore),
		CustomName: customName,
		ProvidedAt: s.clock.Now(),
	}

	if customName != "" && customName != d.Name {
		if err := s.store.RenameDesign(ctx, designID, customName); err != nil {
			return design.Feedback{}, fmt.Errorf("rename design %s: %w", designID, err)
		}
	}

	if feedback.Mismatch >= s.cfg.MismatchThreshold {
		s.explainMismatch(ctx, d, feedback)
	}

	if model, pageType, ok := scoringModel(d); ok {
		if err := s.UpdateModelCalibration(ctx, model, pageType, d.OverallScore, humanScore); err != nil {
			s.logger.Warn("calibration update failed", zap.String("model", model), zap.Error(err))
		}
	}

	feedback.TriggeredEvolution, err = s.shouldEvolve(ctx, feedback)
	if err != nil {
		s.logger.Warn("evolution check failed", zap.Error(err))
	}

	if err := s.store.StoreFeedback(ctx, feedback); err != nil {
		return design.Feedback{}, fmt.Errorf("store feedback: %w", err)
	}
	metrics.ObserveFeedback(strconv.Itoa(rating))

	if feedback.TriggeredEvolution {
		recent, err := s.store.GetRecentFeedback(ctx, maxEvolutionSamples)
		if err != nil {
			s.logger.Warn("load feedback for evolution failed", zap.Error(err))
		} else {
			// Evolution is advisory and must never block the caller.
			go func() {
				evolveCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				if err := s.EvolvePrompt(evolveCtx, s.cfg.EvolutionPromptName, recent); err != nil {
					s.logger.Error("prompt evolution failed",
						zap.String("prompt", s.cfg.EvolutionPromptName), zap.Error(err))
				}
			}()
		}
	}
	return feedback, nil
}

// shouldEvolve reports whether this feedback completes a recent window
// where at least half the entries exceed the mismatch threshold.
func (s *Service) shouldEvolve(ctx context.Context, current design.Feedback) (bool, error) {
	recent, err := s.store.GetRecentFeedback(ctx, s.cfg.MinFeedbackForEvolution-1)
	if err != nil {
		return false, err
	}
	window := append([]design.Feedback{current}, recent...)
	if len(window) < s.cfg.MinFeedbackForEvolution {
		return false, nil
	}
	mismatched := 0
	for _, f := range window {
		if f.Mismatch >= s.cfg.MismatchThreshold {
			mismatched++
		}
	}
	return mismatched*2 >= len(window), nil
}

func (s *Service) explainMismatch(ctx context.Context, d design.CapturedDesign, feedback design.Feedback) {
	prompt := s.promptOrDefault(ctx, PromptMismatchExplanation, defaultMismatchExplanationPrompt)
	userPrompt := fmt.Sprintf(prompt, feedback.LLMScore, feedback.HumanScore, d.URL)

	start := time.Now()
	explanation, err := s.llm.Generate(ctx, "", userPrompt, "")
	metrics.ObserveLLMCall("mismatch_explanation", time.Since(start))
	if err != nil {
		s.logger.Warn("mismatch explanation failed",
			zap.String("design_id", d.ID), zap.Error(err))
		return
	}
	s.logger.Info("score mismatch explained",
		zap.String("design_id", d.ID),
		zap.Float64("llm_score", feedback.LLMScore),
		zap.Float64("human_score", feedback.HumanScore),
		zap.String("explanation", strings.TrimSpace(explanation)),
	)
}

// UpdateModelCalibration folds one (llmScore, humanScore) observation
// into the running bias and accuracy for a (model, pageType) pair. The
// first observation seeds the record directly.
func (s *Service) UpdateModelCalibration(ctx context.Context, model, pageType string, llmScore, humanScore float64) error {
	bias := llmScore - humanScore
	within := 0.0
	if math.Abs(bias) <= 1.0 {
		within = 1.0
	}

	perf, err := s.store.GetModelPerformance(ctx, model, pageType)
	switch {
	case errors.Is(err, design.ErrNotFound):
		perf = design.ModelPerformance{
			Model:       model,
			PageType:    pageType,
			AverageBias: bias,
			Accuracy:    within,
			SampleSize:  1,
			LastUpdated: s.clock.Now(),
		}
	case err != nil:
		return fmt.Errorf("load calibration for %s/%s: %w", model, pageType, err)
	default:
		n := float64(perf.SampleSize)
		perf.AverageBias = (perf.AverageBias*n + bias) / (n + 1)
		perf.Accuracy = (perf.Accuracy*n + within) / (n + 1)
		perf.SampleSize++
		perf.LastUpdated = s.clock.Now()
	}

	if err := s.store.StoreModelPerformance(ctx, perf); err != nil {
		return fmt.Errorf("store calibration for %s/%s: %w", model, pageType, err)
	}
	return nil
}

// EvolvePrompt rewrites a stored prompt using recent feedback and saves
// the reply verbatim at the next version.
func (s *Service) EvolvePrompt(ctx context.Context, promptName string, samples []design.Feedback) error {
	prompt, err := s.store.GetPrompt(ctx, promptName)
	if err != nil {
		return fmt.Errorf("load prompt %s: %w", promptName, err)
	}
	if len(samples) > maxEvolutionSamples {
		samples = samples[:maxEvolutionSamples]
	}

	var rows strings.Builder
	for _, f := range samples {
		fmt.Fprintf(&rows, "model=%.1f human=%.1f gap=%.1f\n", f.LLMScore, f.HumanScore, f.Mismatch)
	}
	userPrompt := fmt.Sprintf(evolutionInstruction, prompt.Content, rows.String())

	start := time.Now()
	reply, err := s.llm.Generate(ctx, "", userPrompt, "")
	metrics.ObserveLLMCall("prompt_evolution", time.Since(start))
	if err != nil {
		return fmt.Errorf("evolve prompt %s: %w", promptName, err)
	}
	evolved := strings.TrimSpace(reply)
	if evolved == "" {
		return fmt.Errorf("evolve prompt %s: empty reply", promptName)
	}

	nextVersion := prompt.Version + 1
	if err := s.store.UpdatePrompt(ctx, promptName, evolved, nextVersion); err != nil {
		return fmt.Errorf("store prompt %s v%d: %w", promptName, nextVersion, err)
	}
	s.logger.Info("prompt evolved",
		zap.String("prompt", promptName), zap.Int("version", nextVersion))
	return nil
}

// DetectTrends returns the most-observed patterns first learned inside
// the window, capped at ten.
func (s *Service) DetectTrends(ctx context.Context, windowDays int) ([]design.TrendingPattern, error) {
	patterns, err := s.store.GetTopPatterns(ctx, trendCandidatePool)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	cutoff := s.clock.Now().AddDate(0, 0, -windowDays)

	var trending []design.TrendingPattern
	for _, p := range patterns {
		if p.LearnedAt.Before(cutoff) {
			continue
		}
		trending = append(trending, design.TrendingPattern{
			Name:             p.Name,
			ObservationCount: p.ObservationCount,
		})
	}
	sort.SliceStable(trending, func(i, j int) bool {
		return trending[i].ObservationCount > trending[j].ObservationCount
	})
	if len(trending) > trendingLimit {
		trending = trending[:trendingLimit]
	}
	return trending, nil
}

func (s *Service) promptOrDefault(ctx context.Context, name, fallback string) string {
	prompt, err := s.store.GetPrompt(ctx, name)
	if err != nil || prompt.Content == "" {
		return fallback
	}
	return prompt.Content
}

// scoringModel picks the model recorded on the homepage analysis, the
// page every design is guaranteed to have.
func scoringModel(d design.CapturedDesign) (model, pageType string, ok bool) {
	for _, page := range d.Pages {
		if page.PageType == "homepage" && page.AnalysisModel != "" {
			return page.AnalysisModel, page.PageType, true
		}
	}
	for _, page := range d.Pages {
		if page.AnalysisModel != "" {
			return page.AnalysisModel, page.PageType, true
		}
	}
	return "", "", false
}

func sortedCategories(scores map[string]float64) []string {
	categories := make([]string, 0, len(scores))
	for category := range scores {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}

func contains(list []string, want string) bool {
	for _, have := range list {
		if have == want {
			return true
		}
	}
	return false
}
