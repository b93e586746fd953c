// Package analysis scores captured designs with an LLM. It implements
// design.Analyzer and owns the scoring prompt that learning evolves.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uxforge/design-scout/internal/design"
	"github.com/uxforge/design-scout/internal/llm"
	"github.com/uxforge/design-scout/internal/metrics"
)

// PromptScoring names the stored scoring prompt. Learning rewrites it
// under this name when human feedback shows sustained mismatch.
const PromptScoring = "analysis_scoring"

// The scoring prompt carries instructions only; page context is
// appended at call time so evolved versions stay substitutable.
const defaultScoringPrompt = `You are a senior design critic scoring a website page.
Score the page 0-10 on typography, color, layout, hierarchy and polish.
Reply with a single JSON object:
{"overall_score": 0.0, "category_scores": {"typography": 0.0, "color": 0.0, "layout": 0.0, "hierarchy": 0.0, "polish": 0.0}, "category_details": {"typography": "..."}, "strengths": ["..."]}`

const pageContextTemplate = `Page type: %s
URL: %s

Simplified markup:
%s

Stylesheet excerpt:
%s`

const (
	maxPromptHTML = 6000
	maxPromptCSS  = 3000
)

// Config controls the analyzer.
type Config struct {
	Model       string
	MaxAttempts int
	RetryDelay  time.Duration
}

// Service implements design.Analyzer.
type Service struct {
	llm    design.LLMClient
	store  design.Store
	cfg    Config
	logger *zap.Logger
}

// New constructs a Service.
func New(llmClient design.LLMClient, store design.Store, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Service{llm: llmClient, store: store, cfg: cfg, logger: logger}
}

type rawPageScore struct {
	OverallScore    float64            `json:"overall_score"`
	CategoryScores  map[string]float64 `json:"category_scores"`
	CategoryDetails map[string]string  `json:"category_details"`
	Strengths       []string           `json:"strengths"`
}

// Analyze scores every page of the design and derives the overall score
// as the mean of page scores. A page that cannot be scored within the
// retry budget fails the whole design with ErrVisionExhausted so the
// orchestrator never accepts a partially scored site.
func (s *Service) Analyze(ctx context.Context, d design.CapturedDesign) (design.CapturedDesign, error) {
	prompt := s.promptOrDefault(ctx)

	total := 0.0
	for i := range d.Pages {
		scored, err := s.analyzePage(ctx, prompt, d.Pages[i])
		if err != nil {
			return design.CapturedDesign{}, fmt.Errorf("analyze %s: %w", d.Pages[i].URL, err)
		}
		d.Pages[i] = scored
		total += scored.OverallPageScore
	}
	if len(d.Pages) > 0 {
		d.OverallScore = total / float64(len(d.Pages))
	}
	return d, nil
}

func (s *Service) analyzePage(ctx context.Context, prompt string, page design.PageAnalysis) (design.PageAnalysis, error) {
	pageContext := fmt.Sprintf(pageContextTemplate,
		page.PageType,
		page.URL,
		truncate(page.ExtractedHTML, maxPromptHTML),
		truncate(page.ExtractedCSS, maxPromptCSS),
	)
	userPrompt := prompt + "\n\n" + pageContext

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepWithContext(ctx, s.cfg.RetryDelay); err != nil {
				return design.PageAnalysis{}, err
			}
		}

		start := time.Now()
		reply, err := s.llm.Generate(ctx, s.cfg.Model, userPrompt, "")
		metrics.ObserveLLMCall("page_scoring", time.Since(start))
		if err != nil {
			lastErr = err
			s.logger.Warn("page scoring attempt failed",
				zap.String("url", page.URL),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		score, ok := parsePageScore(reply)
		if !ok {
			lastErr = fmt.Errorf("unparsable scoring reply")
			s.logger.Warn("page scoring reply unparsable",
				zap.String("url", page.URL), zap.Int("attempt", attempt))
			continue
		}

		page.OverallPageScore = score.OverallScore
		page.CategoryScores = score.CategoryScores
		page.CategoryDetails = score.CategoryDetails
		page.Strengths = score.Strengths
		page.AnalysisModel = s.cfg.Model
		return page, nil
	}
	return design.PageAnalysis{}, fmt.Errorf("%w: %v", design.ErrVisionExhausted, lastErr)
}

func parsePageScore(raw string) (rawPageScore, bool) {
	block := llm.FirstJSONBlock(raw)
	if block == "" {
		return rawPageScore{}, false
	}
	var score rawPageScore
	if err := json.Unmarshal([]byte(block), &score); err != nil {
		return rawPageScore{}, false
	}
	score.OverallScore = clamp(score.OverallScore)
	for category, value := range score.CategoryScores {
		score.CategoryScores[category] = clamp(value)
	}
	return score, true
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func (s *Service) promptOrDefault(ctx context.Context) string {
	prompt, err := s.store.GetPrompt(ctx, PromptScoring)
	if err != nil || prompt.Content == "" {
		return defaultScoringPrompt
	}
	return prompt.Content
}

// SeedPrompt stores the default scoring prompt at version 1 when none
// exists yet, so learning has a base version to evolve from.
func (s *Service) SeedPrompt(ctx context.Context) error {
	if _, err := s.store.GetPrompt(ctx, PromptScoring); err == nil {
		return nil
	}
	return s.store.UpdatePrompt(ctx, PromptScoring, defaultScoringPrompt, 1)
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
