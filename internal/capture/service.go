// Package capture crawls a source's site and captures screenshots, DOM
// and CSS for each selected page.
package capture

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uxforge/design-scout/internal/design"
	"github.com/uxforge/design-scout/internal/metrics"
	"github.com/uxforge/design-scout/internal/ratelimit"
)

// PromptPageSelection names the stored prompt for LLM link selection.
const PromptPageSelection = "capture_page_selection"

const defaultPageSelectionPrompt = `You are selecting which pages of a website best showcase its design.
Site: %s
Candidate links:
%s

Pick up to %d links. Reply with one line per pick in the exact form:
url | pageType
where pageType is one of: pricing, features, about, blog, dashboard,
landing, docs, other. No commentary.`

// Config controls crawl behavior.
type Config struct {
	MaxPagesPerSite  int
	BreakpointWidths []int
	SettleDelay      time.Duration
	PageDelay        time.Duration
	BlobPrefix       string
	UserAgent        string
	RespectRobots    bool
}

// Service captures pages through a shared headless browser.
type Service struct {
	browser design.Browser
	llm     design.LLMClient
	blobs   design.BlobStore
	limiter *ratelimit.Limiter
	store   design.Store
	idGen   design.IDGenerator
	clock   design.Clock
	robots  *robotsGate
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Service.
func New(
	browser design.Browser,
	llm design.LLMClient,
	blobs design.BlobStore,
	limiter *ratelimit.Limiter,
	store design.Store,
	idGen design.IDGenerator,
	clock design.Clock,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.MaxPagesPerSite <= 0 {
		cfg.MaxPagesPerSite = 6
	}
	if len(cfg.BreakpointWidths) == 0 {
		cfg.BreakpointWidths = []int{1440, 768, 375}
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = 1500 * time.Millisecond
	}
	if cfg.BlobPrefix == "" {
		cfg.BlobPrefix = "captures"
	}
	return &Service{
		browser: browser,
		llm:     llm,
		blobs:   blobs,
		limiter: limiter,
		store:   store,
		idGen:   idGen,
		clock:   clock,
		robots:  newRobotsGate(cfg.UserAgent),
		cfg:     cfg,
		logger:  logger,
	}
}

// CrawlWebsite captures the homepage, selects up to maxPagesPerSite-1
// further pages and captures each one, reusing a single browser session
// for the whole site. Individual page failures are logged and skipped;
// a failed homepage fails the crawl.
func (s *Service) CrawlWebsite(ctx context.Context, source design.Source) (design.CapturedDesign, error) {
	if s.cfg.RespectRobots && !s.robots.allowed(ctx, source.URL) {
		return design.CapturedDesign{}, fmt.Errorf("robots.txt disallows crawling %s", source.URL)
	}

	session, err := s.browser.NewSession(ctx)
	if err != nil {
		return design.CapturedDesign{}, fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			s.logger.Warn("close browser session failed", zap.Error(closeErr))
		}
	}()

	id, err := s.idGen.NewID()
	if err != nil {
		return design.CapturedDesign{}, fmt.Errorf("generate design id: %w", err)
	}

	homepage, err := s.CapturePage(ctx, session, source.URL, "homepage")
	if err != nil {
		metrics.ObservePageCapture("homepage", "error")
		return design.CapturedDesign{}, fmt.Errorf("capture homepage: %w", err)
	}
	metrics.ObservePageCapture("homepage", "ok")

	captured := design.CapturedDesign{
		ID:         id,
		SourceID:   source.ID,
		URL:        source.URL,
		Name:       siteName(source.URL),
		CapturedAt: s.clock.Now(),
		Pages:      []design.PageAnalysis{homepage},
	}

	links, err := extractLinks(source.URL, homepage.ExtractedHTML)
	if err != nil {
		s.logger.Warn("link extraction failed, capturing homepage only",
			zap.String("url", source.URL), zap.Error(err))
		return captured, nil
	}

	for _, selection := range s.selectPages(ctx, source.URL, links) {
		if err := sleepWithContext(ctx, s.cfg.PageDelay); err != nil {
			return captured, nil
		}
		page, err := s.CapturePage(ctx, session, selection.URL, selection.PageType)
		if err != nil {
			metrics.ObservePageCapture(selection.PageType, "error")
			s.logger.Warn("page capture failed, continuing",
				zap.String("url", selection.URL),
				zap.String("page_type", selection.PageType),
				zap.Error(err),
			)
			continue
		}
		metrics.ObservePageCapture(selection.PageType, "ok")
		captured.Pages = append(captured.Pages, page)
	}
	return captured, nil
}

// selectPages asks the LLM to pick the most design-relevant links. An
// unparsable or empty reply falls back to the substring heuristic.
func (s *Service) selectPages(ctx context.Context, siteURL string, links []string) []pageSelection {
	limit := s.cfg.MaxPagesPerSite - 1
	if limit <= 0 || len(links) == 0 {
		return nil
	}

	prompt := s.promptOrDefault(ctx, PromptPageSelection, defaultPageSelectionPrompt)
	userPrompt := fmt.Sprintf(prompt, siteURL, strings.Join(links, "\n"), limit)

	start := time.Now()
	raw, err := s.llm.Generate(ctx, "", userPrompt, "")
	metrics.ObserveLLMCall("page_selection", time.Since(start))
	if err != nil {
		s.logger.Warn("page selection call failed, using heuristic",
			zap.String("site", siteURL), zap.Error(err))
		return heuristicSelect(links, limit)
	}

	selected := parseSelections(raw, links, limit)
	if len(selected) == 0 {
		return heuristicSelect(links, limit)
	}
	return selected
}

// CapturePage navigates to the URL, waits for client-rendered content to
// settle, then captures screenshots at every breakpoint plus simplified
// DOM and CSS. Passing a nil session makes the call own a fresh one.
func (s *Service) CapturePage(
	ctx context.Context,
	session design.BrowserSession,
	pageURL string,
	pageType string,
) (design.PageAnalysis, error) {
	if session == nil {
		owned, err := s.browser.NewSession(ctx)
		if err != nil {
			return design.PageAnalysis{}, fmt.Errorf("open browser session: %w", err)
		}
		defer func() {
			if closeErr := owned.Close(); closeErr != nil {
				s.logger.Warn("close browser session failed", zap.Error(closeErr))
			}
		}()
		session = owned
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, pageURL); err != nil {
			return design.PageAnalysis{}, fmt.Errorf("politeness wait: %w", err)
		}
	}

	if err := session.Navigate(ctx, pageURL); err != nil {
		return design.PageAnalysis{}, err
	}
	if err := sleepWithContext(ctx, s.cfg.SettleDelay); err != nil {
		return design.PageAnalysis{}, err
	}

	screenshots := make(map[string]string, len(s.cfg.BreakpointWidths))
	for _, width := range s.cfg.BreakpointWidths {
		shot, err := session.Screenshot(ctx, width)
		if err != nil {
			return design.PageAnalysis{}, fmt.Errorf("screenshot %s at %dpx: %w", pageURL, width, err)
		}
		uri, err := s.storeScreenshot(ctx, pageURL, pageType, width, shot)
		if err != nil {
			return design.PageAnalysis{}, err
		}
		screenshots[classifyViewport(width)] = uri
	}

	rawHTML, err := session.ExtractHTML(ctx)
	if err != nil {
		return design.PageAnalysis{}, err
	}
	css, err := session.ExtractCSS(ctx)
	if err != nil {
		s.logger.Warn("css extraction failed, storing page without css",
			zap.String("url", pageURL), zap.Error(err))
		css = ""
	}

	return design.PageAnalysis{
		URL:           pageURL,
		PageType:      pageType,
		Screenshots:   screenshots,
		ExtractedHTML: simplifyHTML(rawHTML),
		ExtractedCSS:  css,
	}, nil
}

func (s *Service) storeScreenshot(
	ctx context.Context,
	pageURL, pageType string,
	width int,
	data []byte,
) (string, error) {
	host := "unknown"
	if u, err := url.Parse(pageURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	path := fmt.Sprintf("%s/%s/%s-%d-%d.png",
		s.cfg.BlobPrefix, host, pageType, width, s.clock.Now().UnixMilli())
	uri, err := s.blobs.PutObject(ctx, path, "image/png", data)
	if err != nil {
		return "", fmt.Errorf("store screenshot: %w", err)
	}
	return uri, nil
}

func (s *Service) promptOrDefault(ctx context.Context, name, fallback string) string {
	prompt, err := s.store.GetPrompt(ctx, name)
	if err != nil || prompt.Content == "" {
		return fallback
	}
	return prompt.Content
}

func siteName(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil || u.Hostname() == "" {
		return siteURL
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
