// Package browser implements design.Browser using chromedp and headless Chrome.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/uxforge/design-scout/internal/design"
)

// Config controls the shared browser process and its sessions.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	ScreenshotHeight  int
}

// Browser owns one Chrome exec allocator shared by all sessions.
type Browser struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New starts the allocator. Call Close when the process shuts down.
func New(cfg Config) (*Browser, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.ScreenshotHeight <= 0 {
		cfg.ScreenshotHeight = 1080
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (b *Browser) Close() {
	b.allocCancel()
}

// NewSession opens one browser tab. The caller owns its lifecycle; a
// whole-site crawl reuses a single session across pages.
func (b *Browser) NewSession(_ context.Context) (design.BrowserSession, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	return &Session{
		cfg:       b.cfg,
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
	}, nil
}

// Session is one open tab implementing design.BrowserSession.
type Session struct {
	cfg       Config
	tabCtx    context.Context
	tabCancel context.CancelFunc
}

// Close releases the tab.
func (s *Session) Close() error {
	s.tabCancel()
	return nil
}

// Navigate loads the URL and waits for the body to be ready. Client
// rendered content gets its settle delay from the caller.
func (s *Session) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	actions := []chromedp.Action{}
	if s.cfg.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(s.cfg.UserAgent))
	}
	actions = append(actions,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Screenshot resizes the viewport to the given width and captures it.
func (s *Session) Screenshot(ctx context.Context, width int) ([]byte, error) {
	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	var buf []byte
	err := chromedp.Run(runCtx,
		emulation.SetDeviceMetricsOverride(int64(width), int64(s.cfg.ScreenshotHeight), 1, false),
		// Resizing triggers reflow; give the layout a beat to settle.
		chromedp.Sleep(250*time.Millisecond),
		chromedp.CaptureScreenshot(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("screenshot at %dpx: %w", width, err)
	}
	return buf, nil
}

// ExtractHTML returns the raw outer HTML of the current document.
func (s *Session) ExtractHTML(ctx context.Context) (string, error) {
	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("extract html: %w", err)
	}
	return html, nil
}

// extractCSSScript walks same-origin stylesheets and the root element's
// custom properties. Cross-origin sheets throw on cssRules access and
// are skipped.
const extractCSSScript = `(() => {
	const chunks = [];
	for (const sheet of document.styleSheets) {
		try {
			for (const rule of sheet.cssRules) {
				chunks.push(rule.cssText);
			}
		} catch (e) {
			// cross-origin stylesheet, skip
		}
	}
	const rootStyle = getComputedStyle(document.documentElement);
	const custom = [];
	for (const name of rootStyle) {
		if (name.startsWith('--')) {
			custom.push(name + ': ' + rootStyle.getPropertyValue(name).trim() + ';');
		}
	}
	if (custom.length > 0) {
		chunks.push(':root {\n' + custom.join('\n') + '\n}');
	}
	return chunks.join('\n');
})()`

// ExtractCSS returns same-origin stylesheet rules plus computed root
// custom properties.
func (s *Session) ExtractCSS(ctx context.Context) (string, error) {
	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	var css string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(extractCSSScript, &css)); err != nil {
		return "", fmt.Errorf("extract css: %w", err)
	}
	return css, nil
}

// runContext bounds a browser action by both the caller's context and
// the configured navigation timeout, while keeping the tab alive.
func (s *Session) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.NavigationTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}
