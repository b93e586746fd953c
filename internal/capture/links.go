package capture

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/uxforge/design-scout/internal/design"
)

// Path fragments that never lead to design-worthy pages.
var excludedPathFragments = []string{
	"login", "signin", "sign-in", "signup", "sign-up", "register",
	"logout", "auth", "password", "account",
	"privacy", "terms", "legal", "cookie", "gdpr",
	"support", "help", "faq", "contact",
	"admin", "cart", "checkout", "unsubscribe",
}

// heuristicPageTypes maps URL substrings to page types when the LLM
// cannot produce a usable selection. Order expresses priority.
var heuristicPageTypes = []struct {
	fragment string
	pageType string
}{
	{"pricing", "pricing"},
	{"features", "features"},
	{"product", "features"},
	{"about", "about"},
	{"blog", "blog"},
	{"dashboard", "dashboard"},
}

const maxHeuristicSelections = 5

// extractLinks pulls all same-host anchor targets out of the page,
// normalized to scheme://host/path and filtered against the exclusion
// list. The page's own URL is dropped.
func extractLinks(pageURL, html string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		normalized, err := design.NormalizePageURL(resolved.String())
		if err != nil {
			return
		}
		if !design.SameHost(pageURL, normalized) {
			return
		}
		if isExcludedPath(resolved.Path) {
			return
		}
		self, err := design.NormalizePageURL(pageURL)
		if err == nil && normalized == self {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})
	return links, nil
}

func isExcludedPath(path string) bool {
	lowered := strings.ToLower(path)
	for _, fragment := range excludedPathFragments {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}
	return false
}

// pageSelection pairs a link with the page type the selector assigned.
type pageSelection struct {
	URL      string
	PageType string
}

// heuristicSelect labels links by URL substring, one page per type,
// capped at maxHeuristicSelections.
func heuristicSelect(links []string, limit int) []pageSelection {
	if limit > maxHeuristicSelections {
		limit = maxHeuristicSelections
	}
	usedTypes := make(map[string]struct{})
	var selected []pageSelection
	for _, entry := range heuristicPageTypes {
		if len(selected) >= limit {
			break
		}
		if _, used := usedTypes[entry.pageType]; used {
			continue
		}
		for _, link := range links {
			if strings.Contains(strings.ToLower(link), entry.fragment) {
				selected = append(selected, pageSelection{URL: link, PageType: entry.pageType})
				usedTypes[entry.pageType] = struct{}{}
				break
			}
		}
	}
	return selected
}

// parseSelections reads "url | pageType" lines out of the LLM reply,
// keeping only URLs that were actually offered as candidates.
func parseSelections(raw string, candidates []string, limit int) []pageSelection {
	candidateSet := make(map[string]struct{}, len(candidates))
	for _, link := range candidates {
		candidateSet[link] = struct{}{}
	}

	var selected []pageSelection
	seen := make(map[string]struct{})
	for _, line := range strings.Split(raw, "\n") {
		if len(selected) >= limit {
			break
		}
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			continue
		}
		link := strings.TrimSpace(parts[0])
		pageType := strings.ToLower(strings.TrimSpace(parts[1]))
		if link == "" || pageType == "" {
			continue
		}
		if _, ok := candidateSet[link]; !ok {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		selected = append(selected, pageSelection{URL: link, PageType: pageType})
	}
	return selected
}

var (
	scriptRe   = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	noscriptRe = regexp.MustCompile(`(?is)<noscript\b[^>]*>.*?</noscript>`)
	commentRe  = regexp.MustCompile(`(?s)<!--.*?-->`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// simplifyHTML strips scripts and comments and collapses whitespace so
// stored DOM snapshots keep structure without payload noise.
func simplifyHTML(html string) string {
	out := scriptRe.ReplaceAllString(html, "")
	out = noscriptRe.ReplaceAllString(out, "")
	out = commentRe.ReplaceAllString(out, "")
	out = spaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// classifyViewport buckets a breakpoint width.
func classifyViewport(width int) string {
	switch {
	case width >= 1024:
		return design.ViewportDesktop
	case width >= 640:
		return design.ViewportTablet
	default:
		return design.ViewportMobile
	}
}
