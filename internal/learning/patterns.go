package learning

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/uxforge/design-scout/internal/design"
)

const (
	maxHTMLExcerpt = 4096
	maxCSSExcerpt  = 4096
)

// tagVocabulary maps strength keywords to pattern tags. Matching is
// case-insensitive substring over the analysis strengths.
var tagVocabulary = []struct {
	keyword string
	tag     string
}{
	{"typography", "typography"},
	{"font", "typography"},
	{"whitespace", "spacing"},
	{"spacing", "spacing"},
	{"color", "color"},
	{"contrast", "color"},
	{"gradient", "color"},
	{"animation", "motion"},
	{"transition", "motion"},
	{"grid", "layout"},
	{"layout", "layout"},
	{"hierarchy", "hierarchy"},
	{"navigation", "navigation"},
	{"minimal", "minimal"},
	{"illustration", "illustration"},
	{"imagery", "imagery"},
	{"accessib", "accessibility"},
}

// patternName builds a stable identifier for one (pageType, category)
// observation of a site, so re-capturing the same site updates the
// existing pattern instead of minting a new one.
func patternName(pageType, category, sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return fmt.Sprintf("%s-%s-%s", slug(pageType), slug(category), hex.EncodeToString(sum[:4]))
}

func slug(s string) string {
	lowered := strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, lowered)
}

// strengthTags derives tags from the free-text strengths the analysis
// reported for a page.
func strengthTags(strengths []string) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, strength := range strengths {
		lowered := strings.ToLower(strength)
		for _, entry := range tagVocabulary {
			if !strings.Contains(lowered, entry.keyword) {
				continue
			}
			if _, dup := seen[entry.tag]; dup {
				continue
			}
			seen[entry.tag] = struct{}{}
			tags = append(tags, entry.tag)
		}
	}
	return tags
}

func excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// buildPattern constructs the first observation of a pattern from one
// scored page.
func buildPattern(d design.CapturedDesign, page design.PageAnalysis, category string, score float64, now time.Time) design.Pattern {
	name := patternName(page.PageType, category, d.URL)
	detail := ""
	if page.CategoryDetails != nil {
		detail = page.CategoryDetails[category]
	}
	return design.Pattern{
		ID:                  name,
		Name:                name,
		Category:            category,
		Type:                page.PageType,
		Description:         detail,
		QualityScore:        score,
		ObservationCount:    1,
		SourceDesignIDs:     []string{d.ID},
		Tags:                strengthTags(page.Strengths),
		HTMLStructure:       excerpt(page.ExtractedHTML, maxHTMLExcerpt),
		CSSStyle:            excerpt(page.ExtractedCSS, maxCSSExcerpt),
		CoOccurringPatterns: make(map[string]int),
		LearnedAt:           now,
		LastUpdatedAt:       now,
	}
}
