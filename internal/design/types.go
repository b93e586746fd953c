// Package design defines core types shared across subsystems.
package design

import "time"

// SourceStatus represents the lifecycle state of a design source.
type SourceStatus string

// Source status values persisted in the store.
const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusAccepted   SourceStatus = "accepted"
	SourceStatusRejected   SourceStatus = "rejected"
	SourceStatusFailed     SourceStatus = "failed"
)

// Source is a discovered website considered for capture. Rows are never
// deleted; status transitions form the audit trail.
type Source struct {
	ID              string       `json:"id"`
	URL             string       `json:"url"`
	Category        string       `json:"category"`
	TrustScore      float64      `json:"trust_score"`
	DiscoveryMethod string       `json:"discovery_method"`
	DiscoveryQuery  string       `json:"discovery_query,omitempty"`
	Tags            []string     `json:"tags,omitempty"`
	Status          SourceStatus `json:"status"`
	DiscoveredAt    time.Time    `json:"discovered_at"`
}

// Viewport buckets for screenshots, classified by breakpoint width.
const (
	ViewportDesktop = "desktop"
	ViewportTablet  = "tablet"
	ViewportMobile  = "mobile"
)

// PageAnalysis holds everything captured and scored for a single page.
type PageAnalysis struct {
	URL              string             `json:"url"`
	PageType         string             `json:"page_type"`
	Screenshots      map[string]string  `json:"screenshots"` // viewport bucket -> blob URI
	ExtractedHTML    string             `json:"extracted_html"`
	ExtractedCSS     string             `json:"extracted_css"`
	CategoryScores   map[string]float64 `json:"category_scores"`
	CategoryDetails  map[string]string  `json:"category_details,omitempty"`
	OverallPageScore float64            `json:"overall_page_score"`
	AnalysisModel    string             `json:"analysis_model"`
	Strengths        []string           `json:"strengths,omitempty"`
}

// CapturedDesign is a fully captured and analyzed site. Immutable once
// accepted onto the leaderboard.
type CapturedDesign struct {
	ID                  string         `json:"id"`
	SourceID            string         `json:"source_id"`
	URL                 string         `json:"url"`
	Name                string         `json:"name"`
	CapturedAt          time.Time      `json:"captured_at"`
	Pages               []PageAnalysis `json:"pages"`
	OverallScore        float64        `json:"overall_score"`
	ExtractedPatternIDs []string       `json:"extracted_pattern_ids,omitempty"`
	PassedQualityGate   bool           `json:"passed_quality_gate"`
}

// Pattern is a reusable visual pattern learned from accepted designs.
// Never deleted; observation counts and co-occurrence grow monotonically.
type Pattern struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Category            string         `json:"category"`
	Type                string         `json:"type"`
	Description         string         `json:"description"`
	QualityScore        float64        `json:"quality_score"`
	ObservationCount    int            `json:"observation_count"`
	SourceDesignIDs     []string       `json:"source_design_ids"`
	Tags                []string       `json:"tags,omitempty"`
	HTMLStructure       string         `json:"html_structure,omitempty"`
	CSSStyle            string         `json:"css_style,omitempty"`
	CoOccurringPatterns map[string]int `json:"co_occurring_patterns,omitempty"`
	LearnedAt           time.Time      `json:"learned_at"`
	LastUpdatedAt       time.Time      `json:"last_updated_at"`
}

// Feedback is an append-only human judgment about a captured design.
// Rating is binary in practice: 1 is a thumbs-down, anything else a
// thumbs-up. The 1-5 field shape is kept for wire compatibility.
type Feedback struct {
	DesignID           string    `json:"design_id"`
	Rating             int       `json:"rating"`
	HumanScore         float64   `json:"human_score"`
	LLMScore           float64   `json:"llm_score"`
	Mismatch           float64   `json:"mismatch"`
	CustomName         string    `json:"custom_name,omitempty"`
	TriggeredEvolution bool      `json:"triggered_evolution"`
	ProvidedAt         time.Time `json:"provided_at"`
}

// ModelPerformance tracks scoring calibration for one (model, pageType)
// pair using incremental running statistics.
type ModelPerformance struct {
	Model             string    `json:"model"`
	PageType          string    `json:"page_type"`
	AverageBias       float64   `json:"average_bias"`
	StandardDeviation float64   `json:"standard_deviation"`
	Accuracy          float64   `json:"accuracy"`
	SampleSize        int       `json:"sample_size"`
	LastUpdated       time.Time `json:"last_updated"`
}

// Prompt is a versioned prompt body used for LLM scoring and selection.
// Old versions are retained for audit and rollback.
type Prompt struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Version int    `json:"version"`
}

// LeaderboardEntry is one row of the derived, score-ordered leaderboard.
type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	DesignID string  `json:"design_id"`
	Name     string  `json:"name"`
	URL      string  `json:"url"`
	Score    float64 `json:"score"`
}

// SearchResult is a single hit returned by a search provider.
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// Evaluation is the parsed LLM verdict about a search result.
type Evaluation struct {
	IsDesignWorthy bool     `json:"is_design_worthy"`
	TrustScore     float64  `json:"trust_score"`
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
	Reason         string   `json:"reason,omitempty"`
}

// TrendingPattern is a lightweight popularity signal from recent learning.
type TrendingPattern struct {
	Name             string `json:"name"`
	ObservationCount int    `json:"observation_count"`
}
