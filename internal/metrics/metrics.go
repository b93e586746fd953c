// Package metrics exposes Prometheus collectors for the design scout service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	searchCallsTotal       *prometheus.CounterVec
	sourcesTotal           *prometheus.CounterVec
	designsTotal           *prometheus.CounterVec
	patternsExtractedTotal prometheus.Counter
	leaderboardEvictions   prometheus.Counter
	pagesCapturedTotal     *prometheus.CounterVec
	cycleDurationSeconds   prometheus.Histogram
	llmCallDurationSeconds *prometheus.HistogramVec
	feedbackTotal          *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		searchCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_search_calls_total",
				Help: "Total search provider calls, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		sourcesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_sources_total",
				Help: "Total source status transitions, labeled by status.",
			},
			[]string{"status"},
		)

		designsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_designs_total",
				Help: "Total analyzed designs, labeled by quality gate outcome.",
			},
			[]string{"gate"},
		)

		patternsExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scout_patterns_extracted_total",
				Help: "Total design patterns extracted from accepted designs.",
			},
		)

		leaderboardEvictions = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scout_leaderboard_evictions_total",
				Help: "Total designs evicted from the leaderboard.",
			},
		)

		pagesCapturedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_pages_captured_total",
				Help: "Total pages captured, labeled by page type and outcome.",
			},
			[]string{"page_type", "outcome"},
		)

		cycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scout_cycle_duration_seconds",
				Help:    "Histogram of orchestrator cycle durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		llmCallDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scout_llm_call_duration_seconds",
				Help:    "Histogram of LLM call latencies, labeled by purpose.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"purpose"},
		)

		feedbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_feedback_total",
				Help: "Total feedback rows processed, labeled by rating.",
			},
			[]string{"rating"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSearchCall increments the search call counter.
func ObserveSearchCall(provider, outcome string) {
	searchCallsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveSourceStatus increments the source transition counter.
func ObserveSourceStatus(status string) {
	sourcesTotal.WithLabelValues(status).Inc()
}

// ObserveDesign increments the analyzed-design counter for the gate outcome.
func ObserveDesign(passedGate bool) {
	gate := "rejected"
	if passedGate {
		gate = "accepted"
	}
	designsTotal.WithLabelValues(gate).Inc()
}

// ObservePatternExtracted increments the extracted pattern counter.
func ObservePatternExtracted() {
	patternsExtractedTotal.Inc()
}

// ObserveEviction increments the leaderboard eviction counter.
func ObserveEviction() {
	leaderboardEvictions.Inc()
}

// ObservePageCapture increments the page capture counter.
func ObservePageCapture(pageType, outcome string) {
	pagesCapturedTotal.WithLabelValues(pageType, outcome).Inc()
}

// ObserveCycle records the duration of one orchestrator cycle.
func ObserveCycle(duration time.Duration) {
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveLLMCall records the latency of one LLM call.
func ObserveLLMCall(purpose string, duration time.Duration) {
	llmCallDurationSeconds.WithLabelValues(purpose).Observe(duration.Seconds())
}

// ObserveFeedback increments the feedback counter for a rating bucket.
func ObserveFeedback(rating string) {
	feedbackTotal.WithLabelValues(rating).Inc()
}
