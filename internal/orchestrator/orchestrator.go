// Package orchestrator drives the autonomous loop: keep the leaderboard
// stocked, walk sources through their lifecycle and gate designs on the
// current floor.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uxforge/design-scout/internal/design"
	"github.com/uxforge/design-scout/internal/metrics"
)

// Event topics published on source and design transitions.
const (
	TopicDesignAccepted = "design-accepted"
	TopicSourceStatus   = "source-status"
)

// Discoverer is the slice of the discovery service the orchestrator uses.
type Discoverer interface {
	RunDiscoveryCycle(ctx context.Context, targetCount int) (int, error)
}

// Crawler is the slice of the capture service the orchestrator uses.
type Crawler interface {
	CrawlWebsite(ctx context.Context, source design.Source) (design.CapturedDesign, error)
}

// Learner extracts patterns from accepted designs.
type Learner interface {
	ExtractPatterns(ctx context.Context, d design.CapturedDesign) ([]string, error)
}

// Config controls the loop cadence and leaderboard shape.
type Config struct {
	LeaderboardTarget   int
	InitialFloor        float64
	CycleInterval       time.Duration
	ErrorSleep          time.Duration
	TopUpDiscoveryCount int
	FullDiscoveryCount  int
}

// Orchestrator owns the background processing loop.
type Orchestrator struct {
	store     design.Store
	discovery Discoverer
	capture   Crawler
	analyzer  design.Analyzer
	learning  Learner
	publisher design.Publisher
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator.
func New(
	store design.Store,
	discovery Discoverer,
	capture Crawler,
	analyzer design.Analyzer,
	learning Learner,
	publisher design.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.LeaderboardTarget <= 0 {
		cfg.LeaderboardTarget = 50
	}
	if cfg.InitialFloor <= 0 {
		cfg.InitialFloor = 7.0
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 5 * time.Minute
	}
	if cfg.ErrorSleep <= 0 {
		cfg.ErrorSleep = time.Minute
	}
	if cfg.TopUpDiscoveryCount <= 0 {
		cfg.TopUpDiscoveryCount = 3
	}
	if cfg.FullDiscoveryCount <= 0 {
		cfg.FullDiscoveryCount = 10
	}
	return &Orchestrator{
		store:     store,
		discovery: discovery,
		capture:   capture,
		analyzer:  analyzer,
		learning:  learning,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run recovers stuck sources, then cycles until the context is canceled.
// Cycle errors are logged and answered with a longer sleep, never
// propagated; the loop itself must not die.
func (o *Orchestrator) Run(ctx context.Context) error {
	reset, err := o.store.ResetStuckProcessingSources(ctx)
	if err != nil {
		return fmt.Errorf("reset stuck sources: %w", err)
	}
	if reset > 0 {
		o.logger.Info("recovered stuck sources", zap.Int("count", reset))
	}

	for {
		start := time.Now()
		err := o.RunCycle(ctx)
		metrics.ObserveCycle(time.Since(start))

		sleep := o.cfg.CycleInterval
		if err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("cycle failed", zap.Error(err))
			sleep = o.cfg.ErrorSleep
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// RunCycle performs one pass: top up discovery when the leaderboard is
// below target, then process one pending source end to end.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	_, size, err := o.store.GetLeaderboardFloor(ctx)
	if err != nil {
		return fmt.Errorf("read leaderboard: %w", err)
	}
	if size < o.cfg.LeaderboardTarget {
		if _, err := o.discovery.RunDiscoveryCycle(ctx, o.cfg.TopUpDiscoveryCount); err != nil {
			o.logger.Warn("top-up discovery failed", zap.Error(err))
		}
	}

	source, ok, err := o.nextSource(ctx)
	if err != nil {
		return err
	}
	if !ok {
		o.logger.Info("no pending sources, cycle idle")
		return nil
	}
	return o.ProcessSource(ctx, source)
}

// nextSource pops the highest-trust pending source, running a larger
// discovery pass once if the queue is empty.
func (o *Orchestrator) nextSource(ctx context.Context) (design.Source, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		pending, err := o.store.GetPendingSources(ctx, 1)
		if err != nil {
			return design.Source{}, false, fmt.Errorf("load pending sources: %w", err)
		}
		if len(pending) > 0 {
			return pending[0], true, nil
		}
		if attempt == 0 {
			if _, err := o.discovery.RunDiscoveryCycle(ctx, o.cfg.FullDiscoveryCount); err != nil {
				o.logger.Warn("discovery failed", zap.Error(err))
			}
		}
	}
	return design.Source{}, false, nil
}

// ProcessSource walks one source through capture, analysis and the
// quality gate, ending in exactly one of accepted, rejected or failed.
func (o *Orchestrator) ProcessSource(ctx context.Context, source design.Source) error {
	if err := o.transition(ctx, source, design.SourceStatusProcessing); err != nil {
		return err
	}

	captured, err := o.capture.CrawlWebsite(ctx, source)
	if err != nil {
		o.logger.Warn("crawl failed",
			zap.String("url", source.URL), zap.Error(err))
		return o.transition(ctx, source, design.SourceStatusFailed)
	}

	analyzed, err := o.analyzer.Analyze(ctx, captured)
	if err != nil {
		if errors.Is(err, design.ErrVisionExhausted) {
			o.logger.Warn("analysis budget exhausted, failing source",
				zap.String("url", source.URL), zap.Error(err))
			return o.transition(ctx, source, design.SourceStatusFailed)
		}
		o.requeue(ctx, source)
		return fmt.Errorf("analyze %s: %w", source.URL, err)
	}

	floor := o.currentFloor(ctx)
	if analyzed.OverallScore < floor {
		o.logger.Info("design below floor, rejecting",
			zap.String("url", source.URL),
			zap.Float64("score", analyzed.OverallScore),
			zap.Float64("floor", floor),
		)
		analyzed.PassedQualityGate = false
		if err := o.store.StoreDesign(ctx, analyzed); err != nil {
			o.requeue(ctx, source)
			return fmt.Errorf("store rejected design: %w", err)
		}
		metrics.ObserveDesign(false)
		return o.transition(ctx, source, design.SourceStatusRejected)
	}

	return o.acceptDesign(ctx, source, analyzed)
}

func (o *Orchestrator) acceptDesign(ctx context.Context, source design.Source, d design.CapturedDesign) error {
	d.PassedQualityGate = true

	patternIDs, err := o.learning.ExtractPatterns(ctx, d)
	if err != nil {
		o.logger.Warn("pattern extraction failed",
			zap.String("design_id", d.ID), zap.Error(err))
	} else {
		d.ExtractedPatternIDs = patternIDs
	}

	if err := o.store.StoreDesign(ctx, d); err != nil {
		o.requeue(ctx, source)
		return fmt.Errorf("store design: %w", err)
	}
	if err := o.store.UpdateLeaderboardRanks(ctx); err != nil {
		o.requeue(ctx, source)
		return fmt.Errorf("update ranks: %w", err)
	}
	if err := o.evictOverflow(ctx); err != nil {
		o.requeue(ctx, source)
		return err
	}
	metrics.ObserveDesign(true)

	if _, err := o.publisher.Publish(ctx, TopicDesignAccepted, map[string]any{
		"design_id": d.ID,
		"url":       d.URL,
		"score":     d.OverallScore,
	}); err != nil {
		o.logger.Warn("publish accepted design failed", zap.Error(err))
	}

	o.logger.Info("design accepted",
		zap.String("url", d.URL),
		zap.Float64("score", d.OverallScore),
		zap.Int("patterns", len(d.ExtractedPatternIDs)),
	)
	return o.transition(ctx, source, design.SourceStatusAccepted)
}

// evictOverflow drops the lowest-ranked member while the leaderboard
// exceeds its target size.
func (o *Orchestrator) evictOverflow(ctx context.Context) error {
	for {
		_, size, err := o.store.GetLeaderboardFloor(ctx)
		if err != nil {
			return fmt.Errorf("read leaderboard: %w", err)
		}
		if size <= o.cfg.LeaderboardTarget {
			return nil
		}
		entries, err := o.store.GetLeaderboard(ctx, size)
		if err != nil {
			return fmt.Errorf("read leaderboard entries: %w", err)
		}
		lowest := entries[len(entries)-1]
		if err := o.store.EvictFromLeaderboard(ctx, lowest.DesignID); err != nil {
			return fmt.Errorf("evict %s: %w", lowest.DesignID, err)
		}
		metrics.ObserveEviction()
		o.logger.Info("evicted lowest design",
			zap.String("design_id", lowest.DesignID),
			zap.Float64("score", lowest.Score),
		)
	}
}

// currentFloor is the lowest member's score once the board is full, the
// configured initial threshold while it is filling.
func (o *Orchestrator) currentFloor(ctx context.Context) float64 {
	floor, size, err := o.store.GetLeaderboardFloor(ctx)
	if err != nil || size < o.cfg.LeaderboardTarget {
		return o.cfg.InitialFloor
	}
	return floor
}

// requeue returns a source to the pending pool after a transient
// failure so a later cycle can retry it.
func (o *Orchestrator) requeue(ctx context.Context, source design.Source) {
	if err := o.transition(ctx, source, design.SourceStatusPending); err != nil {
		o.logger.Error("requeue source failed",
			zap.String("source_id", source.ID), zap.Error(err))
	}
}

func (o *Orchestrator) transition(ctx context.Context, source design.Source, status design.SourceStatus) error {
	if err := o.store.UpdateSourceStatus(ctx, source.ID, status); err != nil {
		return fmt.Errorf("mark source %s %s: %w", source.ID, status, err)
	}
	metrics.ObserveSourceStatus(string(status))
	if _, err := o.publisher.Publish(ctx, TopicSourceStatus, map[string]any{
		"source_id": source.ID,
		"url":       source.URL,
		"status":    string(status),
	}); err != nil {
		o.logger.Warn("publish source status failed", zap.Error(err))
	}
	return nil
}
