// Package main wires together the design scout service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uxforge/design-scout/internal/analysis"
	"github.com/uxforge/design-scout/internal/api"
	"github.com/uxforge/design-scout/internal/browser"
	"github.com/uxforge/design-scout/internal/capture"
	"github.com/uxforge/design-scout/internal/clock/system"
	"github.com/uxforge/design-scout/internal/config"
	"github.com/uxforge/design-scout/internal/design"
	"github.com/uxforge/design-scout/internal/discovery"
	"github.com/uxforge/design-scout/internal/discovery/providers"
	"github.com/uxforge/design-scout/internal/id/uuid"
	"github.com/uxforge/design-scout/internal/learning"
	"github.com/uxforge/design-scout/internal/llm"
	"github.com/uxforge/design-scout/internal/logging"
	"github.com/uxforge/design-scout/internal/metrics"
	"github.com/uxforge/design-scout/internal/orchestrator"
	memorypublisher "github.com/uxforge/design-scout/internal/publisher/memory"
	"github.com/uxforge/design-scout/internal/quota"
	"github.com/uxforge/design-scout/internal/ratelimit"
	"github.com/uxforge/design-scout/internal/storage/gcs"
	memorystorage "github.com/uxforge/design-scout/internal/storage/memory"
	"github.com/uxforge/design-scout/internal/storage/postgres"

	gcppubsub "cloud.google.com/go/pubsub"
	pubsubpublisher "github.com/uxforge/design-scout/internal/publisher/pubsub"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("service failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	clock := system.New()
	idGen := uuid.New()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	blobs, closeBlobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBlobs()

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	llmClient, err := llm.New(llm.Config{
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		DefaultModel: cfg.LLM.Model,
		Timeout:      cfg.LLMTimeout(),
	}, logger.Named("llm"))
	if err != nil {
		return fmt.Errorf("init llm client: %w", err)
	}

	tracker := quota.New(quotaLimits(cfg.Search), clock)
	discoverySvc := discovery.New(
		store, llmClient, tracker,
		searchProviders(cfg.Search),
		idGen, clock,
		discovery.Config{PrimaryProvider: cfg.Search.PrimaryProvider},
		logger.Named("discovery"),
	)
	if len(cfg.Search.CuratedSeeds) > 0 {
		if err := discoverySvc.SeedCuratedSources(ctx, curatedSeeds(cfg.Search.CuratedSeeds)); err != nil {
			return fmt.Errorf("seed curated sources: %w", err)
		}
	}

	chrome, err := browser.New(browser.Config{
		UserAgent:         cfg.Search.UserAgent,
		NavigationTimeout: time.Duration(cfg.Capture.NavTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init browser: %w", err)
	}
	defer chrome.Close()

	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Capture.HostRPS, DefaultBurst: 1})
	captureSvc := capture.New(
		chrome, llmClient, blobs, limiter, store, idGen, clock,
		capture.Config{
			MaxPagesPerSite:  cfg.Capture.MaxPagesPerSite,
			BreakpointWidths: cfg.Capture.BreakpointWidths,
			SettleDelay:      time.Duration(cfg.Capture.SettleDelayMs) * time.Millisecond,
			PageDelay:        time.Duration(cfg.Capture.PageDelayMs) * time.Millisecond,
			BlobPrefix:       cfg.Storage.Prefix,
			UserAgent:        cfg.Search.UserAgent,
			RespectRobots:    cfg.Capture.RespectRobots,
		},
		logger.Named("capture"),
	)

	analyzer := analysis.New(llmClient, store, analysis.Config{Model: cfg.LLM.Model}, logger.Named("analysis"))
	if err := analyzer.SeedPrompt(ctx); err != nil {
		logger.Warn("seed scoring prompt failed", zap.Error(err))
	}

	learningSvc := learning.New(store, llmClient, clock, learning.Config{
		PageScoreThreshold:      cfg.Learning.PageScoreThreshold,
		CategoryScoreThreshold:  cfg.Learning.CategoryScoreThreshold,
		MismatchThreshold:       cfg.Learning.MismatchThreshold,
		MinFeedbackForEvolution: cfg.Learning.MinFeedbackForEvolution,
	}, logger.Named("learning"))

	orch := orchestrator.New(
		store, discoverySvc, captureSvc, analyzer, learningSvc, publisher,
		orchestrator.Config{
			LeaderboardTarget:   cfg.Orchestrator.LeaderboardTarget,
			InitialFloor:        cfg.Orchestrator.InitialFloor,
			CycleInterval:       time.Duration(cfg.Orchestrator.CycleIntervalSeconds) * time.Second,
			ErrorSleep:          time.Duration(cfg.Orchestrator.ErrorSleepSeconds) * time.Second,
			TopUpDiscoveryCount: cfg.Orchestrator.TopUpDiscoveryCount,
			FullDiscoveryCount:  cfg.Orchestrator.FullDiscoveryCount,
		},
		logger.Named("orchestrator"),
	)

	apiServer := api.NewServer(store, learningSvc, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	orchDone := make(chan error, 1)
	go func() {
		logger.Info("orchestrator started")
		orchDone <- orch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	return <-orchDone
}

func buildStore(ctx context.Context, cfg config.Config) (design.Store, func(), error) {
	if cfg.DB.DSN == "" {
		return memorystorage.New(), func() {}, nil
	}
	store, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init postgres store: %w", err)
	}
	return store, store.Close, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (design.BlobStore, func(), error) {
	if cfg.Storage.GCSBucket == "" {
		return memorystorage.NewBlobStore(), func() {}, nil
	}
	blobs, err := gcs.New(ctx, cfg.Storage.GCSBucket)
	if err != nil {
		return nil, nil, fmt.Errorf("init gcs blob store: %w", err)
	}
	return blobs, func() { _ = blobs.Close() }, nil
}

func buildPublisher(ctx context.Context, cfg config.Config) (design.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" {
		return memorypublisher.New(), func() {}, nil
	}
	client, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client)
	return pub, func() {
		pub.Close()
		_ = client.Close()
	}, nil
}

func quotaLimits(search config.SearchConfig) map[string]quota.Limits {
	limits := make(map[string]quota.Limits, len(search.Providers))
	for name, provider := range search.Providers {
		limits[name] = quota.Limits{
			Daily:   provider.DailyLimit,
			Monthly: provider.MonthlyLimit,
		}
	}
	return limits
}

func curatedSeeds(seeds []config.CuratedSeed) []discovery.CuratedSeed {
	out := make([]discovery.CuratedSeed, 0, len(seeds))
	for _, seed := range seeds {
		out = append(out, discovery.CuratedSeed{
			URL:      seed.URL,
			Category: seed.Category,
			Tags:     seed.Tags,
		})
	}
	return out
}

func searchProviders(search config.SearchConfig) []design.SearchProvider {
	var list []design.SearchProvider
	if p, ok := search.Providers["brave"]; ok && p.APIKey != "" {
		list = append(list, providers.NewBrave(p.APIKey))
	}
	if p, ok := search.Providers["serper"]; ok && p.APIKey != "" {
		list = append(list, providers.NewSerper(p.APIKey))
	}
	// The unmetered scrape fallback is always available.
	list = append(list, providers.NewDuckDuckGo(search.UserAgent))
	return list
}
