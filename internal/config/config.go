// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	DB           DBConfig           `mapstructure:"db"`
	Storage      StorageConfig      `mapstructure:"storage"`
	PubSub       PubSubConfig       `mapstructure:"pubsub"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Search       SearchConfig       `mapstructure:"search"`
	Capture      CaptureConfig      `mapstructure:"capture"`
	Learning     LearningConfig     `mapstructure:"learning"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
}

// ServerConfig controls the operational HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to Postgres. An empty DSN selects the
// in-memory store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig sets the blob destination for screenshots and HTML.
// An empty bucket selects the in-memory blob store.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for lifecycle event publishing. An empty
// project ID selects the in-memory publisher.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// LLMConfig selects the model endpoint used for evaluation and learning.
type LLMConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ProviderQuota sets per-provider call limits. Zero means unmetered.
type ProviderQuota struct {
	APIKey       string `mapstructure:"api_key"`
	DailyLimit   int    `mapstructure:"daily_limit"`
	MonthlyLimit int    `mapstructure:"monthly_limit"`
}

// CuratedSeed is one hand-picked source inserted at startup.
type CuratedSeed struct {
	URL      string   `mapstructure:"url"`
	Category string   `mapstructure:"category"`
	Tags     []string `mapstructure:"tags"`
}

// SearchConfig governs discovery search behavior.
type SearchConfig struct {
	PrimaryProvider string                   `mapstructure:"primary_provider"`
	UserAgent       string                   `mapstructure:"user_agent"`
	Providers       map[string]ProviderQuota `mapstructure:"providers"`
	CuratedSeeds    []CuratedSeed            `mapstructure:"curated_seeds"`
}

// CaptureConfig governs site crawling and page capture.
type CaptureConfig struct {
	MaxPagesPerSite   int     `mapstructure:"max_pages_per_site"`
	BreakpointWidths  []int   `mapstructure:"breakpoint_widths"`
	SettleDelayMs     int     `mapstructure:"settle_delay_ms"`
	PageDelayMs       int     `mapstructure:"page_delay_ms"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	HostRPS           float64 `mapstructure:"host_rps"`
	RespectRobots     bool    `mapstructure:"respect_robots"`
}

// LearningConfig governs pattern extraction and feedback processing.
type LearningConfig struct {
	PageScoreThreshold      float64 `mapstructure:"page_score_threshold"`
	CategoryScoreThreshold  float64 `mapstructure:"category_score_threshold"`
	MismatchThreshold       float64 `mapstructure:"mismatch_threshold"`
	MinFeedbackForEvolution int     `mapstructure:"min_feedback_for_evolution"`
}

// OrchestratorConfig governs the background cycle and leaderboard policy.
type OrchestratorConfig struct {
	LeaderboardTarget    int     `mapstructure:"leaderboard_target"`
	InitialFloor         float64 `mapstructure:"initial_floor"`
	CycleIntervalSeconds int     `mapstructure:"cycle_interval_seconds"`
	TopUpDiscoveryCount  int     `mapstructure:"topup_discovery_count"`
	FullDiscoveryCount   int     `mapstructure:"full_discovery_count"`
	ErrorSleepSeconds    int     `mapstructure:"error_sleep_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DESIGNSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("storage.prefix", "captures")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("search.primary_provider", "brave")
	v.SetDefault("search.user_agent", "design-scout/0.1")
	v.SetDefault("capture.max_pages_per_site", 6)
	v.SetDefault("capture.breakpoint_widths", []int{1440, 768, 375})
	v.SetDefault("capture.settle_delay_ms", 2000)
	v.SetDefault("capture.page_delay_ms", 1500)
	v.SetDefault("capture.nav_timeout_seconds", 30)
	v.SetDefault("capture.host_rps", 0.5)
	v.SetDefault("capture.respect_robots", true)
	v.SetDefault("learning.page_score_threshold", 8.0)
	v.SetDefault("learning.category_score_threshold", 8.5)
	v.SetDefault("learning.mismatch_threshold", 2.0)
	v.SetDefault("learning.min_feedback_for_evolution", 5)
	v.SetDefault("orchestrator.leaderboard_target", 50)
	v.SetDefault("orchestrator.initial_floor", 7.0)
	v.SetDefault("orchestrator.cycle_interval_seconds", 300)
	v.SetDefault("orchestrator.topup_discovery_count", 3)
	v.SetDefault("orchestrator.full_discovery_count", 10)
	v.SetDefault("orchestrator.error_sleep_seconds", 60)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Capture.MaxPagesPerSite <= 0 {
		return fmt.Errorf("capture.max_pages_per_site must be > 0")
	}
	if len(c.Capture.BreakpointWidths) == 0 {
		return fmt.Errorf("capture.breakpoint_widths must not be empty")
	}
	if c.Orchestrator.LeaderboardTarget <= 0 {
		return fmt.Errorf("orchestrator.leaderboard_target must be > 0")
	}
	if c.Learning.MinFeedbackForEvolution <= 0 {
		return fmt.Errorf("learning.min_feedback_for_evolution must be > 0")
	}
	return nil
}

// LLMTimeout converts the configured LLM timeout into a duration.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}
