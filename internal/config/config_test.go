package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: false
db:
  dsn: postgres://scout@localhost/scout
  max_conns: 4
storage:
  gcs_bucket: screenshots
  prefix: shots
llm:
  api_key: secret
  model: gpt-4o
  timeout_seconds: 45
search:
  primary_provider: serper
  user_agent: scout-agent
  providers:
    brave:
      api_key: brave-key
      daily_limit: 100
      monthly_limit: 2000
  curated_seeds:
    - url: https://stripe.com
      category: saas
      tags: [fintech]
capture:
  max_pages_per_site: 4
  breakpoint_widths: [1280, 375]
  respect_robots: false
learning:
  page_score_threshold: 7.5
  min_feedback_for_evolution: 3
orchestrator:
  leaderboard_target: 25
  initial_floor: 6.5
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.DB.DSN != "postgres://scout@localhost/scout" || cfg.DB.MaxConns != 4 {
		t.Fatalf("expected db overrides to apply: %+v", cfg.DB)
	}
	provider, ok := cfg.Search.Providers["brave"]
	if !ok || provider.APIKey != "brave-key" || provider.DailyLimit != 100 {
		t.Fatalf("expected brave provider quota to be loaded: %+v", cfg.Search.Providers)
	}
	if len(cfg.Search.CuratedSeeds) != 1 || cfg.Search.CuratedSeeds[0].URL != "https://stripe.com" {
		t.Fatalf("expected curated seed to be loaded: %+v", cfg.Search.CuratedSeeds)
	}
	if cfg.Capture.MaxPagesPerSite != 4 || cfg.Capture.RespectRobots {
		t.Fatalf("expected capture overrides to apply: %+v", cfg.Capture)
	}
	if len(cfg.Capture.BreakpointWidths) != 2 || cfg.Capture.BreakpointWidths[0] != 1280 {
		t.Fatalf("expected breakpoint widths override: %v", cfg.Capture.BreakpointWidths)
	}
	if cfg.Learning.PageScoreThreshold != 7.5 || cfg.Learning.MinFeedbackForEvolution != 3 {
		t.Fatalf("expected learning overrides to apply: %+v", cfg.Learning)
	}
	if cfg.Orchestrator.LeaderboardTarget != 25 || cfg.Orchestrator.InitialFloor != 6.5 {
		t.Fatalf("expected orchestrator overrides to apply: %+v", cfg.Orchestrator)
	}
	if got := cfg.LLMTimeout(); got != 45*time.Second {
		t.Fatalf("expected llm timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Capture.MaxPagesPerSite != 6 {
		t.Fatalf("expected default max pages 6, got %d", cfg.Capture.MaxPagesPerSite)
	}
	if cfg.Orchestrator.CycleIntervalSeconds != 300 {
		t.Fatalf("expected default cycle interval 300s, got %d", cfg.Orchestrator.CycleIntervalSeconds)
	}
	if !cfg.Capture.RespectRobots {
		t.Fatalf("expected robots respected by default")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:       ServerConfig{Port: 8080},
		Capture:      CaptureConfig{MaxPagesPerSite: 6, BreakpointWidths: []int{1440}},
		Learning:     LearningConfig{MinFeedbackForEvolution: 5},
		Orchestrator: OrchestratorConfig{LeaderboardTarget: 50},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid max pages",
			cfg: func() Config {
				c := base
				c.Capture.MaxPagesPerSite = 0
				return c
			}(),
			want: "capture.max_pages_per_site",
		},
		{
			name: "missing breakpoints",
			cfg: func() Config {
				c := base
				c.Capture.BreakpointWidths = nil
				return c
			}(),
			want: "capture.breakpoint_widths",
		},
		{
			name: "invalid leaderboard target",
			cfg: func() Config {
				c := base
				c.Orchestrator.LeaderboardTarget = 0
				return c
			}(),
			want: "orchestrator.leaderboard_target",
		},
		{
			name: "invalid evolution minimum",
			cfg: func() Config {
				c := base
				c.Learning.MinFeedbackForEvolution = 0
				return c
			}(),
			want: "learning.min_feedback_for_evolution",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
