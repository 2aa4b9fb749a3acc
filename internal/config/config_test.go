package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "radar.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.LLM.Provider != ProviderAnthropic || cfg.LLM.APIKey != "sk-ant" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Pipeline.BatchDelay != 500*time.Millisecond || cfg.Patterns.AnomalyThreshold != 0.9 || !cfg.Patterns.Refine() {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Schedule.QuarterlySynthesis != "0 8 15 1,4,7,10 *" || cfg.Server.Addr != ":8080" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
  dsn: postgres://radar@localhost/radar
llm:
  provider: openai
  model: gpt-4o-mini
pipeline:
  batch_delay: 1s
patterns:
  timing_refinement: false
limits:
  github:
    per_minute: 10
schedule:
  anomaly_check: "-"
collectors:
  articles:
    enabled: true
    urls: [https://example.com/thread]
`)
	t.Setenv("OPENAI_API_KEY", "sk-oai")
	t.Setenv("RADAR_LOG_LEVEL", "debug")
	t.Setenv("GITHUB_TOKEN", "ghp")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.LLM.APIKey != "sk-oai" || cfg.Embedding.APIKey != "sk-oai" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Pipeline.BatchDelay != time.Second || cfg.Patterns.Refine() || cfg.Log.Level != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Limits["github"].PerMinute != 10 || cfg.Collectors.GitHub.Token != "ghp" || len(cfg.Collectors.Articles.URLs) != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Schedule.AnomalyCheck != "-" || cfg.Schedule.WeeklyDigest != "0 9 * * 1" {
		t.Fatalf("schedule = %+v", cfg.Schedule)
	}
	if !cfg.Collectors.HackerNews.Enabled {
		t.Fatal("unset collector sections keep their defaults")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"driver", "database: {driver: mysql}", "database.driver"},
		{"provider", "llm: {provider: cohere}", "llm.provider"},
		{"limit", "limits: {reddit: {per_minute: -1}}", "limits.reddit"},
		{"min score", "opportunity: {min_score: 2}", "opportunity.min_score"},
		{"paper", "report: {paper: tabloid}", "report.paper"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
