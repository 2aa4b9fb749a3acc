// Package config loads the radar's YAML configuration and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joelkehle/opportunity-radar/internal/ratelimit"
	"github.com/joelkehle/opportunity-radar/internal/report"
	"github.com/joelkehle/opportunity-radar/internal/scheduler"
	"github.com/joelkehle/opportunity-radar/internal/telemetry"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	Database    Database                   `yaml:"database"`
	LLM         LLM                        `yaml:"llm"`
	Embedding   Embedding                  `yaml:"embedding"`
	Log         Log                        `yaml:"log"`
	Limits      map[string]ratelimit.Limit `yaml:"limits"`
	Pipeline    Pipeline                   `yaml:"pipeline"`
	Patterns    Patterns                   `yaml:"patterns"`
	Opportunity Opportunity                `yaml:"opportunity"`
	Schedule    scheduler.Specs            `yaml:"schedule"`
	Server      Server                     `yaml:"server"`
	Telemetry   telemetry.TracingConfig    `yaml:"telemetry"`
	Collectors  Collectors                 `yaml:"collectors"`
	Report      Report                     `yaml:"report"`
}

type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LLM struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

type Embedding struct {
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	MaxChars  int    `yaml:"max_chars"`
	BatchSize int    `yaml:"batch_size"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Pipeline struct {
	BatchDelay        time.Duration `yaml:"batch_delay"`
	NoveltyWindowDays int           `yaml:"novelty_window_days"`
	NoveltyLimit      int           `yaml:"novelty_limit"`
	ProcessLimit      int           `yaml:"process_limit"`
	// VelocityBaseline is the week-over-week growth that counts as normal.
	// Zero keeps the tracker default.
	VelocityBaseline  float64       `yaml:"velocity_baseline"`
}

type Patterns struct {
	WindowDays       int     `yaml:"window_days"`
	AnomalyDays      int     `yaml:"anomaly_days"`
	AnomalyThreshold float64 `yaml:"anomaly_threshold"`
	TimingRefinement *bool   `yaml:"timing_refinement"`
}

// Refine reports whether detected patterns get the model timing pass.
func (p Patterns) Refine() bool {
	return p.TimingRefinement == nil || *p.TimingRefinement
}

type Opportunity struct {
	MinScore float64 `yaml:"min_score"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Report struct {
	ChromePath string `yaml:"chrome_path"`
	// Paper is the PDF paper size, letter or a4.
	Paper string `yaml:"paper"`
	// Dir receives the markdown reports of scheduled digest runs. Empty
	// disables writing them.
	Dir string `yaml:"dir"`
}

type Collectors struct {
	HackerNews HackerNews `yaml:"hacker_news"`
	GitHub     GitHub     `yaml:"github"`
	Articles   Articles   `yaml:"articles"`
}

type HackerNews struct {
	Enabled bool `yaml:"enabled"`
}

type GitHub struct {
	Enabled    bool     `yaml:"enabled"`
	Token      string   `yaml:"token"`
	Languages  []string `yaml:"languages"`
	MinStars   int      `yaml:"min_stars"`
	WindowDays int      `yaml:"window_days"`
}

type Articles struct {
	Enabled bool     `yaml:"enabled"`
	URLs    []string `yaml:"urls"`
}

func Default() Config {
	return Config{
		Database:  Database{Driver: "sqlite", DSN: "data/radar.db"},
		LLM:       LLM{Provider: ProviderAnthropic, MaxTokens: 4096},
		Embedding: Embedding{Model: "text-embedding-3-small", MaxChars: 30000, BatchSize: 100},
		Log:       Log{Level: "info"},
		Pipeline: Pipeline{
			BatchDelay:        500 * time.Millisecond,
			NoveltyWindowDays: 7,
			NoveltyLimit:      1000,
			ProcessLimit:      100,
		},
		Patterns:    Patterns{WindowDays: 30, AnomalyDays: 7, AnomalyThreshold: 0.9},
		Opportunity: Opportunity{MinScore: 0.5},
		Schedule:    scheduler.DefaultSpecs(),
		Server:      Server{Addr: ":8080"},
		Telemetry:   telemetry.TracingConfig{ServiceName: "opportunity-radar"},
		Collectors: Collectors{
			HackerNews: HackerNews{Enabled: true},
			GitHub:     GitHub{Enabled: true, MinStars: 50, WindowDays: 7},
		},
		Report: Report{Dir: "reports", Paper: "letter"},
	}
}

// Load reads path over the defaults. An empty path yields defaults plus
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	cfg.fillZero()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	switch c.LLM.Provider {
	case ProviderOpenAI:
		set(&c.LLM.APIKey, "OPENAI_API_KEY")
	default:
		set(&c.LLM.APIKey, "ANTHROPIC_API_KEY")
	}
	set(&c.Embedding.APIKey, "OPENAI_API_KEY")
	set(&c.Collectors.GitHub.Token, "GITHUB_TOKEN")
	set(&c.Database.Driver, "RADAR_DB_DRIVER")
	set(&c.Database.DSN, "RADAR_DB_DSN")
	set(&c.Log.Level, "RADAR_LOG_LEVEL")
	set(&c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// fillZero restores defaults for fields a partial YAML file zeroed.
func (c *Config) fillZero() {
	def := Default()
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = def.LLM.Provider
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = def.Embedding.Model
	}
	if c.Pipeline.ProcessLimit == 0 {
		c.Pipeline.ProcessLimit = def.Pipeline.ProcessLimit
	}
	if c.Patterns.WindowDays == 0 {
		c.Patterns.WindowDays = def.Patterns.WindowDays
	}
	if c.Patterns.AnomalyDays == 0 {
		c.Patterns.AnomalyDays = def.Patterns.AnomalyDays
	}
	if c.Patterns.AnomalyThreshold == 0 {
		c.Patterns.AnomalyThreshold = def.Patterns.AnomalyThreshold
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	c.Schedule = c.Schedule.WithDefaults()
}

func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want sqlite or postgres", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q: want anthropic or openai", c.LLM.Provider))
	}
	for class, l := range c.Limits {
		if l.PerMinute < 0 || l.PerHour < 0 || l.PerDay < 0 || l.Burst < 0 {
			errs = append(errs, fmt.Errorf("limits.%s: negative limit", class))
		}
	}
	if c.Pipeline.BatchDelay < 0 || c.Pipeline.NoveltyLimit < 0 || c.Pipeline.ProcessLimit < 0 {
		errs = append(errs, errors.New("pipeline: negative value"))
	}
	if _, ok := report.LookupPaper(c.Report.Paper); !ok {
		errs = append(errs, fmt.Errorf("report.paper %q: want letter or a4", c.Report.Paper))
	}
	if c.Opportunity.MinScore < 0 || c.Opportunity.MinScore > 1 {
		errs = append(errs, fmt.Errorf("opportunity.min_score %v: want 0..1", c.Opportunity.MinScore))
	}
	return errors.Join(errs...)
}
