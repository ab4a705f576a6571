package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/brandlens/perception-orchestrator/internal/domain"
)

// Config holds all application configuration. A single immutable value is
// injected at orchestrator construction; nothing here is mutated after Load.
type Config struct {
	General       GeneralConfig                          `toml:"general"`
	Concurrency   ConcurrencyConfig                      `toml:"concurrency"`
	Analyzers     map[domain.PipelineType]AnalyzerConfig `toml:"analyzer"`
	Providers     ProvidersConfig                        `toml:"providers"`
	Web           WebConfig                              `toml:"web"`
	Notifications NotificationsConfig                    `toml:"notifications"`
	Schedule      ScheduleConfig                         `toml:"schedule"`
}

// ScheduleConfig holds the cron-scheduled batch definitions
type ScheduleConfig struct {
	Batches []ScheduledBatch `toml:"batch"`
}

// ScheduledBatch names one automatic full-batch run
type ScheduledBatch struct {
	Name      string `toml:"name"`
	ProjectID string `toml:"project_id"`
	Cron      string `toml:"cron"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath string `toml:"database_path"`
	TemplateDir  string `toml:"template_dir"`
}

// ConcurrencyConfig bounds simultaneous outbound provider calls
type ConcurrencyConfig struct {
	GlobalLimit    int                         `toml:"global_limit"`
	PipelineLimits map[domain.PipelineType]int `toml:"pipeline_limits"`
}

// LimitFor returns the per-type limit, falling back to the global limit
func (c ConcurrencyConfig) LimitFor(t domain.PipelineType) int {
	if limit, ok := c.PipelineLimits[t]; ok && limit > 0 {
		return limit
	}
	return c.GlobalLimit
}

// AnalyzerConfig configures the model calls for one pipeline type
type AnalyzerConfig struct {
	RunsPerModel int             `toml:"runs_per_model"`
	Primary      domain.ModelRef `toml:"primary"`
	Fallback     domain.ModelRef `toml:"fallback"`
	CallTimeout  time.Duration   `toml:"call_timeout"`
}

// ProvidersConfig holds provider credentials and endpoints
type ProvidersConfig struct {
	OpenAI OpenAIConfig `toml:"openai"`
}

// OpenAIConfig holds OpenAI-compatible API settings
type OpenAIConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// WebConfig holds HTTP server settings
type WebConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// NotificationsConfig holds report notification settings
type NotificationsConfig struct {
	WebhookURL string `toml:"webhook_url"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()

	analyzers := make(map[domain.PipelineType]AnalyzerConfig, len(domain.AllPipelineTypes))
	for _, pt := range domain.AllPipelineTypes {
		cfg := AnalyzerConfig{
			RunsPerModel: 1,
			Primary:      domain.ModelRef{Provider: "openai", Model: "gpt-4o"},
			Fallback:     domain.ModelRef{Provider: "openai", Model: "gpt-4o-mini"},
			CallTimeout:  60 * time.Second,
		}
		if pt == domain.PipelineSpontaneous {
			cfg.RunsPerModel = 3
		}
		analyzers[pt] = cfg
	}

	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".perception-orchestrator", "perception.db"),
			TemplateDir:  filepath.Join(home, ".perception-orchestrator", "templates"),
		},
		Concurrency: ConcurrencyConfig{
			GlobalLimit: 8,
			PipelineLimits: map[domain.PipelineType]int{
				domain.PipelineSpontaneous: 4,
				domain.PipelineSentiment:   4,
				domain.PipelineComparison:  4,
				domain.PipelineAccuracy:    4,
			},
		},
		Analyzers: analyzers,
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{APIKey: os.Getenv("OPENAI_API_KEY")},
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.TemplateDir = ExpandPath(cfg.General.TemplateDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks limits and analyzer settings
func (c *Config) Validate() error {
	if c.Concurrency.GlobalLimit <= 0 {
		return fmt.Errorf("concurrency.global_limit must be positive")
	}
	for pt, limit := range c.Concurrency.PipelineLimits {
		if !pt.Valid() {
			return fmt.Errorf("concurrency.pipeline_limits: unknown pipeline type %q", pt)
		}
		if limit <= 0 {
			return fmt.Errorf("concurrency.pipeline_limits[%s] must be positive", pt)
		}
	}
	for pt, a := range c.Analyzers {
		if !pt.Valid() {
			return fmt.Errorf("analyzer.%s: unknown pipeline type", pt)
		}
		if a.Primary.Model == "" {
			return fmt.Errorf("analyzer.%s: primary model is required", pt)
		}
		if a.RunsPerModel < 0 {
			return fmt.Errorf("analyzer.%s: runs_per_model must not be negative", pt)
		}
	}
	return nil
}

// AnalyzerFor returns the analyzer config for a pipeline type,
// falling back to defaults for types absent from the file
func (c *Config) AnalyzerFor(t domain.PipelineType) AnalyzerConfig {
	if a, ok := c.Analyzers[t]; ok {
		return a
	}
	return Default().Analyzers[t]
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "perception-orchestrator", "config.toml")
}
