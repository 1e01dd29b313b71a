// Package config loads vizon settings: defaults, then a YAML file, then the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spektr-org/vizon/ai"
	"github.com/spektr-org/vizon/engine"
	"github.com/spektr-org/vizon/extract"
)

// ErrNoAPIKey is returned by Validate when no AI key is configured.
var ErrNoAPIKey = errors.New("ai.api_key is required (or set GOOGLE_API_KEY / GEMINI_API_KEY)")

// Config is the full vizon configuration.
type Config struct {
	AI        AIConfig        `yaml:"ai"`
	Extract   ExtractConfig   `yaml:"extract"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AIConfig configures the hosted model.
type AIConfig struct {
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	Refine       bool          `yaml:"refine"` // AI column enrichment after each load
}

// ExtractConfig configures the extractors.
type ExtractConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	MaxPageChars int           `yaml:"max_page_chars"`
	Render       bool          `yaml:"render"` // headless browser for JS-rendered pages
}

// DashboardConfig configures the dashboard builder.
type DashboardConfig struct {
	TopN int `yaml:"top_n"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// StorageConfig configures persistence. An empty path keeps sessions in memory.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Default returns sane defaults.
func Default() *Config {
	return &Config{
		AI: AIConfig{
			Model:        ai.DefaultModel,
			Timeout:      30 * time.Second,
			RetryBackoff: ai.DefaultBackoff,
		},
		Extract: ExtractConfig{
			FetchTimeout: extract.DefaultFetchTimeout,
			MaxPageChars: extract.DefaultMaxPromptChars,
		},
		Dashboard: DashboardConfig{TopN: engine.DefaultTopN},
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 32,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/vizon/config.yaml (or the OS equivalent).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "vizon.yaml"
	}
	return filepath.Join(dir, "vizon", "config.yaml")
}

// Load builds the configuration. An empty path tries DefaultPath and
// tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv(getenv func(string) string) {
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			c.AI.APIKey = v
		}
	}
	if v := getenv("VIZON_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := getenv("VIZON_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := getenv("VIZON_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("VIZON_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AI.APIKey) == "" {
		return ErrNoAPIKey
	}
	if c.AI.Model == "" {
		return fmt.Errorf("ai.model is required")
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("ai.timeout must be > 0")
	}
	if c.Extract.FetchTimeout <= 0 {
		return fmt.Errorf("extract.fetch_timeout must be > 0")
	}
	if c.Dashboard.TopN < 1 {
		return fmt.Errorf("dashboard.top_n must be >= 1")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be > 0")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.Server.MaxUploadMB) << 20 }

// Gemini returns the model client settings.
func (c *Config) Gemini() ai.GeminiConfig {
	g := ai.DefaultGeminiConfig(c.AI.APIKey)
	g.Model = c.AI.Model
	g.Timeout = c.AI.Timeout
	return g
}
