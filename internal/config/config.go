package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all prospect configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM provider configuration
	LLM LLMConfig `yaml:"llm"`

	// Research run configuration
	Research ResearchConfig `yaml:"research"`

	// Tool configuration
	Tools ToolsConfig `yaml:"tools"`

	// Run archive
	Archive ArchiveConfig `yaml:"archive"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, openai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// ResearchConfig configures supervisor and worker behavior.
type ResearchConfig struct {
	// Max task units per worker before it must stop
	IterationBudget int `yaml:"iteration_budget"`

	// Wall-clock limit for the whole worker phase
	Deadline string `yaml:"deadline"`

	// Per-tool-call timeout
	ToolTimeout string `yaml:"tool_timeout"`

	// Timeout for report synthesis (outside the run deadline)
	SynthesisTimeout string `yaml:"synthesis_timeout"`

	// Findings a worker needs before it may declare sufficiency
	MinFindings int `yaml:"min_findings"`
}

// ToolsConfig configures the research tools.
type ToolsConfig struct {
	// Search backend: tavily, duckduckgo, or empty for auto
	SearchProvider string `yaml:"search_provider"`
	TavilyAPIKey   string `yaml:"tavily_api_key"`

	// Max results per search
	MaxResults int `yaml:"max_results"`

	// Page fetch limits
	FetchTimeout  string `yaml:"fetch_timeout"`
	MaxFetchBytes int64  `yaml:"max_fetch_bytes"`
}

// ArchiveConfig configures the SQLite run archive.
type ArchiveConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures categorized debug logging.
// Mirrored by the logging package to avoid circular imports.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "prospect",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  "60s",
		},

		Research: ResearchConfig{
			IterationBudget:  6,
			Deadline:         "4m",
			ToolTimeout:      "30s",
			SynthesisTimeout: "60s",
			MinFindings:      3,
		},

		Tools: ToolsConfig{
			SearchProvider: "",
			MaxResults:     5,
			FetchTimeout:   "60s",
			MaxFetchBytes:  2 * 1024 * 1024,
		},

		Archive: ArchiveConfig{
			Enabled:      true,
			DatabasePath: filepath.Join(".prospect", "prospect.db"),
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment (check in priority order, last wins)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	// Search backend key
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		c.Tools.TavilyAPIKey = key
	}

	// Run knobs
	if db := os.Getenv("PROSPECT_DB"); db != "" {
		c.Archive.DatabasePath = db
	}
	if d := os.Getenv("PROSPECT_DEADLINE"); d != "" {
		c.Research.Deadline = d
	}
	if b := os.Getenv("PROSPECT_BUDGET"); b != "" {
		if n, err := strconv.Atoi(b); err == nil && n > 0 {
			c.Research.IterationBudget = n
		}
	}
	if m := os.Getenv("PROSPECT_MODEL"); m != "" {
		c.LLM.Model = m
	}
}

// GetLLMTimeout returns the LLM call timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetDeadline returns the research run deadline as a duration.
func (c *Config) GetDeadline() time.Duration {
	d, err := time.ParseDuration(c.Research.Deadline)
	if err != nil {
		return 4 * time.Minute
	}
	return d
}

// GetToolTimeout returns the per-tool-call timeout as a duration.
func (c *Config) GetToolTimeout() time.Duration {
	d, err := time.ParseDuration(c.Research.ToolTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetSynthesisTimeout returns the synthesis timeout as a duration.
func (c *Config) GetSynthesisTimeout() time.Duration {
	d, err := time.ParseDuration(c.Research.SynthesisTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetFetchTimeout returns the page fetch timeout as a duration.
func (c *Config) GetFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Tools.FetchTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetSearchProvider resolves the effective search backend.
// Empty or "auto" prefers tavily when an API key is configured, else duckduckgo.
func (c *Config) GetSearchProvider() string {
	p := c.Tools.SearchProvider
	if p == "" || p == "auto" {
		if c.Tools.TavilyAPIKey != "" {
			return "tavily"
		}
		return "duckduckgo"
	}
	return p
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"gemini", "openai"}

// ValidSearchProviders lists all supported search backends.
var ValidSearchProviders = []string{"", "auto", "tavily", "duckduckgo"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or OPENAI_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	validSearch := false
	for _, p := range ValidSearchProviders {
		if c.Tools.SearchProvider == p {
			validSearch = true
			break
		}
	}
	if !validSearch {
		return fmt.Errorf("invalid search provider: %s (valid: tavily, duckduckgo, auto)", c.Tools.SearchProvider)
	}

	if c.Research.IterationBudget < 1 {
		return fmt.Errorf("iteration budget must be at least 1, got %d", c.Research.IterationBudget)
	}
	if c.Research.MinFindings < 1 {
		return fmt.Errorf("min findings must be at least 1, got %d", c.Research.MinFindings)
	}

	return nil
}
