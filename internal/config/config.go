// Package config loads darksight configuration from YAML with environment
// overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all darksight configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configures the vision analysis backend.
	LLM LLMConfig `yaml:"llm"`

	// Scan configures tiling and pacing.
	Scan ScanConfig `yaml:"scan"`

	// Store configures persistence.
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the analysis backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// ScanConfig configures the tile loop.
type ScanConfig struct {
	MaxTileHeight int    `yaml:"max_tile_height"`
	Overlap       int    `yaml:"overlap"`
	Cooldown      string `yaml:"cooldown"`
	RetryAttempts int    `yaml:"retry_attempts"`
	RetryBackoff  string `yaml:"retry_backoff"`
}

// StoreConfig configures the SQLite session store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	Level     string `yaml:"level"` // debug, info, warn, error
	Debug     bool   `yaml:"debug"`
	Directory string `yaml:"directory"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "darksight",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  "120s",
		},

		Scan: ScanConfig{
			MaxTileHeight: 1536,
			Overlap:       150,
			Cooldown:      "5s",
			RetryAttempts: 3,
			RetryBackoff:  "5s",
		},

		Store: StoreConfig{
			DatabasePath: "data/darksight.db",
		},

		Logging: LoggingConfig{
			Level:     "info",
			Directory: ".darksight",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
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

// applyEnvOverrides applies environment variable overrides. The API key is
// never expected to live in the config file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if key := os.Getenv("DARKSIGHT_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if path := os.Getenv("DARKSIGHT_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetCooldown returns the inter-tile cooldown as a duration.
func (c *Config) GetCooldown() time.Duration {
	d, err := time.ParseDuration(c.Scan.Cooldown)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetRetryBackoff returns the retry backoff step as a duration.
func (c *Config) GetRetryBackoff() time.Duration {
	d, err := time.ParseDuration(c.Scan.RetryBackoff)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// Validate reports configuration problems that prevent a scan from running.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("no API key configured (set GEMINI_API_KEY or llm.api_key)")
	}
	if c.Scan.MaxTileHeight > 0 && c.Scan.Overlap >= c.Scan.MaxTileHeight {
		return fmt.Errorf("overlap %d must be smaller than max tile height %d",
			c.Scan.Overlap, c.Scan.MaxTileHeight)
	}
	if c.Scan.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1, got %d", c.Scan.RetryAttempts)
	}
	return nil
}
