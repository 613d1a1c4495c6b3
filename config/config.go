// Package config provides configuration loading and management for the
// importer service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete importer configuration.
type Config struct {
	NATS   NATSConfig   `yaml:"nats"`
	LLM    LLMConfig    `yaml:"llm"`
	Apify  ApifyConfig  `yaml:"apify"`
	Import ImportConfig `yaml:"import"`
	HTTP   HTTPConfig   `yaml:"http"`
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	// URL is the NATS server URL.
	URL string `yaml:"url"`
}

// LLMConfig configures the chat-completion provider used by free-text
// extraction.
type LLMConfig struct {
	// Provider selects the wire codec (openai, anthropic, ollama).
	Provider string `yaml:"provider"`
	// Model is passed to the provider.
	Model string `yaml:"model"`
	// URL is the provider base URL.
	URL string `yaml:"url"`
	// APIKey authenticates with the provider. Usually left empty here and
	// supplied via the provider's environment variable.
	APIKey string `yaml:"api_key,omitempty"`
	// Timeout bounds a single extraction call.
	Timeout time.Duration `yaml:"timeout"`
}

// ApifyConfig configures the platform-scraping provider.
type ApifyConfig struct {
	// Token is the Apify API token. Empty disables platform imports with
	// a typed failure rather than an error.
	Token string `yaml:"token,omitempty"`
}

// ImportConfig configures pipeline limits and retention.
type ImportConfig struct {
	// MonthlyLimit caps imports per user per calendar month.
	MonthlyLimit int `yaml:"monthly_limit"`
	// FetchTimeout is the total timeout for page fetches.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// GCInterval is how often stale failed rows are purged.
	GCInterval time.Duration `yaml:"gc_interval"`
	// FailedRowTTL is how long failed rows are kept.
	FailedRowTTL time.Duration `yaml:"failed_row_ttl"`
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	// Addr is the listen address for the API and /metrics.
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			URL:      "https://api.openai.com",
			Timeout:  90 * time.Second,
		},
		Import: ImportConfig{
			MonthlyLimit: 30,
			FetchTimeout: 10 * time.Second,
			GCInterval:   24 * time.Hour,
			FailedRowTTL: 30 * 24 * time.Hour,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.URL == "" {
		return fmt.Errorf("llm.url is required")
	}
	if c.Import.MonthlyLimit <= 0 {
		return fmt.Errorf("import.monthly_limit must be positive")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	if other.LLM.Provider != "" {
		c.LLM.Provider = other.LLM.Provider
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.URL != "" {
		c.LLM.URL = other.LLM.URL
	}
	if other.LLM.APIKey != "" {
		c.LLM.APIKey = other.LLM.APIKey
	}
	if other.LLM.Timeout != 0 {
		c.LLM.Timeout = other.LLM.Timeout
	}

	if other.Apify.Token != "" {
		c.Apify.Token = other.Apify.Token
	}

	if other.Import.MonthlyLimit != 0 {
		c.Import.MonthlyLimit = other.Import.MonthlyLimit
	}
	if other.Import.FetchTimeout != 0 {
		c.Import.FetchTimeout = other.Import.FetchTimeout
	}
	if other.Import.GCInterval != 0 {
		c.Import.GCInterval = other.Import.GCInterval
	}
	if other.Import.FailedRowTTL != 0 {
		c.Import.FailedRowTTL = other.Import.FailedRowTTL
	}

	if other.HTTP.Addr != "" {
		c.HTTP.Addr = other.HTTP.Addr
	}
}
