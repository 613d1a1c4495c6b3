package importworker

import (
	"fmt"
	"time"

	"github.com/c360studio/semstreams/component"
)

// Config holds configuration for the import-worker processor component.
type Config struct {
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`

	// StreamName is the JetStream work-queue stream for import jobs.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream for import jobs,category:basic,default:RECIPE_IMPORTS"`

	// ConsumerName is the durable consumer name.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name,category:basic,default:import-worker"`

	// LLMProvider selects the chat-completion provider (openai, anthropic, ollama).
	LLMProvider string `json:"llm_provider" schema:"type:string,description:Chat completion provider,category:basic,default:openai"`

	// LLMModel is the model passed to the provider.
	LLMModel string `json:"llm_model" schema:"type:string,description:Chat completion model,category:basic,default:gpt-4o-mini"`

	// LLMURL is the provider base URL.
	LLMURL string `json:"llm_url" schema:"type:string,description:Chat completion base URL,category:basic,default:https://api.openai.com"`

	// LLMAPIKey authenticates with the provider. Falls back to the
	// provider's environment variable when empty.
	LLMAPIKey string `json:"llm_api_key,omitempty" schema:"type:string,description:Provider API key (falls back to env),category:advanced"`

	// ApifyToken authenticates with the Apify scraping API. Platform
	// imports fail with a typed code when empty.
	ApifyToken string `json:"apify_token,omitempty" schema:"type:string,description:Apify API token,category:advanced"`

	// FetchTimeout is the total timeout for page fetches.
	FetchTimeout string `json:"fetch_timeout" schema:"type:string,description:HTTP fetch timeout,category:advanced,default:10s"`

	// GCInterval is how often stale failed rows are garbage collected.
	GCInterval string `json:"gc_interval" schema:"type:string,description:Interval between failed-row GC sweeps,category:advanced,default:24h"`

	// FailedRowTTL is how long failed rows are kept before GC.
	FailedRowTTL string `json:"failed_row_ttl" schema:"type:string,description:Retention for failed recipe rows,category:advanced,default:720h"`
}

// DefaultConfig returns default configuration for the import-worker processor.
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "jobs.in",
					Type:        "jetstream",
					Subject:     "recipe.import.job",
					StreamName:  "RECIPE_IMPORTS",
					Required:    true,
					Description: "Import job messages",
				},
			},
		},
		StreamName:   "RECIPE_IMPORTS",
		ConsumerName: "import-worker",
		LLMProvider:  "openai",
		LLMModel:     "gpt-4o-mini",
		LLMURL:       "https://api.openai.com",
		FetchTimeout: "10s",
		GCInterval:   "24h",
		FailedRowTTL: "720h",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	if c.LLMProvider == "" {
		return fmt.Errorf("llm_provider is required")
	}
	if c.LLMModel == "" {
		return fmt.Errorf("llm_model is required")
	}
	if c.LLMURL == "" {
		return fmt.Errorf("llm_url is required")
	}
	for field, value := range map[string]string{
		"fetch_timeout":  c.FetchTimeout,
		"gc_interval":    c.GCInterval,
		"failed_row_ttl": c.FailedRowTTL,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s format: %w", field, err)
		}
	}
	return nil
}

// parseDurationOrDefault parses a duration string and returns the default if
// empty or invalid.
func parseDurationOrDefault(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// GetFetchTimeout returns the fetch timeout as a duration.
func (c *Config) GetFetchTimeout() time.Duration {
	return parseDurationOrDefault(c.FetchTimeout, 10*time.Second)
}

// GetGCInterval returns the GC sweep interval as a duration.
func (c *Config) GetGCInterval() time.Duration {
	return parseDurationOrDefault(c.GCInterval, 24*time.Hour)
}

// GetFailedRowTTL returns the failed-row retention as a duration.
func (c *Config) GetFailedRowTTL() time.Duration {
	return parseDurationOrDefault(c.FailedRowTTL, 30*24*time.Hour)
}
