package importapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// Config holds configuration for the import-api component.
type Config struct {
	// StreamName is the JetStream work-queue stream for import jobs.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream for import jobs,category:basic,default:RECIPE_IMPORTS"`

	// JobSubject is the subject import jobs are published to.
	JobSubject string `json:"job_subject" schema:"type:string,description:Subject for import job messages,category:basic,default:recipe.import.job"`

	// MonthlyImportLimit caps imports per user per calendar month.
	MonthlyImportLimit int `json:"monthly_import_limit" schema:"type:int,description:Maximum imports per user per month,category:basic,default:30"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Input/output port definitions,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:         "RECIPE_IMPORTS",
		JobSubject:         "recipe.import.job",
		MonthlyImportLimit: 30,
		Ports: &component.PortConfig{
			Outputs: []component.PortDefinition{
				{
					Name:        "jobs.out",
					Type:        "jetstream",
					Subject:     "recipe.import.job",
					StreamName:  "RECIPE_IMPORTS",
					Required:    true,
					Description: "Import job messages for the worker",
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.JobSubject == "" {
		return fmt.Errorf("job_subject is required")
	}
	if c.MonthlyImportLimit <= 0 {
		return fmt.Errorf("monthly_import_limit must be positive")
	}
	return nil
}
