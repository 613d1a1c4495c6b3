// Package source defines the import job contract shared by the API and
// worker components.
package source

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind discriminates how the import payload should be interpreted.
type SourceKind string

const (
	// KindURL means the payload is a URL to fetch and extract.
	KindURL SourceKind = "url"

	// KindText means the payload is raw prose supplied by the caller.
	KindText SourceKind = "text"

	// KindImage means the payload is caption text extracted from an
	// already-attached image. The pipeline treats it as raw prose.
	KindImage SourceKind = "image"
)

// MaxTextLength bounds raw text payloads accepted from callers.
const MaxTextLength = 50000

// ImportJob is the work-queue message produced by the import API and
// consumed exactly once per recipe by the import worker. It is not
// persisted beyond the job stream.
type ImportJob struct {
	// JobID uniquely identifies this delivery for logging and tracing.
	JobID string `json:"job_id"`

	// UserID is the requesting user.
	UserID string `json:"user_id"`

	// RecipeID is the target recipe row.
	RecipeID string `json:"recipe_id"`

	// Kind selects the extraction path.
	Kind SourceKind `json:"kind"`

	// Payload is the URL or raw text, depending on Kind.
	Payload string `json:"payload"`

	// RequestedAt is when the API accepted the request.
	RequestedAt time.Time `json:"requested_at"`
}

// Validate checks the job for structural problems before publish/processing.
func (j *ImportJob) Validate() error {
	if j.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if j.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if j.RecipeID == "" {
		return fmt.Errorf("recipe_id is required")
	}
	switch j.Kind {
	case KindURL:
		if strings.TrimSpace(j.Payload) == "" {
			return fmt.Errorf("url payload is required")
		}
	case KindText, KindImage:
		if strings.TrimSpace(j.Payload) == "" {
			return fmt.Errorf("text payload is required")
		}
		if len(j.Payload) > MaxTextLength {
			return fmt.Errorf("text payload exceeds %d characters", MaxTextLength)
		}
	default:
		return fmt.Errorf("unknown source kind %q", j.Kind)
	}
	return nil
}
