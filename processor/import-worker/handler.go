package importworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/plateful/importer/extract"
	"github.com/plateful/importer/source"
	"github.com/plateful/importer/source/fetch"
	"github.com/plateful/importer/source/urlguard"
	"github.com/plateful/importer/storage"
)

// Importer runs the extraction chain. Satisfied by extract.Orchestrator.
type Importer interface {
	ImportURL(ctx context.Context, rawURL string) *extract.Result
	ImportText(ctx context.Context, text string) *extract.Result
}

// recipeWriter is the slice of storage.RecipeStore the handler needs.
type recipeWriter interface {
	Get(ctx context.Context, recipeID string) (*storage.RecipeRecord, error)
	CompleteImport(ctx context.Context, recipeID string, attrs *extract.Attributes) error
	FailImport(ctx context.Context, recipeID, message string) error
	AttachCoverImage(ctx context.Context, recipeID, imageKey string) error
}

// imageWriter is the slice of storage.ImageStore the handler needs.
type imageWriter interface {
	Put(ctx context.Context, recipeID, contentType string, data []byte) (string, error)
}

// imageFetcher downloads cover images with the fetcher's transfer bounds.
type imageFetcher interface {
	FetchImage(ctx context.Context, rawURL string) (*fetch.Document, error)
}

// Handler executes one import job end to end: idempotency check, extraction,
// terminal transition, best-effort cover image attach.
type Handler struct {
	importer Importer
	recipes  recipeWriter
	images   imageWriter
	fetcher  imageFetcher
	metrics  *workerMetrics
	logger   *slog.Logger
}

// NewHandler creates a job handler.
func NewHandler(importer Importer, recipes recipeWriter, images imageWriter, fetcher imageFetcher, metrics *workerMetrics, logger *slog.Logger) *Handler {
	return &Handler{
		importer: importer,
		recipes:  recipes,
		images:   images,
		fetcher:  fetcher,
		metrics:  metrics,
		logger:   logger,
	}
}

// Process runs a single job. A nil return means the delivery is settled and
// should be acked. A non-nil return means something unexpected happened; the
// recipe has already been defensively failed and the caller should Nak so
// queue-level retry and alerting still observe the delivery.
func (h *Handler) Process(ctx context.Context, job *source.ImportJob) error {
	h.metrics.jobsStarted.Inc()

	record, err := h.recipes.Get(ctx, job.RecipeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// The row was deleted between enqueue and delivery. Nothing
			// to write results to.
			h.logger.Warn("Recipe row gone, dropping job", "job_id", job.JobID, "recipe_id", job.RecipeID)
			h.metrics.jobsSkipped.Inc()
			return nil
		}
		return h.failDefensively(ctx, job, fmt.Errorf("load recipe: %w", err))
	}

	// Terminal rows make re-delivery a no-op with no side effects.
	if record.ImportStatus.Terminal() {
		h.logger.Info("Recipe already terminal, skipping",
			"job_id", job.JobID,
			"recipe_id", job.RecipeID,
			"status", record.ImportStatus)
		h.metrics.jobsSkipped.Inc()
		return nil
	}

	result := h.extract(ctx, job)

	if !result.OK() {
		code := extract.CodeExtractionFailed
		if result != nil && result.Failure != nil {
			code = result.Failure.Code
		}
		message := userMessage(code, h.sourceDomain(job))
		if err := h.recipes.FailImport(ctx, job.RecipeID, message); err != nil {
			if errors.Is(err, storage.ErrTerminal) {
				// A concurrent delivery won the transition.
				h.metrics.jobsSkipped.Inc()
				return nil
			}
			return h.failDefensively(ctx, job, fmt.Errorf("persist failure: %w", err))
		}
		h.metrics.jobsFailed.WithLabelValues(string(code)).Inc()
		h.logger.Info("Import failed",
			"job_id", job.JobID,
			"recipe_id", job.RecipeID,
			"code", code)
		return nil
	}

	attrs := result.Attributes
	if err := h.recipes.CompleteImport(ctx, job.RecipeID, attrs); err != nil {
		if errors.Is(err, storage.ErrTerminal) {
			// Lost the CAS to a concurrent transition; this delivery
			// becomes a no-op.
			h.metrics.jobsSkipped.Inc()
			return nil
		}
		return h.failDefensively(ctx, job, fmt.Errorf("persist attributes: %w", err))
	}

	h.metrics.jobsCompleted.Inc()
	h.logger.Info("Import completed",
		"job_id", job.JobID,
		"recipe_id", job.RecipeID,
		"name", attrs.Name)

	if attrs.CoverImageURL != "" {
		h.attachCoverImage(ctx, job.RecipeID, attrs.CoverImageURL)
	}

	return nil
}

func (h *Handler) extract(ctx context.Context, job *source.ImportJob) *extract.Result {
	switch job.Kind {
	case source.KindURL:
		return h.importer.ImportURL(ctx, job.Payload)
	case source.KindText, source.KindImage:
		return h.importer.ImportText(ctx, job.Payload)
	default:
		return extract.Fail(extract.CodeExtractionFailed, fmt.Sprintf("unknown source kind %q", job.Kind))
	}
}

// sourceDomain returns the hostname to reference in user messages, empty for
// text imports. urlguard strips the leading "www.".
func (h *Handler) sourceDomain(job *source.ImportJob) string {
	if job.Kind != source.KindURL {
		return ""
	}
	return urlguard.Domain(job.Payload)
}

// attachCoverImage downloads and stores the cover image. Best effort: every
// failure is logged and none affects the completed import.
func (h *Handler) attachCoverImage(ctx context.Context, recipeID, imageURL string) {
	doc, err := h.fetcher.FetchImage(ctx, imageURL)
	if err != nil {
		h.logger.Warn("Cover image fetch failed", "recipe_id", recipeID, "error", err)
		return
	}

	key, err := h.images.Put(ctx, recipeID, doc.ContentType, doc.Body)
	if err != nil {
		h.logger.Warn("Cover image store failed", "recipe_id", recipeID, "error", err)
		return
	}

	if err := h.recipes.AttachCoverImage(ctx, recipeID, key); err != nil {
		h.logger.Warn("Cover image attach failed", "recipe_id", recipeID, "error", err)
	}
}

// failDefensively applies the Failed transition with a generic message before
// surfacing the unexpected error to the consumer loop.
func (h *Handler) failDefensively(ctx context.Context, job *source.ImportJob, cause error) error {
	message := genericFailureMessage
	if domain := h.sourceDomain(job); domain != "" {
		message = fmt.Sprintf("We couldn't import the recipe from %s. Please try again.", domain)
	}
	if err := h.recipes.FailImport(ctx, job.RecipeID, message); err != nil && !errors.Is(err, storage.ErrTerminal) {
		h.logger.Error("Defensive failure transition failed", "recipe_id", job.RecipeID, "error", err)
	}
	h.metrics.jobsFailed.WithLabelValues("unexpected").Inc()
	return cause
}
