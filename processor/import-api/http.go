package importapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/plateful/importer/extract"
	"github.com/plateful/importer/source"
	"github.com/plateful/importer/storage"
)

// RegisterHTTPHandlers registers HTTP handlers for the import-api component.
// The prefix may or may not include trailing slash.
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	mux.HandleFunc(prefix+"imports/url", c.handleImportURL)
	mux.HandleFunc(prefix+"imports/text", c.handleImportText)
	mux.HandleFunc(prefix+"imports/image", c.handleImportImage)
	mux.HandleFunc(prefix+"recipes/", c.handleGetRecipe)
}

// ImportRequest is the enqueue request body shared by the three import
// endpoints. URL is set for imports/url, Text for imports/text and
// imports/image (the caller attaches the image and supplies its text).
type ImportRequest struct {
	UserID   string `json:"user_id"`
	RecipeID string `json:"recipe_id"`
	URL      string `json:"url,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ImportAccepted is the enqueue success response.
type ImportAccepted struct {
	JobID    string `json:"job_id"`
	RecipeID string `json:"recipe_id"`
	Status   string `json:"status"`
}

// RecipeStatus is the polling response for GET recipes/{id}.
type RecipeStatus struct {
	RecipeID     string              `json:"recipe_id"`
	ImportStatus string              `json:"import_status"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Attributes   *extract.Attributes `json:"attributes,omitempty"`
	CoverImage   string              `json:"cover_image,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// handleImportURL handles POST /imports/url.
func (c *Component) handleImportURL(w http.ResponseWriter, r *http.Request) {
	req, ok := c.decodeImportRequest(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}
	c.enqueue(w, r, req, source.KindURL, req.URL)
}

// handleImportText handles POST /imports/text.
func (c *Component) handleImportText(w http.ResponseWriter, r *http.Request) {
	req, ok := c.decodeImportRequest(w, r)
	if !ok {
		return
	}
	if !c.checkText(w, req.Text) {
		return
	}
	c.enqueue(w, r, req, source.KindText, req.Text)
}

// handleImportImage handles POST /imports/image. The image itself is
// attached by the caller; the request carries the text extracted from it,
// which the pipeline treats as raw prose.
func (c *Component) handleImportImage(w http.ResponseWriter, r *http.Request) {
	req, ok := c.decodeImportRequest(w, r)
	if !ok {
		return
	}
	if !c.checkText(w, req.Text) {
		return
	}
	c.enqueue(w, r, req, source.KindImage, req.Text)
}

func (c *Component) decodeImportRequest(w http.ResponseWriter, r *http.Request) (*ImportRequest, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return nil, false
	}

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return nil, false
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return nil, false
	}
	if req.RecipeID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "recipe_id is required")
		return nil, false
	}
	return &req, true
}

func (c *Component) checkText(w http.ResponseWriter, text string) bool {
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return false
	}
	if len(text) > source.MaxTextLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "text exceeds maximum length")
		return false
	}
	return true
}

// enqueue reserves quota, creates the pending row, and publishes the job.
// The quota is reserved before the job exists so two racing requests cannot
// both pass a stale count.
func (c *Component) enqueue(w http.ResponseWriter, r *http.Request, req *ImportRequest, kind source.SourceKind, payload string) {
	c.updateLastActivity()
	ctx := r.Context()

	if _, err := c.quota.Reserve(ctx, req.UserID, c.config.MonthlyImportLimit); err != nil {
		if errors.Is(err, storage.ErrQuotaExceeded) {
			c.importsRejected.Add(1)
			writeError(w, http.StatusTooManyRequests, "import_limit_reached",
				"monthly import limit reached")
			return
		}
		c.logger.Error("Quota reservation failed", "user_id", req.UserID, "error", err)
		c.errors.Add(1)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to reserve import")
		return
	}

	if err := c.recipes.StartImport(ctx, req.UserID, req.RecipeID); err != nil {
		if errors.Is(err, storage.ErrImportInProgress) {
			writeError(w, http.StatusConflict, "import_in_progress",
				"an import for this recipe is already running")
			return
		}
		c.logger.Error("Failed to create pending recipe", "recipe_id", req.RecipeID, "error", err)
		c.errors.Add(1)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start import")
		return
	}

	job := source.ImportJob{
		JobID:       uuid.New().String(),
		UserID:      req.UserID,
		RecipeID:    req.RecipeID,
		Kind:        kind,
		Payload:     payload,
		RequestedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		c.errors.Add(1)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to encode job")
		return
	}

	if err := c.publish(ctx, c.config.JobSubject, data); err != nil {
		// The pending row exists but no job will arrive. Fail it so the
		// caller sees a terminal state instead of polling forever.
		c.logger.Error("Failed to publish import job", "job_id", job.JobID, "error", err)
		c.errors.Add(1)
		if failErr := c.recipes.FailImport(ctx, req.RecipeID, "We couldn't start this import. Please try again."); failErr != nil {
			c.logger.Warn("Failed to mark recipe failed after publish error",
				"recipe_id", req.RecipeID, "error", failErr)
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to enqueue import")
		return
	}

	c.importsEnqueued.Add(1)
	c.logger.Info("Import enqueued",
		"job_id", job.JobID,
		"recipe_id", req.RecipeID,
		"kind", kind)

	writeJSON(w, http.StatusAccepted, ImportAccepted{
		JobID:    job.JobID,
		RecipeID: req.RecipeID,
		Status:   string(storage.ImportStatusPending),
	})
}

// handleGetRecipe handles GET /recipes/{recipe_id}.
func (c *Component) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}

	recipeID := extractIDFromPath(r.URL.Path, "/recipes/")
	if recipeID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "recipe ID required")
		return
	}

	record, err := c.recipes.Get(r.Context(), recipeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "recipe not found")
			return
		}
		c.logger.Error("Failed to load recipe", "recipe_id", recipeID, "error", err)
		c.errors.Add(1)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load recipe")
		return
	}

	status := RecipeStatus{
		RecipeID:     record.ID,
		ImportStatus: string(record.ImportStatus),
		UpdatedAt:    record.UpdatedAt,
	}
	switch record.ImportStatus {
	case storage.ImportStatusCompleted:
		status.Attributes = record.Attributes
		status.CoverImage = record.CoverImage
	case storage.ImportStatusFailed:
		status.ErrorMessage = record.ErrorMessage
	}

	writeJSON(w, http.StatusOK, status)
}

// extractIDFromPath extracts an ID that follows the given path segment.
// Returns empty string if not found.
func extractIDFromPath(path, segment string) string {
	idx := strings.Index(path, segment)
	if idx == -1 {
		return ""
	}
	id := path[idx+len(segment):]
	if slash := strings.Index(id, "/"); slash != -1 {
		id = id[:slash]
	}
	return strings.TrimSpace(id)
}
