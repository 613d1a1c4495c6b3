package importapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateful/importer/extract"
	"github.com/plateful/importer/source"
	"github.com/plateful/importer/storage"
)

type stubQuota struct {
	mu       sync.Mutex
	reserved []string
	err      error
}

func (s *stubQuota) Reserve(_ context.Context, userID string, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.reserved = append(s.reserved, userID)
	return len(s.reserved), nil
}

type stubRecipes struct {
	mu       sync.Mutex
	started  []string
	failed   map[string]string
	startErr error
	records  map[string]*storage.RecipeRecord
}

func (s *stubRecipes) StartImport(_ context.Context, _, recipeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = append(s.started, recipeID)
	return nil
}

func (s *stubRecipes) FailImport(_ context.Context, recipeID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = map[string]string{}
	}
	s.failed[recipeID] = message
	return nil
}

func (s *stubRecipes) Get(_ context.Context, recipeID string) (*storage.RecipeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[recipeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return record, nil
}

type publishRecorder struct {
	mu       sync.Mutex
	subjects []string
	jobs     []source.ImportJob
	err      error
}

func (p *publishRecorder) publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	var job source.ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		return err
	}
	p.subjects = append(p.subjects, subject)
	p.jobs = append(p.jobs, job)
	return nil
}

func newTestComponent(quota *stubQuota, recipes *stubRecipes, pub *publishRecorder) (*Component, *http.ServeMux) {
	c := &Component{
		name:    "import-api",
		config:  DefaultConfig(),
		logger:  slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		quota:   quota,
		recipes: recipes,
		publish: pub.publish,
	}
	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("/api/v1", mux)
	return c, mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestImportURLEnqueuesJob(t *testing.T) {
	quota := &stubQuota{}
	recipes := &stubRecipes{}
	pub := &publishRecorder{}
	_, mux := newTestComponent(quota, recipes, pub)

	rec := postJSON(t, mux, "/api/v1/imports/url", ImportRequest{
		UserID:   "user-1",
		RecipeID: "recipe-1",
		URL:      "https://example.com/best-pancakes",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp ImportAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "recipe-1", resp.RecipeID)
	assert.Equal(t, "pending", resp.Status)

	// Quota reserved, pending row created, job published in that order.
	assert.Equal(t, []string{"user-1"}, quota.reserved)
	assert.Equal(t, []string{"recipe-1"}, recipes.started)
	require.Len(t, pub.jobs, 1)
	job := pub.jobs[0]
	assert.Equal(t, "recipe.import.job", pub.subjects[0])
	assert.Equal(t, source.KindURL, job.Kind)
	assert.Equal(t, "https://example.com/best-pancakes", job.Payload)
	assert.Equal(t, resp.JobID, job.JobID)
	assert.NoError(t, job.Validate())
}

func TestImportTextEnqueuesRawProseJob(t *testing.T) {
	quota := &stubQuota{}
	recipes := &stubRecipes{}
	pub := &publishRecorder{}
	_, mux := newTestComponent(quota, recipes, pub)

	rec := postJSON(t, mux, "/api/v1/imports/text", ImportRequest{
		UserID:   "user-1",
		RecipeID: "recipe-2",
		Text:     "Pancakes: mix 2 cups flour with 2 eggs, fry.",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pub.jobs, 1)
	assert.Equal(t, source.KindText, pub.jobs[0].Kind)
}

func TestImportImageUsesCaptionText(t *testing.T) {
	quota := &stubQuota{}
	recipes := &stubRecipes{}
	pub := &publishRecorder{}
	_, mux := newTestComponent(quota, recipes, pub)

	rec := postJSON(t, mux, "/api/v1/imports/image", ImportRequest{
		UserID:   "user-1",
		RecipeID: "recipe-3",
		Text:     "Handwritten card: 1 lb beef, brown and simmer 2 hours.",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pub.jobs, 1)
	assert.Equal(t, source.KindImage, pub.jobs[0].Kind)
	assert.Contains(t, pub.jobs[0].Payload, "1 lb beef")
}

func TestImportRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		path string
		body ImportRequest
	}{
		{
			name: "missing user id",
			path: "/api/v1/imports/url",
			body: ImportRequest{RecipeID: "r", URL: "https://example.com"},
		},
		{
			name: "missing recipe id",
			path: "/api/v1/imports/url",
			body: ImportRequest{UserID: "u", URL: "https://example.com"},
		},
		{
			name: "blank url",
			path: "/api/v1/imports/url",
			body: ImportRequest{UserID: "u", RecipeID: "r", URL: "   "},
		},
		{
			name: "blank text",
			path: "/api/v1/imports/text",
			body: ImportRequest{UserID: "u", RecipeID: "r", Text: ""},
		},
		{
			name: "oversized text",
			path: "/api/v1/imports/text",
			body: ImportRequest{UserID: "u", RecipeID: "r", Text: strings.Repeat("x", source.MaxTextLength+1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quota := &stubQuota{}
			recipes := &stubRecipes{}
			pub := &publishRecorder{}
			_, mux := newTestComponent(quota, recipes, pub)

			rec := postJSON(t, mux, tt.path, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			// Nothing reserved or published on a rejected request.
			assert.Empty(t, quota.reserved)
			assert.Empty(t, pub.jobs)
		})
	}
}

func TestImportQuotaExceededReturns429(t *testing.T) {
	quota := &stubQuota{err: storage.ErrQuotaExceeded}
	recipes := &stubRecipes{}
	pub := &publishRecorder{}
	_, mux := newTestComponent(quota, recipes, pub)

	rec := postJSON(t, mux, "/api/v1/imports/url", ImportRequest{
		UserID:   "user-1",
		RecipeID: "recipe-1",
		URL:      "https://example.com/recipe",
	})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "import_limit_reached", resp.Error)

	// Quota rejection happens before any row or job exists.
	assert.Empty(t, recipes.started)
	assert.Empty(t, pub.jobs)
}

func TestImportInProgressReturnsConflict(t *testing.T) {
	quota := &stubQuota{}
	recipes := &stubRecipes{startErr: storage.ErrImportInProgress}
	pub := &publishRecorder{}
	_, mux := newTestComponent(quota, recipes, pub)

	rec := postJSON(t, mux, "/api/v1/imports/url", ImportRequest{
		UserID:   "user-1",
		RecipeID: "recipe-1",
		URL:      "https://example.com/recipe",
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, pub.jobs)
}

func TestPublishFailureFailsPendingRow(t *testing.T) {
	quota := &stubQuota{}
	recipes := &stubRecipes{}
	pub := &publishRecorder{err: fmt.Errorf("stream unavailable")}
	_, mux := newTestComponent(quota, recipes, pub)

	rec := postJSON(t, mux, "/api/v1/imports/url", ImportRequest{
		UserID:   "user-1",
		RecipeID: "recipe-1",
		URL:      "https://example.com/recipe",
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	// The pending row must not be left dangling when no job was published.
	assert.Contains(t, recipes.failed, "recipe-1")
}

func TestGetRecipeStatuses(t *testing.T) {
	servings := 4
	now := time.Now().UTC()
	recipes := &stubRecipes{
		records: map[string]*storage.RecipeRecord{
			"done": {
				ID:           "done",
				ImportStatus: storage.ImportStatusCompleted,
				Attributes: &extract.Attributes{
					Name:         "Pancakes",
					Ingredients:  []string{"2 cups flour"},
					Instructions: []string{"Mix", "Fry"},
					Servings:     &servings,
				},
				CoverImage: "done",
				UpdatedAt:  now,
			},
			"broken": {
				ID:           "broken",
				ImportStatus: storage.ImportStatusFailed,
				ErrorMessage: "We couldn't find a recipe at example.com.",
				UpdatedAt:    now,
			},
			"waiting": {
				ID:           "waiting",
				ImportStatus: storage.ImportStatusPending,
				UpdatedAt:    now,
			},
		},
	}
	_, mux := newTestComponent(&stubQuota{}, recipes, &publishRecorder{})

	t.Run("completed exposes attributes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recipes/done", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var status RecipeStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "completed", status.ImportStatus)
		require.NotNil(t, status.Attributes)
		assert.Equal(t, "Pancakes", status.Attributes.Name)
		assert.Equal(t, "done", status.CoverImage)
		assert.Empty(t, status.ErrorMessage)
	})

	t.Run("failed exposes error message only", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recipes/broken", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var status RecipeStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "failed", status.ImportStatus)
		assert.Contains(t, status.ErrorMessage, "example.com")
		assert.Nil(t, status.Attributes)
	})

	t.Run("pending has neither", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recipes/waiting", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var status RecipeStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "pending", status.ImportStatus)
		assert.Nil(t, status.Attributes)
		assert.Empty(t, status.ErrorMessage)
	})

	t.Run("unknown recipe is 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recipes/missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("post is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/recipes/done", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestExtractIDFromPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		segment  string
		expected string
	}{
		{
			name:     "basic id",
			path:     "/api/v1/recipes/recipe-123",
			segment:  "/recipes/",
			expected: "recipe-123",
		},
		{
			name:     "uuid id",
			path:     "/api/v1/recipes/550e8400-e29b-41d4-a716-446655440000",
			segment:  "/recipes/",
			expected: "550e8400-e29b-41d4-a716-446655440000",
		},
		{
			name:     "trailing segment dropped",
			path:     "/api/v1/recipes/recipe-123/extra",
			segment:  "/recipes/",
			expected: "recipe-123",
		},
		{
			name:     "empty id",
			path:     "/api/v1/recipes/",
			segment:  "/recipes/",
			expected: "",
		},
		{
			name:     "segment missing",
			path:     "/api/v1/imports/url",
			segment:  "/recipes/",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractIDFromPath(tt.path, tt.segment)
			if got != tt.expected {
				t.Errorf("extractIDFromPath(%q, %q) = %q, want %q", tt.path, tt.segment, got, tt.expected)
			}
		})
	}
}
