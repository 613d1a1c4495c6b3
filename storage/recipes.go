// Package storage provides recipe, image, and quota storage backed by NATS KV.
//
// Import-state transitions are compare-and-swap on the KV revision: a
// concurrent transition loses the swap and observes the winner's terminal
// state, which is what makes duplicate job deliveries no-ops.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/plateful/importer/extract"
)

// Bucket names.
const (
	BucketRecipes = "PLATEFUL_RECIPES"
	BucketImages  = "PLATEFUL_RECIPE_IMAGES"
	BucketQuota   = "PLATEFUL_IMPORT_QUOTA"
)

// casAttempts bounds optimistic-concurrency retries on a contended key.
const casAttempts = 5

// ImportStatus is the import lifecycle state of a recipe.
type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "pending"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusFailed    ImportStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s ImportStatus) Terminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed
}

// RecipeRecord is the single persisted row written exactly once per job
// execution.
type RecipeRecord struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	ImportStatus ImportStatus        `json:"import_status"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Attributes   *extract.Attributes `json:"attributes,omitempty"`
	CoverImage   string              `json:"cover_image,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	FailedAt     *time.Time          `json:"failed_at,omitempty"`
}

// RecipeStore persists recipe rows in NATS KV.
type RecipeStore struct {
	kv jetstream.KeyValue
}

// NewRecipeStore creates the store, provisioning its bucket if needed.
func NewRecipeStore(ctx context.Context, js jetstream.JetStream) (*RecipeStore, error) {
	kv, err := getOrCreateBucket(ctx, js, BucketRecipes)
	if err != nil {
		return nil, fmt.Errorf("create recipes bucket: %w", err)
	}
	return &RecipeStore{kv: kv}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Plateful %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// StartImport creates a Pending row for the recipe, or resets a terminal
// row for re-import. A recipe already Pending returns ErrImportInProgress.
func (s *RecipeStore) StartImport(ctx context.Context, userID, recipeID string) error {
	now := time.Now().UTC()
	fresh := &RecipeRecord{
		ID:           recipeID,
		UserID:       userID,
		ImportStatus: ImportStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		entry, err := s.kv.Get(ctx, recipeID)
		if err != nil {
			if !isNotFound(err) {
				return fmt.Errorf("get recipe: %w", err)
			}
			data, err := json.Marshal(fresh)
			if err != nil {
				return fmt.Errorf("marshal recipe: %w", err)
			}
			if _, err := s.kv.Create(ctx, recipeID, data); err != nil {
				// Lost the create race, re-read and decide again.
				continue
			}
			return nil
		}

		var existing RecipeRecord
		if err := json.Unmarshal(entry.Value(), &existing); err != nil {
			return fmt.Errorf("unmarshal recipe: %w", err)
		}
		if existing.ImportStatus == ImportStatusPending {
			return ErrImportInProgress
		}

		// Re-import of a terminal row keeps its creation time.
		fresh.CreatedAt = existing.CreatedAt
		data, err := json.Marshal(fresh)
		if err != nil {
			return fmt.Errorf("marshal recipe: %w", err)
		}
		if _, err := s.kv.Update(ctx, recipeID, data, entry.Revision()); err != nil {
			continue
		}
		return nil
	}
	return fmt.Errorf("start import for %s: too much contention", recipeID)
}

// Get retrieves a recipe row.
func (s *RecipeStore) Get(ctx context.Context, recipeID string) (*RecipeRecord, error) {
	entry, err := s.kv.Get(ctx, recipeID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get recipe: %w", err)
	}

	var record RecipeRecord
	if err := json.Unmarshal(entry.Value(), &record); err != nil {
		return nil, fmt.Errorf("unmarshal recipe: %w", err)
	}
	return &record, nil
}

// CompleteImport merges extracted attributes and moves Pending to Completed.
func (s *RecipeStore) CompleteImport(ctx context.Context, recipeID string, attrs *extract.Attributes) error {
	return s.transition(ctx, recipeID, func(record *RecipeRecord) {
		record.ImportStatus = ImportStatusCompleted
		record.Attributes = attrs
		record.ErrorMessage = ""
		record.FailedAt = nil
	})
}

// FailImport moves Pending to Failed with a user-facing message.
func (s *RecipeStore) FailImport(ctx context.Context, recipeID, message string) error {
	return s.transition(ctx, recipeID, func(record *RecipeRecord) {
		now := time.Now().UTC()
		record.ImportStatus = ImportStatusFailed
		record.ErrorMessage = message
		record.FailedAt = &now
	})
}

// transition applies fn to a Pending row under CAS. Terminal rows refuse
// with ErrTerminal; a lost swap re-reads and re-decides.
func (s *RecipeStore) transition(ctx context.Context, recipeID string, fn func(*RecipeRecord)) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		entry, err := s.kv.Get(ctx, recipeID)
		if err != nil {
			if isNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("get recipe: %w", err)
		}

		var record RecipeRecord
		if err := json.Unmarshal(entry.Value(), &record); err != nil {
			return fmt.Errorf("unmarshal recipe: %w", err)
		}
		if record.ImportStatus.Terminal() {
			return ErrTerminal
		}

		fn(&record)
		record.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("marshal recipe: %w", err)
		}
		if _, err := s.kv.Update(ctx, recipeID, data, entry.Revision()); err != nil {
			continue
		}
		return nil
	}
	return fmt.Errorf("transition recipe %s: too much contention", recipeID)
}

// AttachCoverImage records the stored cover image key on a Completed row.
// The image arrives after the Completed transition, so this is the one
// write allowed on a terminal row.
func (s *RecipeStore) AttachCoverImage(ctx context.Context, recipeID, imageKey string) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		entry, err := s.kv.Get(ctx, recipeID)
		if err != nil {
			if isNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("get recipe: %w", err)
		}

		var record RecipeRecord
		if err := json.Unmarshal(entry.Value(), &record); err != nil {
			return fmt.Errorf("unmarshal recipe: %w", err)
		}
		if record.ImportStatus != ImportStatusCompleted {
			return fmt.Errorf("attach cover image: recipe %s is %s", recipeID, record.ImportStatus)
		}

		record.CoverImage = imageKey
		record.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("marshal recipe: %w", err)
		}
		if _, err := s.kv.Update(ctx, recipeID, data, entry.Revision()); err != nil {
			continue
		}
		return nil
	}
	return fmt.Errorf("attach cover image for %s: too much contention", recipeID)
}

// PurgeFailedBefore deletes Failed rows whose failure predates cutoff and
// returns how many were removed.
func (s *RecipeStore) PurgeFailedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return 0, nil
		}
		return 0, fmt.Errorf("list recipe keys: %w", err)
	}

	purged := 0
	for _, key := range keys {
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var record RecipeRecord
		if err := json.Unmarshal(entry.Value(), &record); err != nil {
			continue
		}
		if record.ImportStatus != ImportStatusFailed || record.FailedAt == nil {
			continue
		}
		if record.FailedAt.After(cutoff) {
			continue
		}
		if err := s.kv.Delete(ctx, key); err != nil {
			continue
		}
		purged++
	}
	return purged, nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key not found")
}
