package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// MaxImageSize bounds stored image blobs. Caller-attached images are
// validated to this limit; fetched cover images are bounded well below it
// by the fetcher's own ceiling.
const MaxImageSize = 15 * 1024 * 1024

// Image is a stored image blob with its content type.
type Image struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// ImageStore persists at most one image blob per recipe.
type ImageStore struct {
	kv jetstream.KeyValue
}

// NewImageStore creates the store, provisioning its bucket if needed.
func NewImageStore(ctx context.Context, js jetstream.JetStream) (*ImageStore, error) {
	kv, err := getOrCreateBucket(ctx, js, BucketImages)
	if err != nil {
		return nil, fmt.Errorf("create images bucket: %w", err)
	}
	return &ImageStore{kv: kv}, nil
}

// Put stores the recipe's image and returns its key. Non-image content
// types and oversized blobs are refused.
func (s *ImageStore) Put(ctx context.Context, recipeID, contentType string, data []byte) (string, error) {
	if len(data) > MaxImageSize {
		return "", ErrImageTooLarge
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("not an image content type: %s", contentType)
	}

	value, err := json.Marshal(&Image{ContentType: contentType, Data: data})
	if err != nil {
		return "", fmt.Errorf("marshal image: %w", err)
	}
	if _, err := s.kv.Put(ctx, recipeID, value); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return recipeID, nil
}

// Get retrieves a recipe's image.
func (s *ImageStore) Get(ctx context.Context, recipeID string) (*Image, error) {
	entry, err := s.kv.Get(ctx, recipeID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get image: %w", err)
	}

	var img Image
	if err := json.Unmarshal(entry.Value(), &img); err != nil {
		return nil, fmt.Errorf("unmarshal image: %w", err)
	}
	return &img, nil
}

// Delete removes a recipe's image. Missing keys are not an error.
func (s *ImageStore) Delete(ctx context.Context, recipeID string) error {
	if err := s.kv.Delete(ctx, recipeID); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}
