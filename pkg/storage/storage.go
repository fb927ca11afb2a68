// Package storage persists captured slide keyframe images, either to a local
// directory or a Google Cloud Storage bucket.
package storage

import (
	"context"
	"os"

	"github.com/DGQW1/calhack-backend/internal/config"
)

// Result describes where a stored image can be retrieved.
type Result struct {
	URL string `json:"url"`
	Key string `json:"storage_key"`
}

// Storage persists slide keyframe images. Store failures are expected to be
// handled by the caller per candidate; they never stop a stream.
type Storage interface {
	Store(data []byte, key, sessionID string) (Result, error)
}

// FromEnv builds the configured storage backend. GCS is selected when
// SLIDE_STORAGE_GCS_BUCKET is set; otherwise images go to a local directory.
// Backend construction errors are fatal at setup, not per-chunk.
func FromEnv(ctx context.Context) (Storage, error) {
	if bucket := os.Getenv("SLIDE_STORAGE_GCS_BUCKET"); bucket != "" {
		prefix := config.String("SLIDE_STORAGE_GCS_PREFIX", "slides")
		return NewGCS(ctx, bucket, prefix, os.Getenv("SLIDE_STORAGE_BASE_URL"))
	}
	dir := config.String("SLIDE_STORAGE_LOCAL_PATH", "slide_storage")
	return NewLocal(dir, os.Getenv("SLIDE_STORAGE_BASE_URL"))
}
