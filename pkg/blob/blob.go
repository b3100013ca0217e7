// Package blob provides byte storage for uploaded statement files with local
// filesystem and Google Cloud Storage implementations.
package blob

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("blob not found")

// Store holds raw uploaded bytes keyed by an opaque string key.
type Store interface {
	// Put stores data under key, overwriting any previous object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get retrieves the bytes stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Backend identifies the storage backend
type Backend string

const (
	BackendLocal Backend = "local"
	BackendGCS   Backend = "gcs"
)

// Config holds blob storage configuration
type Config struct {
	Backend Backend

	// Local backend config
	LocalPath string

	// GCS backend config
	GCSBucket string
}

// New creates a Store implementation based on configuration
func New(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Backend {
	case BackendGCS:
		return NewGCSStore(ctx, cfg.GCSBucket)
	case BackendLocal:
		return NewLocalStore(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}
