// Package storage reads and writes rule documents in a directory or an
// S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/config"
)

// ErrNotFound is returned by Get when no object exists at the key.
var ErrNotFound = errors.New("object not found")

// Storage abstracts object storage for published rule documents.
// Implementations handle the local filesystem or S3-compatible object
// storage (AWS, CEPH, MinIO).
type Storage interface {
	// Get opens the object at key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put writes body at key, replacing any existing object.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Open opens the backend selected by cfg.
func Open(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case config.StorageLocal:
		return NewLocal(cfg.LocalPath), nil
	case config.StorageS3:
		return NewS3(ctx, S3Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Bucket:         cfg.S3.Bucket,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
