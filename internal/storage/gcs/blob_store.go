// Package gcs uploads finished scan exports to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config names the export bucket.
type Config struct {
	Bucket string
	// CacheControl is set on every uploaded export. Empty keeps the bucket default.
	CacheControl string
}

// BlobStore implements jobs.BlobStore for a single bucket.
type BlobStore struct {
	bucket       *storage.BucketHandle
	name         string
	cacheControl string
}

// New binds a BlobStore to cfg.Bucket. The caller owns client and closes it.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("gcs client is required")
	}
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{
		bucket:       client.Bucket(name),
		name:         name,
		cacheControl: cfg.CacheControl,
	}, nil
}

// PutObject streams data to the object at path and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	object := strings.TrimLeft(strings.TrimSpace(path), "/")
	if object == "" {
		return "", errors.New("object path is required")
	}
	w := s.bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = s.cacheControl

	if _, err := io.Copy(w, data); err != nil {
		return "", errors.Join(fmt.Errorf("upload %s: %w", object, err), w.Close())
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", object, err)
	}
	return "gs://" + s.name + "/" + object, nil
}
