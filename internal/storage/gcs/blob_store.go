// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// ErrNotFound is returned by ReadObject for a missing object.
var ErrNotFound = errors.New("gcs object not found")

// Config names the bucket objects are written to.
type Config struct {
	Bucket string
}

// BlobStore reads and writes objects in one bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
}

// New wraps client for cfg.Bucket.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{client: client, bucket: cfg.Bucket}, nil
}

// Bucket returns the bucket name.
func (s *BlobStore) Bucket() string { return s.bucket }

// URI returns the gs:// URI of path.
func (s *BlobStore) URI(path string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, path)
}

// PutObject uploads data to path and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	w, err := s.NewWriter(ctx, path, contentType)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(w, r); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return s.URI(path), nil
}

// NewWriter opens a streaming upload to path. The object becomes visible
// when the writer is closed; cancelling ctx aborts it.
func (s *BlobStore) NewWriter(ctx context.Context, path string, contentType string) (io.WriteCloser, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}
	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	return w, nil
}

// ReadObject downloads path. A missing object yields ErrNotFound.
func (s *BlobStore) ReadObject(ctx context.Context, path string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", s.URI(path), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.URI(path), err)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.URI(path), err)
	}
	return data, nil
}

// Promote copies src over dst and then deletes src.
func (s *BlobStore) Promote(ctx context.Context, src, dst string) error {
	bucket := s.client.Bucket(s.bucket)
	if _, err := bucket.Object(dst).CopierFrom(bucket.Object(src)).Run(ctx); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return s.Delete(ctx, src)
}

// Delete removes path. Deleting a missing object is not an error.
func (s *BlobStore) Delete(ctx context.Context, path string) error {
	err := s.client.Bucket(s.bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", s.URI(path), err)
	}
	return nil
}
