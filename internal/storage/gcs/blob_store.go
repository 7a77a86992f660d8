// Package gcs archives raw documents and run summaries in a Cloud
// Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/leadharvest/leadscraper/internal/scrape"
)

// Store implements scrape.BlobStore on a single bucket.
type Store struct {
	client *storage.Client
	bucket string
}

// New creates a client with Application Default Credentials and verifies
// the bucket is reachable.
func New(ctx context.Context, bucket string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// PutObject writes the body to the bucket and returns the gs:// URL.
func (s *Store) PutObject(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %s: %w", path, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ scrape.BlobStore = (*Store)(nil)
