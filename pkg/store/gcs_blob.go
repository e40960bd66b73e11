//go:build gcp

package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSBlobStore implements BlobStore using Google Cloud Storage.
type GCSBlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSBlobStore creates a GCS-backed blob store using application default
// credentials.
func NewGCSBlobStore(ctx context.Context, bucket, prefix string) (*GCSBlobStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSBlobStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSBlobStore) Put(ctx context.Context, key string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(s.prefix + key).NewWriter(ctx)
	w.ContentType = "application/cbor"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close failed: %w", err)
	}
	return nil
}

func (s *GCSBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.prefix + key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("gcs get failed for %s: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	return io.ReadAll(reader)
}

// Close closes the GCS client.
func (s *GCSBlobStore) Close() error {
	return s.client.Close()
}

func newGCSBlobStore(ctx context.Context, bucket, prefix string) (BlobStore, error) {
	return NewGCSBlobStore(ctx, bucket, prefix)
}
