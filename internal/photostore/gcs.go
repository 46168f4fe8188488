package photostore

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsWriteTimeout = 2 * time.Minute

// GCSStore Google Cloud Storage，返回 gs://bucket/key
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Save(ctx context.Context, key string, data []byte) (string, error) {
	obj, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, gcsWriteTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(obj).NewWriter(ctx)
	w.ContentType = "image/jpeg"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, obj), nil
}

func (s *GCSStore) Open(ctx context.Context, photoPath string) (io.ReadCloser, error) {
	prefix := "gs://" + s.bucket + "/"
	if len(photoPath) > len(prefix) && photoPath[:len(prefix)] == prefix {
		photoPath = photoPath[len(prefix):]
	}
	obj, err := cleanKey(photoPath)
	if err != nil {
		return nil, err
	}
	return s.client.Bucket(s.bucket).Object(obj).NewReader(ctx)
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
