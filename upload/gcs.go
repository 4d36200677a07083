package upload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSBackend uploads objects to one Google Cloud Storage bucket, used when
// UPLOAD_BACKEND=gcs.
type GCSBackend struct {
	client *storage.Client
	bucket string
}

func NewGCSBackend(ctx context.Context, bucket string) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("upload: gcs: building client: %w", err)
	}
	return &GCSBackend{client: client, bucket: bucket}, nil
}

var _ Backend = (*GCSBackend)(nil)

func (b *GCSBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	obj := b.client.Bucket(b.bucket).Object(key)
	if attrs, err := obj.Attrs(ctx); err == nil && attrs.Size == size {
		return nil
	} else if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("upload: gcs: checking %s: %w", key, err)
	}

	w := obj.NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("upload: gcs: writing %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload: gcs: closing %s: %w", key, err)
	}
	return nil
}
