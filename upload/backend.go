// Package upload implements the file handler collaborator of spec §6: once
// check_downloads sees a completed torrent, FileHandler.Upload stages each
// allow-listed file from the seedbox and streams it to a pluggable
// destination Backend (local disk, S3, Azure Blob, or GCS).
package upload

import (
	"context"
	"io"
)

// Backend is one upload destination. Implementations MUST be safe to call
// twice with the same key and content - spec §9 open question (a): the
// reaper can return an Account from UPLOADING to DOWNLOADING mid-upload,
// and the retried upload must not corrupt or duplicate the destination.
type Backend interface {
	// Put streams size bytes from r to key. Re-running Put with the same
	// key and equal-length content must be a no-op or an overwrite with
	// identical results, never an append or a duplicate object.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
}

// NewBackend constructs the Backend named by kind (spec §4.14
// UPLOAD_BACKEND: "local", "s3", "azureblob", "gcs").
func NewBackend(ctx context.Context, kind string, cfg BackendConfig) (Backend, error) {
	switch kind {
	case "", "local":
		return NewLocalBackend(cfg.LocalDir), nil
	case "s3":
		return NewS3Backend(ctx, cfg.S3Bucket, cfg.S3Region)
	case "azureblob":
		return NewAzureBlobBackend(cfg.AzureAccount, cfg.AzureKey, cfg.AzureContainer)
	case "gcs":
		return NewGCSBackend(ctx, cfg.GCSBucket)
	default:
		return nil, &UnknownBackendError{Kind: kind}
	}
}

// BackendConfig carries every backend's credentials; only the fields for
// the selected UPLOAD_BACKEND are consulted.
type BackendConfig struct {
	LocalDir string

	S3Bucket string
	S3Region string

	AzureAccount   string
	AzureKey       string
	AzureContainer string

	GCSBucket string
}

type UnknownBackendError struct {
	Kind string
}

func (e *UnknownBackendError) Error() string {
	return "upload: unknown backend " + e.Kind
}
