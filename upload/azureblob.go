package upload

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureBlobBackend uploads block blobs to one container, used when
// UPLOAD_BACKEND=azureblob.
type AzureBlobBackend struct {
	containerURL azblob.ContainerURL
}

func NewAzureBlobBackend(account, key, container string) (*AzureBlobBackend, error) {
	credential, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, fmt.Errorf("upload: azureblob: credential: %w", err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	u, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", account, container))
	if err != nil {
		return nil, fmt.Errorf("upload: azureblob: container url: %w", err)
	}
	return &AzureBlobBackend{containerURL: azblob.NewContainerURL(*u, pipeline)}, nil
}

var _ Backend = (*AzureBlobBackend)(nil)

func (b *AzureBlobBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	blobURL := b.containerURL.NewBlockBlobURL(key)
	if props, err := blobURL.GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{}); err == nil {
		if props.ContentLength() == size {
			return nil
		}
	}
	_, err := azblob.UploadStreamToBlockBlob(ctx, r, blobURL, azblob.UploadStreamToBlockBlobOptions{
		BufferSize: 4 * 1024 * 1024,
		MaxBuffers: 4,
	})
	if err != nil {
		return fmt.Errorf("upload: azureblob: put %s: %w", key, err)
	}
	return nil
}
