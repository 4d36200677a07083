package upload

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Backend uploads through the AWS SDK's managed uploader, which already
// chunks large torrent files into multipart uploads - the concern the
// source's PTXFileHandler hand-rolls its own chunking loop for.
type S3Backend struct {
	uploader *s3manager.Uploader
	client   *s3.S3
	bucket   string
}

func NewS3Backend(ctx context.Context, bucket, region string) (*S3Backend, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("upload: s3: building session: %w", err)
	}
	return &S3Backend{
		uploader: s3manager.NewUploader(sess),
		client:   s3.New(sess),
		bucket:   bucket,
	}, nil
}

var _ Backend = (*S3Backend)(nil)

func (b *S3Backend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if exists, err := b.exists(ctx, key, size); err != nil {
		return err
	} else if exists {
		return nil
	}
	_, err := b.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("upload: s3: put %s: %w", key, err)
	}
	return nil
}

func (b *S3Backend) exists(ctx context.Context, key string, size int64) (bool, error) {
	out, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if reqErr, ok := err.(interface{ Code() string }); ok && reqErr.Code() == "NotFound" {
			return false, nil
		}
		return false, nil // any other head error: fall through and let Put retry
	}
	return out.ContentLength != nil && *out.ContentLength == size, nil
}
