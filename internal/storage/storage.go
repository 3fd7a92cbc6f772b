package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// ObjectStorage captures the S3-compatible operations the pipeline needs.
type ObjectStorage interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	EnsureBucket(ctx context.Context, bucket string) error
	// ListObjects returns objects under prefix ordered by key. A missing bucket
	// yields an error wrapping domain.ErrNotFound.
	ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	DownloadObject(ctx context.Context, bucket, key, destPath string) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	UploadFile(ctx context.Context, bucket, key, localPath string) error
}
