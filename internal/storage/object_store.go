package storage

import (
	"context"
	"io"
)

// ObjectStore holds dataset files, trained checkpoints, and prediction
// outputs. Implementations are backed by S3 or the local filesystem.
type ObjectStore interface {
	CreateBucket(ctx context.Context, bucket string) error

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	DownloadDir(ctx context.Context, bucket, prefix, dest string, overwrite bool) error

	UploadDir(ctx context.Context, bucket, prefix, src string) error
}

type Object struct {
	Name string
	Size int64
}
