package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3ObjectStore struct {
	client     *s3.Client
	downloader *manager.Downloader
	uploader   *manager.Uploader
	cfg        S3ClientConfig
}

var _ ObjectStore = (*S3ObjectStore)(nil)

func NewS3ObjectStore(cfg S3ClientConfig) (*S3ObjectStore, error) {
	client, err := initializeS3Client(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize s3 client: %w", err)
	}

	return &S3ObjectStore{
		client:     client,
		downloader: manager.NewDownloader(client),
		uploader:   manager.NewUploader(client),
		cfg:        cfg,
	}, nil
}

func (s *S3ObjectStore) listObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var objects []Object

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in bucket %s with prefix %s: %w", bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Name: *obj.Key,
				Size: *obj.Size,
			})
		}
	}

	return objects, nil
}

func (s *S3ObjectStore) CreateBucket(ctx context.Context, bucket string) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		var existErr *types.BucketAlreadyExists
		var ownedErr *types.BucketAlreadyOwnedByYou
		if errors.As(err, &existErr) || errors.As(err, &ownedErr) {
			slog.Info("bucket already exists", "bucket", bucket)
			return nil
		}

		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}

	slog.Info("bucket created successfully", "bucket", bucket)

	return nil
}

func (s *S3ObjectStore) PutObject(ctx context.Context, bucket, key string, data io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to s3://%s/%s: %w", bucket, key, err)
	}

	return nil
}

func (s *S3ObjectStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object s3://%s/%s: %w", bucket, key, err)
	}
	return buf.Bytes(), nil
}

func (s *S3ObjectStore) downloadObject(ctx context.Context, bucket, key, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for download %s: %w", filepath.Dir(filename), err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", filename, err)
	}
	defer file.Close()

	_, err = s.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download s3://%s/%s to %s: %w", bucket, key, filename, err)
	}

	return nil
}

func (s *S3ObjectStore) DownloadDir(ctx context.Context, bucket, prefix, dest string, overwrite bool) error {
	if _, err := os.Stat(dest); err == nil {
		if !overwrite {
			return fmt.Errorf("destination %s already exists and overwrite is false", dest)
		}
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("failed to remove existing destination: %w", err)
		}
	}

	if err := os.MkdirAll(dest, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dest, err)
	}

	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	objects, err := s.listObjects(ctx, bucket, prefix)
	if err != nil {
		return fmt.Errorf("error downloading directory %s/%s to %s: %w", bucket, prefix, dest, err)
	}

	for _, obj := range objects {
		localPath := filepath.Join(dest, strings.TrimPrefix(obj.Name, prefix))

		if err := s.downloadObject(ctx, bucket, obj.Name, localPath); err != nil {
			return fmt.Errorf("error downloading directory %s/%s to %s: %w", bucket, prefix, dest, err)
		}
	}

	return nil
}

func (s *S3ObjectStore) UploadDir(ctx context.Context, bucket, prefix, src string) error {
	return filepath.Walk(src, func(fpath string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk directory %s: %w", src, err)
		}

		if info.IsDir() {
			return nil
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(fpath, src), string(filepath.Separator))
		key := path.Join(prefix, filepath.ToSlash(rel))

		data, err := os.ReadFile(fpath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", fpath, err)
		}

		if err := s.PutObject(ctx, bucket, key, bytes.NewReader(data)); err != nil {
			return err
		}
		return nil
	})
}
