package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalObjectStore lays objects out as <baseDir>/<bucket>/<key> and backs
// the single-process deployment where no S3 endpoint is configured.
type LocalObjectStore struct {
	baseDir string
}

var _ ObjectStore = (*LocalObjectStore)(nil)

func NewLocalObjectStore(dir string) (*LocalObjectStore, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	if err := os.MkdirAll(baseDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", baseDir, err)
	}

	return &LocalObjectStore{baseDir: baseDir}, nil
}

func (s *LocalObjectStore) fullpath(bucket, key string) string {
	return filepath.Join(s.baseDir, bucket, filepath.FromSlash(key))
}

func (s *LocalObjectStore) CreateBucket(ctx context.Context, bucket string) error {
	if err := os.MkdirAll(filepath.Join(s.baseDir, bucket), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create bucket directory %s: %w", bucket, err)
	}
	return nil
}

func (s *LocalObjectStore) PutObject(ctx context.Context, bucket, key string, data io.Reader) error {
	path := s.fullpath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s/%s: %w", bucket, key, err)
	}

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s/%s: %w", bucket, key, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, data); err != nil {
		return fmt.Errorf("failed to write file %s/%s: %w", bucket, key, err)
	}

	return nil
}

func (s *LocalObjectStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := os.ReadFile(s.fullpath(bucket, key))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (s *LocalObjectStore) DownloadDir(ctx context.Context, bucket, prefix, dest string, overwrite bool) error {
	sourcePath := s.fullpath(bucket, prefix)

	if _, err := os.Stat(dest); err == nil {
		if !overwrite {
			return fmt.Errorf("destination %s already exists and overwrite is false", dest)
		}
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("failed to remove existing destination: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create parent directory for destination: %w", err)
	}

	if err := os.Symlink(sourcePath, dest); err != nil {
		return fmt.Errorf("failed to create symlink from %s/%s to %s: %w", bucket, prefix, dest, err)
	}
	return nil
}

func (s *LocalObjectStore) UploadDir(ctx context.Context, bucket, prefix, src string) error {
	destPath := s.fullpath(bucket, prefix)

	if _, err := os.Stat(destPath); err == nil {
		if err := os.RemoveAll(destPath); err != nil {
			return fmt.Errorf("failed to remove existing destination: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create parent directory for %s/%s: %w", bucket, prefix, err)
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk directory %s: %w", src, err)
		}
		if info.IsDir() {
			return nil
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(path, src), string(filepath.Separator))
		target := filepath.Join(destPath, rel)

		if err := os.MkdirAll(filepath.Dir(target), os.ModePerm); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", target, err)
		}

		in, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer in.Close()

		out, err := os.Create(target)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", target, err)
		}
		defer out.Close()

		if _, err := io.Copy(out, in); err != nil {
			return fmt.Errorf("failed to copy %s to %s: %w", path, target, err)
		}
		return nil
	})
}
