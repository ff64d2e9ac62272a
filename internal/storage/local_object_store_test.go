package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalObjectStorePutGet(t *testing.T) {
	store, err := NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.CreateBucket(ctx, "checkpoints"))

	require.NoError(t, store.PutObject(ctx, "checkpoints", "run-1/test_prediction.json", strings.NewReader(`{"0": 0.5}`)))

	data, err := store.GetObject(ctx, "checkpoints", "run-1/test_prediction.json")
	require.NoError(t, err)
	assert.Equal(t, `{"0": 0.5}`, string(data))

	_, err = store.GetObject(ctx, "checkpoints", "missing")
	assert.Error(t, err)
}

func TestLocalObjectStoreUploadDownloadDir(t *testing.T) {
	store, err := NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.CreateBucket(ctx, "checkpoints"))

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "model.bin"), []byte("weights"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "config.json"), []byte("{}"), 0644))

	require.NoError(t, store.UploadDir(ctx, "checkpoints", "run-1", src))

	data, err := store.GetObject(ctx, "checkpoints", "run-1/model.bin")
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))

	dest := filepath.Join(t.TempDir(), "download")
	require.NoError(t, store.DownloadDir(ctx, "checkpoints", "run-1", dest, false))

	data, err = os.ReadFile(filepath.Join(dest, "nested", "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	// existing destination without overwrite is an error
	assert.Error(t, store.DownloadDir(ctx, "checkpoints", "run-1", dest, false))
	assert.NoError(t, store.DownloadDir(ctx, "checkpoints", "run-1", dest, true))
}

func TestLocalObjectStoreUploadDirReplaces(t *testing.T) {
	store, err := NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.CreateBucket(ctx, "checkpoints"))

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("first"), 0644))
	require.NoError(t, store.UploadDir(ctx, "checkpoints", "run-1", src))

	require.NoError(t, os.Remove(filepath.Join(src, "a.txt")))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.txt"), []byte("second"), 0644))
	require.NoError(t, store.UploadDir(ctx, "checkpoints", "run-1", src))

	_, err = store.GetObject(ctx, "checkpoints", "run-1/a.txt")
	assert.Error(t, err, "stale files are removed on re-upload")

	data, err := store.GetObject(ctx, "checkpoints", "run-1/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}
