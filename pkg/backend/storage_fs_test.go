package backend

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/foomo/objectregistry/pkg/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemStorage_Write_Overwrite(t *testing.T) {
	ctx := context.Background()
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	err = storage.Write(ctx, "model:a/1/data.json", []byte("original"))
	require.NoError(t, err)

	err = storage.Write(ctx, "model:a/1/data.json", []byte("updated"))
	require.NoError(t, err)

	data, err := storage.Read(ctx, "model:a/1/data.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("updated"), data)
}

func TestFilesystemStorage_Read_NotFound(t *testing.T) {
	ctx := context.Background()
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	_, err = storage.Read(ctx, "nonexistent-key")
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestFilesystemStorage_List(t *testing.T) {
	ctx := context.Background()
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{
		"_meta_model:b@1.json",
		"_meta_model:a@1.json",
		"model:a/1/data.json",
		"model:a/1/nested/weights.bin",
		"model:a/10/data.json",
		"other/1/data.json",
	} {
		require.NoError(t, storage.Write(ctx, key, []byte("x")))
	}

	keys, err := storage.List(ctx, "_meta_")
	require.NoError(t, err)
	assert.Equal(t, []string{"_meta_model:a@1.json", "_meta_model:b@1.json"}, keys)

	keys, err = storage.List(ctx, "model:a/1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"model:a/1/data.json", "model:a/1/nested/weights.bin"}, keys)

	keys, err = storage.List(ctx, "model:a/1")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestFilesystemStorage_List_Empty(t *testing.T) {
	ctx := context.Background()
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	keys, err := storage.List(ctx, "nonexistent-")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFilesystemStorage_Delete_RemovesEmptyParents(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	storage, err := NewFilesystemStorage(dir)
	require.NoError(t, err)

	require.NoError(t, storage.Write(ctx, "model:a/1/nested/weights.bin", []byte("w")))
	require.NoError(t, storage.Write(ctx, "model:a/2/data.json", []byte("d")))

	require.NoError(t, storage.Delete(ctx, "model:a/1/nested/weights.bin"))
	assert.NoDirExists(t, filepath.Join(dir, "model:a", "1"))
	assert.DirExists(t, filepath.Join(dir, "model:a", "2"))

	require.NoError(t, storage.Delete(ctx, "model:a/2/data.json"))
	assert.NoDirExists(t, filepath.Join(dir, "model:a"))
	assert.DirExists(t, dir)
}

func TestFilesystemStorage_Delete_NotFound(t *testing.T) {
	ctx := context.Background()
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	// Delete should be idempotent - no error for non-existent key
	err = storage.Delete(ctx, "nonexistent-key")
	require.NoError(t, err)
}

func TestFilesystemStorage_WriteIfGeneration(t *testing.T) {
	ctx := context.Background()
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, storage.WriteIfGeneration(ctx, "_lock_a.json", []byte("one"), ""))
	assert.ErrorIs(t, storage.WriteIfGeneration(ctx, "_lock_a.json", []byte("two"), ""), lock.ErrGenerationMismatch)

	data, generation, err := storage.ReadGeneration(ctx, "_lock_a.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)

	require.NoError(t, storage.WriteIfGeneration(ctx, "_lock_a.json", []byte("two"), generation))
	assert.ErrorIs(t, storage.WriteIfGeneration(ctx, "_lock_a.json", []byte("three"), generation), lock.ErrGenerationMismatch)
	assert.ErrorIs(t, storage.WriteIfGeneration(ctx, "_lock_b.json", []byte("x"), generation), lock.ErrGenerationMismatch)

	_, generation, err = storage.ReadGeneration(ctx, "_lock_a.json")
	require.NoError(t, err)
	assert.ErrorIs(t, storage.DeleteIfGeneration(ctx, "_lock_a.json", "stale"), lock.ErrGenerationMismatch)
	require.NoError(t, storage.DeleteIfGeneration(ctx, "_lock_a.json", generation))
	require.NoError(t, storage.DeleteIfGeneration(ctx, "_lock_a.json", generation))

	_, _, err = storage.ReadGeneration(ctx, "_lock_a.json")
	assert.True(t, os.IsNotExist(err))
}

func TestFilesystemStorage_CreateAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// separate instances share no mutex, only the filesystem
			storage, err := NewFilesystemStorage(dir)
			if !assert.NoError(t, err) {
				return
			}
			err = storage.WriteIfGeneration(ctx, "_lock_a.json", []byte("x"), "")
			if err == nil {
				created.Add(1)
			} else {
				assert.ErrorIs(t, err, lock.ErrGenerationMismatch)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load())

	storage, err := NewFilesystemStorage(dir)
	require.NoError(t, err)
	keys, err := storage.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"_lock_a.json"}, keys)
}

func TestFilesystemStorage_URI(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFilesystemStorage(dir)
	require.NoError(t, err)

	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(dir, "model:a", "1")), storage.URI("model:a/1"))
}

func TestFilesystemStorage_ConcurrentOperations(t *testing.T) {
	ctx := context.Background()
	storage, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := "concurrent/key"
			_ = storage.Write(ctx, key, []byte("data"))
			_, _ = storage.Read(ctx, key)
			_, _ = storage.List(ctx, "concurrent/")
			_ = storage.Delete(ctx, key)
		}()
	}
	wg.Wait()
}
