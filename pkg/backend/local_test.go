package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLocal_DeleteRemovesEmptyDirectories(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocal(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)

	src := writeTree(t, map[string]string{"nested/deep/a.txt": "a"})
	require.NoError(t, b.Push(ctx, "model:a", "1", src))
	assert.FileExists(t, filepath.Join(b.Dir(), "model:a", "1", "nested", "deep", "a.txt"))

	require.NoError(t, b.Delete(ctx, "model:a", "1"))
	assert.NoDirExists(t, filepath.Join(b.Dir(), "model:a"))
	assert.DirExists(t, b.Dir())
}

func TestLocal_Layout(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocal(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)

	require.NoError(t, b.SaveMetadata(ctx, "model:a", "1", Metadata{}))
	require.NoError(t, b.RegisterMaterializer(ctx, "main.Model", "json"))
	ok, err := b.Acquire(ctx, "model:a", "holder", time.Second, false)
	require.NoError(t, err)
	require.True(t, ok)

	assert.FileExists(t, filepath.Join(b.Dir(), "_meta_model:a@1.json"))
	assert.FileExists(t, filepath.Join(b.Dir(), "_registry.json"))
	assert.FileExists(t, filepath.Join(b.Dir(), "_lock_model:a.json"))

	require.NoError(t, b.Release(ctx, "model:a", "holder"))
	assert.NoFileExists(t, filepath.Join(b.Dir(), "_lock_model:a.json"))
	assert.Equal(t, "file://"+filepath.ToSlash(b.Dir()), b.URI())
}

func TestLocal_LocksSharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewLocal(zaptest.NewLogger(t), dir)
	require.NoError(t, err)
	second, err := NewLocal(zaptest.NewLogger(t), dir)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx, "model:a", "first", time.Second, false)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx, "model:a", "second", 100*time.Millisecond, false)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx, "model:a", "first"))

	ok, err = second.Acquire(ctx, "model:a", "second", time.Second, false)
	require.NoError(t, err)
	assert.True(t, ok)
}
