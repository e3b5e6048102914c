package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/foomo/objectregistry/pkg/backend"
	"github.com/foomo/objectregistry/pkg/backend/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
)

type weights struct {
	Layers []float64 `json:"layers" yaml:"layers"`
	Name   string    `json:"name" yaml:"name"`
}

func testBackends(t *testing.T) map[string]backend.Backend {
	t.Helper()
	l := zaptest.NewLogger(t)

	local, err := backend.NewLocal(l, t.TempDir())
	require.NoError(t, err)

	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bucket.Close() })

	return map[string]backend.Backend{
		"local": local,
		"blob":  backend.NewBlobFromBucket(l, bucket, "mem://", "objects"),
		"s3":    backend.NewS3FromClient(l, mock.NewS3Client(t), "test-bucket", "objects"),
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, r *Registry)) {
	t.Helper()
	for name, b := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, New(zaptest.NewLogger(t), b, WithTempDir(t.TempDir()), WithLockTimeout(30*time.Second)))
		})
	}
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func TestRegistry_SaveLoadVersions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r *Registry) {
		ctx := context.Background()
		v1 := weights{Name: "resnet", Layers: []float64{0.1, 0.2}}
		v2 := weights{Name: "resnet", Layers: []float64{0.3, 0.4, 0.5}}

		version, err := r.Save(ctx, "model:resnet", v1)
		require.NoError(t, err)
		assert.Equal(t, "1", version)

		version, err = r.Save(ctx, "model:resnet", v2)
		require.NoError(t, err)
		assert.Equal(t, "2", version)

		var latest weights
		obj, err := r.Load(ctx, "model:resnet", "", &latest)
		require.NoError(t, err)
		assert.Equal(t, v2, latest)
		assert.Equal(t, "2", obj.Version)
		assert.Equal(t, "model:resnet", obj.Name)
		assert.Equal(t, ClassOf(v2), obj.Class())
		assert.Equal(t, MaterializerJSON, obj.Materializer())
		assert.Contains(t, obj.Path, "model:resnet/2")

		var first weights
		_, err = r.Load(ctx, "model:resnet", "1", &first)
		require.NoError(t, err)
		assert.Equal(t, v1, first)

		versions, err := r.ListVersions(ctx, "model:resnet")
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, versions)
	})
}

func TestRegistry_RoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r *Registry) {
		ctx := context.Background()

		_, err := r.Save(ctx, "data:bytes", []byte{0, 1, 2, 255})
		require.NoError(t, err)
		var data []byte
		_, err = r.Load(ctx, "data:bytes", "", &data)
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 1, 2, 255}, data)

		_, err = r.Save(ctx, "data:text", "hello registry")
		require.NoError(t, err)
		var text string
		_, err = r.Load(ctx, "data:text", "", &text)
		require.NoError(t, err)
		assert.Equal(t, "hello registry", text)

		config := map[string]any{"lr": 0.01, "tags": []any{"a", "b"}}
		_, err = r.Save(ctx, "config:train", config)
		require.NoError(t, err)
		loaded := map[string]any{}
		_, err = r.Load(ctx, "config:train", "", &loaded)
		require.NoError(t, err)
		assert.Equal(t, config, loaded)

		w := weights{Name: "yaml", Layers: []float64{1, 2}}
		_, err = r.Save(ctx, "model:yaml", &w, WithMaterializerID(MaterializerYAML))
		require.NoError(t, err)
		var fromYAML weights
		obj, err := r.Load(ctx, "model:yaml", "", &fromYAML)
		require.NoError(t, err)
		assert.Equal(t, w, fromYAML)
		assert.Equal(t, MaterializerYAML, obj.Materializer())
	})
}

func TestRegistry_PathRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r *Registry) {
		ctx := context.Background()
		src := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(src, "shards"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(src, "config.json"), []byte(`{}`), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(src, "shards", "0.bin"), []byte("zero"), 0o644))

		_, err := r.Save(ctx, "model:dir", Path(src))
		require.NoError(t, err)

		dst := Path(t.TempDir())
		obj, err := r.Load(ctx, "model:dir", "", &dst)
		require.NoError(t, err)
		assert.Equal(t, MaterializerPath, obj.Materializer())

		data, err := os.ReadFile(filepath.Join(string(dst), "shards", "0.bin"))
		require.NoError(t, err)
		assert.Equal(t, "zero", string(data))
		assert.FileExists(t, filepath.Join(string(dst), "config.json"))
	})
}

func TestRegistry_SaveEmptyDirectory(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r *Registry) {
		ctx := context.Background()

		_, err := r.Save(ctx, "model:empty", Path(t.TempDir()))
		assert.ErrorIs(t, err, ErrValidation)

		ok, err := r.Contains(ctx, "model:empty")
		require.NoError(t, err)
		assert.False(t, ok)

		locked, _, err := r.Backend().Check(ctx, "model:empty")
		require.NoError(t, err)
		assert.False(t, locked)
	})
}

func TestRegistry_ConcurrentSavesAreMonotonic(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r *Registry) {
		ctx := context.Background()

		const writers = 6
		versions := make([]string, writers)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, err := r.Save(ctx, "model:race", weights{Name: fmt.Sprintf("w%d", i)})
				assert.NoError(t, err)
				versions[i] = v
			}(i)
		}
		wg.Wait()

		sort.Slice(versions, func(i, j int) bool {
			return backend.CompareVersions(versions[i], versions[j]) < 0
		})
		assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, versions)

		locked, _, err := r.Backend().Check(ctx, "model:race")
		require.NoError(t, err)
		assert.False(t, locked)
	})
}

func TestRegistry_ConcurrentSavesAcrossInstances(t *testing.T) {
	const writers = 6

	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bucket.Close() })
	client := mock.NewS3Client(t)

	constructors := map[string]func(l *zap.Logger) backend.Backend{
		"blob": func(l *zap.Logger) backend.Backend {
			return backend.NewBlobFromBucket(l, bucket, "mem://", "objects")
		},
		"s3": func(l *zap.Logger) backend.Backend {
			return backend.NewS3FromClient(l, client, "test-bucket", "objects")
		},
	}

	for name, newBackend := range constructors {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			registries := make([]*Registry, writers)
			for i := range registries {
				l := zaptest.NewLogger(t)
				registries[i] = New(l, newBackend(l), WithTempDir(t.TempDir()), WithLockTimeout(30*time.Second))
			}

			versions := make([]string, writers)
			var wg sync.WaitGroup
			for i, r := range registries {
				wg.Add(1)
				go func() {
					defer wg.Done()
					v, err := r.Save(ctx, "model:shared", weights{Name: fmt.Sprintf("w%d", i)})
					assert.NoError(t, err)
					versions[i] = v
				}()
			}
			wg.Wait()

			backend.SortVersions(versions)
			assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, versions)

			listed, err := registries[0].ListVersions(ctx, "model:shared")
			require.NoError(t, err)
			assert.Equal(t, versions, listed)
		})
	}
}

func TestRegistry_Validation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r *Registry) {
		ctx := context.Background()

		for _, name := range []string{"", "model_a", "model@a", "model:", "a/b"} {
			_, err := r.Save(ctx, name, "x")
			assert.ErrorIs(t, err, ErrValidation, name)

			_, err = r.Load(ctx, name, "", nil)
			assert.ErrorIs(t, err, ErrValidation, name)

			assert.ErrorIs(t, r.Delete(ctx, name, ""), ErrValidation, name)
		}

		_, err := r.Save(ctx, "model:a", "x", WithVersion(backend.LatestVersion))
		assert.ErrorIs(t, err, ErrValidation)
		_, err = r.Save(ctx, "model:a", "x", WithVersion("1/2"))
		assert.ErrorIs(t, err, ErrValidation)

		names, err := r.ListObjects(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestRegistry_NotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r *Registry) {
		ctx := context.Background()

		_, err := r.Load(ctx, "model:missing", "", nil)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = r.Save(ctx, "model:a", "x")
		require.NoError(t, err)

		var s string
		_, err = r.Load(ctx, "model:a", "7", &s)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = r.Info(ctx, "model:missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRegistry_ExplicitVersions(t *testing.T) {
	ctx := context.Background()
	b, err := backend.NewLocal(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)
	r := New(zaptest.NewLogger(t), b, WithClock(steppingClock()))

	_, err = r.Save(ctx, "model:a", "two", WithVersion("2.0.0"))
	require.NoError(t, err)
	_, err = r.Save(ctx, "model:a", "one", WithVersion("1.0.0"))
	require.NoError(t, err)

	latest, err := r.LatestVersion(ctx, "model:a")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", latest, "the most recently written explicit version is latest")

	// explicit versions do not count for auto versions
	version, err := r.Save(ctx, "model:a", "auto")
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	latest, err = r.LatestVersion(ctx, "model:a")
	require.NoError(t, err)
	assert.Equal(t, "1", latest)

	// overwriting replaces the content
	_, err = r.Save(ctx, "model:a", "two again", WithVersion("2.0.0"))
	require.NoError(t, err)
	var s string
	_, err = r.Load(ctx, "model:a", "2.0.0", &s)
	require.NoError(t, err)
	assert.Equal(t, "two again", s)

	versions, err := r.ListVersions(ctx, "model:a")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "1.0.0", "2.0.0"}, versions)

	_, err = r.Get(ctx, "model:a", &s)
	require.NoError(t, err)
	assert.Equal(t, "two again", s)
}

func TestRegistry_OversizedNumericVersionIsExplicit(t *testing.T) {
	ctx := context.Background()
	b, err := backend.NewLocal(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)
	r := New(zaptest.NewLogger(t), b, WithClock(steppingClock()))

	const huge = "99999999999999999999999"
	_, err = r.Save(ctx, "model:a", "huge", WithVersion(huge))
	require.NoError(t, err)

	version, err := r.Save(ctx, "model:a", "auto")
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	latest, err := r.LatestVersion(ctx, "model:a")
	require.NoError(t, err)
	assert.Equal(t, "1", latest, "resolved by created_at, not by numeric order")

	version, err = r.Save(ctx, "model:a", "auto")
	require.NoError(t, err)
	assert.Equal(t, "2", version)

	_, err = r.Save(ctx, "model:a", "huge again", WithVersion(huge))
	require.NoError(t, err)
	latest, err = r.LatestVersion(ctx, "model:a")
	require.NoError(t, err)
	assert.Equal(t, huge, latest)
}

func TestRegistry_InfoAndMetadata(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r *Registry) {
		ctx := context.Background()

		_, err := r.Save(ctx, "model:a", weights{}, WithMetadata(map[string]any{"accuracy": 0.9, "path": "dropped"}))
		require.NoError(t, err)
		_, err = r.Save(ctx, "model:a", weights{})
		require.NoError(t, err)
		_, err = r.Save(ctx, "model:b", "b")
		require.NoError(t, err)

		info, err := r.Info(ctx, "model:a")
		require.NoError(t, err)
		require.Len(t, info, 2)
		md := info["1"]
		assert.InDelta(t, 0.9, md["accuracy"], 0.0001)
		assert.Equal(t, ClassOf(weights{}), md[backend.MetadataClass])
		assert.Equal(t, MaterializerJSON, md[backend.MetadataMaterializer])
		assert.NotEmpty(t, md[backend.MetadataCreatedAt])
		assert.NotEqual(t, "dropped", md[backend.MetadataPath])
		assert.NotContains(t, info["2"], "accuracy")

		all, err := r.InfoAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
		assert.Len(t, all["model:b"], 1)
	})
}

func TestRegistry_Delete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r *Registry) {
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			_, err := r.Save(ctx, "model:a", i)
			require.NoError(t, err)
		}

		require.NoError(t, r.Delete(ctx, "model:a", "2"))
		assert.ErrorIs(t, r.Delete(ctx, "model:a", "2"), ErrNotFound)
		_, err := r.Load(ctx, "model:a", "2", nil)
		assert.ErrorIs(t, err, ErrNotFound)

		versions, err := r.ListVersions(ctx, "model:a")
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "3"}, versions)

		require.NoError(t, r.Delete(ctx, "model:a", ""))
		ok, err := r.Contains(ctx, "model:a")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.ErrorIs(t, r.Delete(ctx, "model:a", ""), ErrNotFound)
	})
}

func TestRegistry_Materializers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r *Registry) {
		ctx := context.Background()
		class := ClassOf(weights{})

		_, ok, err := r.RegisteredMaterializer(ctx, class)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = r.Save(ctx, "model:a", weights{Name: "json"})
		require.NoError(t, err)

		id, ok, err := r.RegisteredMaterializer(ctx, class)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, MaterializerJSON, id)

		assert.ErrorIs(t, r.RegisterMaterializer(ctx, class, "pickle"), ErrUnknownMaterializer)
		require.NoError(t, r.RegisterMaterializer(ctx, class, MaterializerYAML))

		_, err = r.Save(ctx, "model:a", weights{Name: "yaml"})
		require.NoError(t, err)

		var w weights
		obj, err := r.Load(ctx, "model:a", "2", &w)
		require.NoError(t, err)
		assert.Equal(t, MaterializerYAML, obj.Materializer())
		assert.Equal(t, "yaml", w.Name)

		// versions keep the materializer they were written with
		obj, err = r.Load(ctx, "model:a", "1", &w)
		require.NoError(t, err)
		assert.Equal(t, MaterializerJSON, obj.Materializer())
		assert.Equal(t, "json", w.Name)

		all, err := r.RegisteredMaterializers(ctx)
		require.NoError(t, err)
		assert.Equal(t, MaterializerYAML, all[class])

		_, err = r.Save(ctx, "model:b", weights{}, WithMaterializerID("pickle"))
		assert.ErrorIs(t, err, ErrUnknownMaterializer)
	})
}

func TestRegistry_CustomMaterializer(t *testing.T) {
	ctx := context.Background()
	b, err := backend.NewLocal(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)
	r := New(zaptest.NewLogger(t), b, WithMaterializer("upper", TextMaterializer{}))

	require.NoError(t, r.RegisterMaterializer(ctx, "string", "upper"))
	_, err = r.Save(ctx, "note", "text")
	require.NoError(t, err)

	var s string
	obj, err := r.Load(ctx, "note", "", &s)
	require.NoError(t, err)
	assert.Equal(t, "upper", obj.Materializer())
	assert.Equal(t, "text", s)
}

func TestRegistry_LockTimeout(t *testing.T) {
	ctx := context.Background()
	b, err := backend.NewLocal(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)
	r := New(zaptest.NewLogger(t), b, WithLockTimeout(100*time.Millisecond))

	ok, err := b.Acquire(ctx, "model:a", "other-process", time.Minute, false)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = r.Save(ctx, "model:a", "x")
	assert.ErrorIs(t, err, ErrLockTimeout)

	// the foreign lock is untouched
	locked, holder, err := b.Check(ctx, "model:a")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, "other-process", holder)

	require.NoError(t, b.Release(ctx, "model:a", "other-process"))
	_, err = r.Save(ctx, "model:a", "x")
	require.NoError(t, err)
}

func TestRegistry_LockConflict(t *testing.T) {
	ctx := context.Background()
	b, err := backend.NewLocal(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)
	r := New(zaptest.NewLogger(t), b)

	ok, err := b.Acquire(ctx, "model:a", "reader", time.Minute, true)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = r.Save(ctx, "model:a", "x")
	assert.ErrorIs(t, err, ErrLockConflict)
}

func TestRegistry_Dict(t *testing.T) {
	forEachBackend(t, func(t *testing.T, r *Registry) {
		ctx := context.Background()

		require.NoError(t, r.Set(ctx, "cfg:a", map[string]any{"v": 1.0}))
		require.NoError(t, r.Set(ctx, "cfg:a", map[string]any{"v": 2.0}))
		require.NoError(t, r.Set(ctx, "cfg:b", "b"))

		ok, err := r.Contains(ctx, "cfg:a")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = r.HasObject(ctx, "cfg:a", "2")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = r.HasObject(ctx, "cfg:c", "")
		require.NoError(t, err)
		assert.False(t, ok)

		got := map[string]any{}
		_, err = r.Get(ctx, "cfg:a", &got)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"v": 2.0}, got)

		keys, err := r.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"cfg:a", "cfg:b"}, keys)

		var b string
		obj, err := r.Pop(ctx, "cfg:b", &b)
		require.NoError(t, err)
		assert.Equal(t, "b", b)
		assert.Equal(t, "1", obj.Version)
		ok, err = r.Contains(ctx, "cfg:b")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, r.Clear(ctx))
		keys, err = r.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestRegistry_Download(t *testing.T) {
	ctx := context.Background()
	backends := testBackends(t)
	src := New(zaptest.NewLogger(t), backends["s3"])
	dst := New(zaptest.NewLogger(t), backends["local"])

	_, err := src.Save(ctx, "model:a", weights{Name: "v1"}, WithMetadata(map[string]any{"owner": "ml"}))
	require.NoError(t, err)
	_, err = src.Save(ctx, "model:a", weights{Name: "v2"})
	require.NoError(t, err)

	version, err := dst.Download(ctx, src, "model:a", "1")
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	var w weights
	obj, err := dst.Load(ctx, "model:a", "1", &w)
	require.NoError(t, err)
	assert.Equal(t, "v1", w.Name)
	assert.Equal(t, "ml", obj.Metadata["owner"])

	version, err = dst.Download(ctx, src, "model:a", "", DownloadAs("model:copy"), DownloadVersion("2.0.0"))
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", version)
	w, _, err = LoadAs[weights](ctx, dst, "model:copy", "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, "v2", w.Name)

	_, err = dst.Download(ctx, src, "model:missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadAs(t *testing.T) {
	ctx := context.Background()
	b, err := backend.NewLocal(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)
	r := New(zaptest.NewLogger(t), b)

	_, err = r.Save(ctx, "model:a", weights{Name: "typed", Layers: []float64{1}})
	require.NoError(t, err)

	w, obj, err := LoadAs[weights](ctx, r, "model:a", "latest")
	require.NoError(t, err)
	assert.Equal(t, "typed", w.Name)
	assert.Equal(t, "1", obj.Version)
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, "github.com/foomo/objectregistry/pkg/registry.weights", ClassOf(weights{}))
	assert.Equal(t, "github.com/foomo/objectregistry/pkg/registry.weights", ClassOf(&weights{}))
	assert.Equal(t, "github.com/foomo/objectregistry/pkg/registry.Path", ClassOf(Path("x")))
	assert.Equal(t, "[]uint8", ClassOf([]byte("x")))
	assert.Equal(t, "string", ClassOf("x"))
	assert.Equal(t, "int", ClassOf(1))
	assert.Equal(t, "map[string]interface {}", ClassOf(map[string]any{}))
	assert.Equal(t, "nil", ClassOf(nil))
}

// slowLookupBackend holds the first materializer lookup after it has read
// the mapping until release is closed.
type slowLookupBackend struct {
	backend.Backend
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *slowLookupBackend) RegisteredMaterializer(ctx context.Context, class string) (string, bool, error) {
	id, ok, err := b.Backend.RegisteredMaterializer(ctx, class)
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return id, ok, err
}

func TestRegistry_RegisterMaterializerDuringLookup(t *testing.T) {
	ctx := context.Background()
	local, err := backend.NewLocal(zaptest.NewLogger(t), t.TempDir())
	require.NoError(t, err)
	b := &slowLookupBackend{Backend: local, entered: make(chan struct{}), release: make(chan struct{})}
	r := New(zaptest.NewLogger(t), b)
	class := ClassOf(weights{})

	require.NoError(t, local.RegisterMaterializer(ctx, class, MaterializerJSON))

	done := make(chan string)
	go func() {
		id, _, err := r.lookupMaterializer(ctx, class)
		assert.NoError(t, err)
		done <- id
	}()

	<-b.entered
	require.NoError(t, r.RegisterMaterializer(ctx, class, MaterializerYAML))
	close(b.release)
	assert.Equal(t, MaterializerJSON, <-done)

	id, ok, err := r.lookupMaterializer(ctx, class)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, MaterializerYAML, id)
}
