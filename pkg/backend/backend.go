package backend

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/foomo/objectregistry/pkg/lock"
	"github.com/foomo/objectregistry/pkg/metrics"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency bounds parallel file transfers of push, pull and delete.
	DefaultConcurrency = 8

	// MaxRegistryAttempts caps the compare-and-swap loop on the materializer map.
	MaxRegistryAttempts = 10

	MetadataClass        = "class"
	MetadataMaterializer = "materializer"
	MetadataCreatedAt    = "created_at"
	MetadataPath         = "path"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Metadata is the free-form record stored next to every version.
type Metadata map[string]any

// Backend stores object content, metadata, the materializer map and lock
// records for a registry. All variants share the same semantics.
type Backend interface {
	// Push uploads a file or directory tree as the content of name@version,
	// replacing any previous content.
	Push(ctx context.Context, name, version, localPath string) error
	// Pull downloads the content of name@version into the directory localPath.
	Pull(ctx context.Context, name, version, localPath string) error
	// Delete removes the content of name@version. Deleting absent content is a no-op.
	Delete(ctx context.Context, name, version string) error

	SaveMetadata(ctx context.Context, name, version string, md Metadata) error
	FetchMetadata(ctx context.Context, name, version string) (Metadata, error)
	DeleteMetadata(ctx context.Context, name, version string) error

	// ListObjects returns the sorted names having at least one version.
	ListObjects(ctx context.Context) ([]string, error)
	// ListVersions returns the versions of name in natural order.
	ListVersions(ctx context.Context, name string) ([]string, error)
	HasObject(ctx context.Context, name, version string) (bool, error)

	RegisterMaterializer(ctx context.Context, class, materializer string) error
	RegisteredMaterializer(ctx context.Context, class string) (string, bool, error)
	RegisteredMaterializers(ctx context.Context) (map[string]string, error)

	Acquire(ctx context.Context, key, holderID string, timeout time.Duration, shared bool, opts ...lock.AcquireOption) (bool, error)
	Check(ctx context.Context, key string) (bool, string, error)
	Release(ctx context.Context, key, holderID string) error

	// URI returns the root location of the backend.
	URI() string
	Close() error
}

type (
	base struct {
		l           *zap.Logger
		kind        string
		storage     Storage
		locks       *lock.Manager
		lockOpts    []lock.Option
		concurrency int
	}
	Option func(*base)

	materializerDocument struct {
		Materializers map[string]string `json:"materializers"`
	}

	// lockStore binds lock records to the conditional storage operations.
	lockStore struct {
		b *base
	}

	localFile struct {
		rel  string
		path string
	}
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func WithConcurrency(v int) Option {
	return func(o *base) {
		if v > 0 {
			o.concurrency = v
		}
	}
}

func WithLockOptions(v ...lock.Option) Option {
	return func(o *base) {
		o.lockOpts = append(o.lockOpts, v...)
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func newBase(l *zap.Logger, kind string, storage Storage, opts ...Option) *base {
	inst := &base{
		l:           l.Named("backend." + kind),
		kind:        kind,
		storage:     storage,
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(inst)
	}

	inst.locks = lock.New(inst.l, lockStore{b: inst}, inst.lockOpts...)
	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (b *base) Push(ctx context.Context, name, version, localPath string) error {
	if err := validateObject(name, version); err != nil {
		return err
	}
	files, err := collectFiles(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to collect files from %s", localPath)
	}
	if len(files) == 0 {
		// a version without content keys could never be pulled
		return &ValidationError{Field: "content", Value: localPath, Reason: "contains no files"}
	}

	prefix := contentPrefix(name, version)
	if err := b.deletePrefix(ctx, "push", prefix); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, file := range files {
		g.Go(func() error {
			key := prefix + file.rel
			data, err := os.ReadFile(file.path)
			if err != nil {
				return b.transferError("push", key, err)
			}
			if err := b.storage.Write(gctx, key, data); err != nil {
				return b.transferError("push", key, err)
			}
			metrics.BackendTransferBytes.WithLabelValues(b.kind, "push").Add(float64(len(data)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	b.l.Debug("pushed", zap.String("name", name), zap.String("version", version), zap.Int("files", len(files)))
	return nil
}

func (b *base) Pull(ctx context.Context, name, version, localPath string) error {
	if err := validateObject(name, version); err != nil {
		return err
	}

	prefix := contentPrefix(name, version)
	keys, err := b.storage.List(ctx, prefix)
	if err != nil {
		return b.transferError("pull", prefix, err)
	}
	if len(keys) == 0 {
		return errors.Wrapf(ErrNotFound, "no content for %s@%s", name, version)
	}
	if err := os.MkdirAll(localPath, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", localPath)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			rel := filepath.FromSlash(strings.TrimPrefix(key, prefix))
			if !filepath.IsLocal(rel) {
				return b.transferError("pull", key, errors.New("key escapes destination"))
			}
			data, err := b.storage.Read(gctx, key)
			if err != nil {
				return b.transferError("pull", key, err)
			}
			dst := filepath.Join(localPath, rel)
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return errors.Wrapf(err, "failed to create %s", filepath.Dir(dst))
			}
			if err := os.WriteFile(dst, data, 0o644); err != nil {
				return errors.Wrapf(err, "failed to write %s", dst)
			}
			metrics.BackendTransferBytes.WithLabelValues(b.kind, "pull").Add(float64(len(data)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	b.l.Debug("pulled", zap.String("name", name), zap.String("version", version), zap.Int("files", len(keys)))
	return nil
}

func (b *base) Delete(ctx context.Context, name, version string) error {
	if err := validateObject(name, version); err != nil {
		return err
	}
	return b.deletePrefix(ctx, "delete", contentPrefix(name, version))
}

func (b *base) SaveMetadata(ctx context.Context, name, version string, md Metadata) error {
	if err := validateObject(name, version); err != nil {
		return err
	}
	record := make(Metadata, len(md))
	for k, v := range md {
		if k != MetadataPath {
			record[k] = v
		}
	}
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrapf(err, "failed to encode metadata of %s@%s", name, version)
	}
	key := metadataKey(name, version)
	if err := b.storage.Write(ctx, key, data); err != nil {
		return b.transferError("save_metadata", key, err)
	}
	return nil
}

func (b *base) FetchMetadata(ctx context.Context, name, version string) (Metadata, error) {
	if err := validateObject(name, version); err != nil {
		return nil, err
	}
	key := metadataKey(name, version)
	data, err := b.storage.Read(ctx, key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(ErrNotFound, "metadata of %s@%s", name, version)
	} else if err != nil {
		return nil, b.transferError("fetch_metadata", key, err)
	}
	md := Metadata{}
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, errors.Wrapf(err, "failed to decode metadata of %s@%s", name, version)
	}
	md[MetadataPath] = b.storage.URI(contentPrefix(name, version))
	return md, nil
}

func (b *base) DeleteMetadata(ctx context.Context, name, version string) error {
	if err := validateObject(name, version); err != nil {
		return err
	}
	key := metadataKey(name, version)
	if err := b.storage.Delete(ctx, key); err != nil {
		return b.transferError("delete_metadata", key, err)
	}
	return nil
}

func (b *base) ListObjects(ctx context.Context) ([]string, error) {
	keys, err := b.storage.List(ctx, metadataListPrefix(""))
	if err != nil {
		return nil, b.transferError("list", metadataKeyPrefix, err)
	}
	seen := map[string]struct{}{}
	names := []string{}
	for _, key := range keys {
		name, _, ok := parseMetadataKey(key)
		if !ok || ValidateName(name) != nil {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (b *base) ListVersions(ctx context.Context, name string) ([]string, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	prefix := metadataListPrefix(name)
	keys, err := b.storage.List(ctx, prefix)
	if err != nil {
		return nil, b.transferError("list", prefix, err)
	}
	versions := []string{}
	for _, key := range keys {
		n, version, ok := parseMetadataKey(key)
		if !ok || n != name {
			continue
		}
		versions = append(versions, version)
	}
	SortVersions(versions)
	return versions, nil
}

func (b *base) HasObject(ctx context.Context, name, version string) (bool, error) {
	if err := validateObject(name, version); err != nil {
		return false, err
	}
	versions, err := b.ListVersions(ctx, name)
	if err != nil {
		return false, err
	}
	for _, v := range versions {
		if v == version {
			return true, nil
		}
	}
	return false, nil
}

// RegisterMaterializer records the materializer for class. Concurrent
// registrations are merged through compare-and-swap on the document.
func (b *base) RegisterMaterializer(ctx context.Context, class, materializer string) error {
	if class == "" {
		return &ValidationError{Field: "class", Value: class, Reason: "must not be empty"}
	}
	if materializer == "" {
		return &ValidationError{Field: "materializer", Value: materializer, Reason: "must not be empty"}
	}

	bo := lock.DefaultBackOff()
	for attempt := 1; attempt <= MaxRegistryAttempts; attempt++ {
		doc, generation, err := b.readMaterializers(ctx)
		if err != nil {
			return err
		}
		if doc.Materializers[class] == materializer {
			return nil
		}
		doc.Materializers[class] = materializer

		data, err := json.Marshal(doc)
		if err != nil {
			return errors.Wrap(err, "failed to encode materializer map")
		}
		err = b.storage.WriteIfGeneration(ctx, registryKey, data, generation)
		if err == nil {
			b.l.Debug("registered materializer", zap.String("class", class), zap.String("materializer", materializer))
			return nil
		}
		if !errors.Is(err, lock.ErrGenerationMismatch) {
			return b.transferError("register_materializer", registryKey, err)
		}

		timer := time.NewTimer(bo.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return errors.Errorf("failed to register materializer for %q after %d attempts", class, MaxRegistryAttempts)
}

func (b *base) RegisteredMaterializer(ctx context.Context, class string) (string, bool, error) {
	doc, _, err := b.readMaterializers(ctx)
	if err != nil {
		return "", false, err
	}
	id, ok := doc.Materializers[class]
	return id, ok, nil
}

func (b *base) RegisteredMaterializers(ctx context.Context) (map[string]string, error) {
	doc, _, err := b.readMaterializers(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Materializers, nil
}

func (b *base) Acquire(ctx context.Context, key, holderID string, timeout time.Duration, shared bool, opts ...lock.AcquireOption) (bool, error) {
	if err := ValidateName(key); err != nil {
		return false, err
	}
	return b.locks.Acquire(ctx, key, holderID, timeout, shared, opts...)
}

func (b *base) Check(ctx context.Context, key string) (bool, string, error) {
	if err := ValidateName(key); err != nil {
		return false, "", err
	}
	return b.locks.Check(ctx, key)
}

func (b *base) Release(ctx context.Context, key, holderID string) error {
	if err := ValidateName(key); err != nil {
		return err
	}
	return b.locks.Release(ctx, key, holderID)
}

func (b *base) URI() string {
	return b.storage.URI("")
}

func (b *base) Close() error {
	return b.storage.Close()
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (b *base) deletePrefix(ctx context.Context, op, prefix string) error {
	keys, err := b.storage.List(ctx, prefix)
	if err != nil {
		return b.transferError(op, prefix, err)
	}

	errs := make([]error, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			if err := b.storage.Delete(gctx, key); err != nil {
				errs[i] = b.transferError(op, key, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return multierr.Combine(errs...)
}

func (b *base) readMaterializers(ctx context.Context) (*materializerDocument, string, error) {
	doc := &materializerDocument{}
	data, generation, err := b.storage.ReadGeneration(ctx, registryKey)
	if errors.Is(err, os.ErrNotExist) {
		doc.Materializers = map[string]string{}
		return doc, "", nil
	} else if err != nil {
		return nil, "", b.transferError("read_materializers", registryKey, err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, "", errors.Wrap(err, "failed to decode materializer map")
	}
	if doc.Materializers == nil {
		doc.Materializers = map[string]string{}
	}
	return doc, generation, nil
}

func (b *base) transferError(op, key string, err error) error {
	metrics.BackendTransferFailedCounter.WithLabelValues(b.kind, op).Inc()
	b.l.Warn("storage call failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
	return transferError(op, key, err)
}

// ------------------------------------------------------------------------------------------------
// ~ lockStore
// ------------------------------------------------------------------------------------------------

func (s lockStore) ReadRecord(ctx context.Context, key string) ([]byte, string, error) {
	data, generation, err := s.b.storage.ReadGeneration(ctx, lockKey(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", s.b.transferError("lock_read", lockKey(key), err)
	}
	return data, generation, err
}

func (s lockStore) WriteRecord(ctx context.Context, key string, data []byte, generation string) error {
	err := s.b.storage.WriteIfGeneration(ctx, lockKey(key), data, generation)
	if err != nil && !errors.Is(err, lock.ErrGenerationMismatch) {
		return s.b.transferError("lock_write", lockKey(key), err)
	}
	return err
}

func (s lockStore) DeleteRecord(ctx context.Context, key string, generation string) error {
	err := s.b.storage.DeleteIfGeneration(ctx, lockKey(key), generation)
	if err != nil && !errors.Is(err, lock.ErrGenerationMismatch) {
		return s.b.transferError("lock_delete", lockKey(key), err)
	}
	return err
}

// ------------------------------------------------------------------------------------------------
// ~ Private functions
// ------------------------------------------------------------------------------------------------

func validateObject(name, version string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return ValidateVersion(version)
}

// collectFiles returns the regular files below localPath with their
// slash separated path relative to it. A single file is keyed by its base name.
func collectFiles(localPath string) ([]localFile, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []localFile{{rel: filepath.Base(localPath), path: localPath}}, nil
	}

	var files []localFile
	err = filepath.WalkDir(localPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}
		files = append(files, localFile{rel: filepath.ToSlash(rel), path: path})
		return nil
	})
	return files, err
}
