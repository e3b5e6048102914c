package registry

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/foomo/objectregistry/pkg/backend"
	"github.com/foomo/objectregistry/pkg/lock"
	"github.com/foomo/objectregistry/pkg/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultLockTimeout bounds how long Save waits for the exclusive lock.
	DefaultLockTimeout = time.Minute

	tracerName   = "github.com/foomo/objectregistry/pkg/registry"
	attrName     = "objectregistry.name"
	attrVersion  = "objectregistry.version"
	attrBackend  = "objectregistry.backend"
	tempDirNames = "objectregistry-*"
)

type (
	// Registry is the versioned object store applications talk to.
	Registry struct {
		l              *zap.Logger
		backend        backend.Backend
		materializers  map[string]Materializer
		lockTimeout    time.Duration
		lockTTL        time.Duration
		tempDir        string
		tracer         trace.Tracer
		now            func() time.Time
		classCache     map[string]string
		classCacheGen  uint64
		classCacheLock sync.RWMutex
		classGroup     singleflight.Group
	}
	Option func(*Registry)
)

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func New(l *zap.Logger, b backend.Backend, opts ...Option) *Registry {
	inst := &Registry{
		l:             l.Named("registry"),
		backend:       b,
		materializers: DefaultMaterializers(),
		lockTimeout:   DefaultLockTimeout,
		tracer:        otel.Tracer(tracerName),
		now:           time.Now,
		classCache:    map[string]string{},
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

// WithMaterializer adds or replaces a materializer in the catalog.
func WithMaterializer(id string, m Materializer) Option {
	return func(o *Registry) {
		o.materializers[id] = m
	}
}

func WithLockTimeout(v time.Duration) Option {
	return func(o *Registry) {
		o.lockTimeout = v
	}
}

// WithLockTTL sets the lifetime of the lock taken by Save. Defaults to the
// lock timeout.
func WithLockTTL(v time.Duration) Option {
	return func(o *Registry) {
		o.lockTTL = v
	}
}

// WithTempDir sets where content is staged; defaults to os.TempDir.
func WithTempDir(v string) Option {
	return func(o *Registry) {
		o.tempDir = v
	}
}

func WithTracer(v trace.Tracer) Option {
	return func(o *Registry) {
		o.tracer = v
	}
}

func WithClock(v func() time.Time) Option {
	return func(o *Registry) {
		o.now = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Getter
// ------------------------------------------------------------------------------------------------

func (r *Registry) Backend() backend.Backend {
	return r.backend
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Save stores value as a new version of name and returns the version.
// Without WithVersion the version is one above the highest auto version.
func (r *Registry) Save(ctx context.Context, name string, value any, opts ...SaveOption) (version string, err error) {
	o := saveOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	ctx, span := r.startSpan(ctx, "save", attribute.String(attrName, name))
	defer func() {
		span.SetAttributes(attribute.String(attrVersion, version))
		r.finish(span, "save", start, err)
	}()

	if err := backend.ValidateName(name); err != nil {
		return "", err
	}
	if o.version != "" {
		if err := validateExplicitVersion(o.version); err != nil {
			return "", err
		}
	}

	class := ClassOf(value)
	materializerID, m, err := r.materializerForSave(ctx, class, value, o.materializerID)
	if err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp(r.tempDir, tempDirNames)
	if err != nil {
		return "", errors.Wrap(err, "failed to create staging directory")
	}
	defer os.RemoveAll(dir)

	if err := m.Save(value, dir); err != nil {
		return "", errors.Wrapf(err, "failed to materialize %s with %s", name, materializerID)
	}

	md := backend.Metadata{}
	for k, v := range o.metadata {
		md[k] = v
	}
	md[backend.MetadataClass] = class
	md[backend.MetadataMaterializer] = materializerID

	return r.write(ctx, name, o.version, dir, md, true)
}

// Load restores a version of name into into and describes it. An empty
// version or "latest" loads the latest version. into may be nil to only
// fetch the description.
func (r *Registry) Load(ctx context.Context, name, version string, into any) (obj *Object, err error) {
	start := time.Now()
	ctx, span := r.startSpan(ctx, "load", attribute.String(attrName, name), attribute.String(attrVersion, version))
	defer func() {
		r.finish(span, "load", start, err)
	}()

	if err := backend.ValidateName(name); err != nil {
		return nil, err
	}
	if version, err = r.resolveVersion(ctx, name, version); err != nil {
		return nil, err
	}
	md, err := r.backend.FetchMetadata(ctx, name, version)
	if err != nil {
		return nil, err
	}
	obj = newObject(name, version, md)
	if into == nil {
		return obj, nil
	}

	m, err := r.materializerForLoad(ctx, md, into)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(r.tempDir, tempDirNames)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create staging directory")
	}
	defer os.RemoveAll(dir)

	if err := r.backend.Pull(ctx, name, version, dir); err != nil {
		return nil, err
	}
	if err := m.Load(dir, into); err != nil {
		return nil, errors.Wrapf(err, "failed to materialize %s@%s", name, version)
	}
	return obj, nil
}

// LoadAs loads a version of name into a new value of type T.
func LoadAs[T any](ctx context.Context, r *Registry, name, version string) (T, *Object, error) {
	var value T
	obj, err := r.Load(ctx, name, version, &value)
	return value, obj, err
}

// Delete removes one version of name, or every version if version is empty.
// Metadata goes first so a half deleted version is no longer listed.
func (r *Registry) Delete(ctx context.Context, name, version string) (err error) {
	start := time.Now()
	ctx, span := r.startSpan(ctx, "delete", attribute.String(attrName, name), attribute.String(attrVersion, version))
	defer func() {
		r.finish(span, "delete", start, err)
	}()

	if err := backend.ValidateName(name); err != nil {
		return err
	}

	if version == "" {
		versions, err := r.backend.ListVersions(ctx, name)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return errors.Wrapf(ErrNotFound, "object %s", name)
		}
		errs := make([]error, len(versions))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(backend.DefaultConcurrency)
		for i, v := range versions {
			g.Go(func() error {
				errs[i] = r.deleteVersion(gctx, name, v)
				return nil
			})
		}
		_ = g.Wait()
		return multierr.Combine(errs...)
	}

	if version, err = r.resolveVersion(ctx, name, version); err != nil {
		return err
	}
	ok, err := r.backend.HasObject(ctx, name, version)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(ErrNotFound, "object %s@%s", name, version)
	}
	return r.deleteVersion(ctx, name, version)
}

// Info returns the metadata of every version of name keyed by version.
func (r *Registry) Info(ctx context.Context, name string) (info map[string]backend.Metadata, err error) {
	start := time.Now()
	ctx, span := r.startSpan(ctx, "info", attribute.String(attrName, name))
	defer func() {
		r.finish(span, "info", start, err)
	}()

	if err := backend.ValidateName(name); err != nil {
		return nil, err
	}
	versions, err := r.backend.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "object %s", name)
	}

	var mu sync.Mutex
	info = make(map[string]backend.Metadata, len(versions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backend.DefaultConcurrency)
	for _, v := range versions {
		g.Go(func() error {
			md, err := r.backend.FetchMetadata(gctx, name, v)
			if errors.Is(err, ErrNotFound) {
				// deleted since listing
				return nil
			} else if err != nil {
				return err
			}
			mu.Lock()
			info[v] = md
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return info, nil
}

// InfoAll returns Info for every object.
func (r *Registry) InfoAll(ctx context.Context) (map[string]map[string]backend.Metadata, error) {
	names, err := r.backend.ListObjects(ctx)
	if err != nil {
		return nil, err
	}
	all := make(map[string]map[string]backend.Metadata, len(names))
	for _, name := range names {
		info, err := r.Info(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		all[name] = info
	}
	return all, nil
}

// HasObject reports whether the version exists. An empty version or
// "latest" asks whether any version exists.
func (r *Registry) HasObject(ctx context.Context, name, version string) (bool, error) {
	if version == "" || version == backend.LatestVersion {
		return r.Contains(ctx, name)
	}
	return r.backend.HasObject(ctx, name, version)
}

func (r *Registry) ListObjects(ctx context.Context) ([]string, error) {
	return r.backend.ListObjects(ctx)
}

func (r *Registry) ListVersions(ctx context.Context, name string) ([]string, error) {
	return r.backend.ListVersions(ctx, name)
}

// LatestVersion resolves the latest version of name. If every version is an
// auto version it is the highest number, otherwise the most recently saved.
func (r *Registry) LatestVersion(ctx context.Context, name string) (string, error) {
	if err := backend.ValidateName(name); err != nil {
		return "", err
	}
	versions, err := r.backend.ListVersions(ctx, name)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", errors.Wrapf(ErrNotFound, "object %s", name)
	}
	return r.latest(ctx, name, versions)
}

// RegisterMaterializer maps class to a materializer of the catalog for every
// process sharing the backend.
func (r *Registry) RegisterMaterializer(ctx context.Context, class, materializerID string) error {
	if _, ok := r.materializers[materializerID]; !ok {
		return errors.Wrapf(ErrUnknownMaterializer, "%q", materializerID)
	}
	if err := r.backend.RegisterMaterializer(ctx, class, materializerID); err != nil {
		return err
	}

	r.classCacheLock.Lock()
	r.classCache = map[string]string{}
	r.classCacheGen++
	r.classCacheLock.Unlock()
	r.classGroup.Forget(class)
	return nil
}

func (r *Registry) RegisteredMaterializer(ctx context.Context, class string) (string, bool, error) {
	return r.backend.RegisteredMaterializer(ctx, class)
}

func (r *Registry) RegisteredMaterializers(ctx context.Context) (map[string]string, error) {
	return r.backend.RegisteredMaterializers(ctx)
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

// write stores the staged content of dir as version of name while holding
// the exclusive lock on name. An empty version resolves to the next auto
// version under the lock.
func (r *Registry) write(ctx context.Context, name, version, dir string, md backend.Metadata, stamp bool) (_ string, err error) {
	holderID := uuid.NewString()
	var acquireOpts []lock.AcquireOption
	if r.lockTTL > 0 {
		acquireOpts = append(acquireOpts, lock.WithTTL(r.lockTTL))
	}

	ok, err := r.backend.Acquire(ctx, name, holderID, r.lockTimeout, false, acquireOpts...)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.Wrapf(ErrLockTimeout, "failed to lock %s within %s", name, r.lockTimeout)
	}
	defer func() {
		// the write must not be reported as done while the lock stays behind
		if rerr := r.backend.Release(context.WithoutCancel(ctx), name, holderID); rerr != nil {
			err = multierr.Append(err, errors.Wrapf(rerr, "failed to release lock on %s", name))
		}
	}()

	if version == "" {
		if version, err = r.nextVersion(ctx, name); err != nil {
			return "", err
		}
	}
	if _, ok := md[backend.MetadataCreatedAt]; stamp || !ok {
		md[backend.MetadataCreatedAt] = r.now().UTC().Format(time.RFC3339Nano)
	}

	if err := r.backend.Push(ctx, name, version, dir); err != nil {
		return "", err
	}
	if err := r.backend.SaveMetadata(ctx, name, version, md); err != nil {
		return "", err
	}

	r.l.Info("saved", zap.String("name", name), zap.String("version", version))
	return version, nil
}

func (r *Registry) deleteVersion(ctx context.Context, name, version string) error {
	if err := r.backend.DeleteMetadata(ctx, name, version); err != nil {
		return err
	}
	if err := r.backend.Delete(ctx, name, version); err != nil {
		return err
	}
	r.l.Info("deleted", zap.String("name", name), zap.String("version", version))
	return nil
}

func (r *Registry) resolveVersion(ctx context.Context, name, version string) (string, error) {
	if version == "" || version == backend.LatestVersion {
		return r.LatestVersion(ctx, name)
	}
	if err := backend.ValidateVersion(version); err != nil {
		return "", err
	}
	return version, nil
}

// lookupMaterializer returns the materializer registered for class. Cold
// lookups of the same class share one backend read.
func (r *Registry) lookupMaterializer(ctx context.Context, class string) (string, bool, error) {
	r.classCacheLock.RLock()
	id, ok := r.classCache[class]
	r.classCacheLock.RUnlock()
	if ok {
		return id, true, nil
	}

	v, err, _ := r.classGroup.Do(class, func() (any, error) {
		gen := r.cacheGeneration()
		id, ok, err := r.backend.RegisteredMaterializer(ctx, class)
		if err != nil || !ok {
			return "", err
		}
		r.cacheMaterializer(class, id, gen)
		return id, nil
	})
	if err != nil {
		return "", false, err
	}
	id, _ = v.(string)
	return id, id != "", nil
}

func (r *Registry) cacheGeneration() uint64 {
	r.classCacheLock.RLock()
	defer r.classCacheLock.RUnlock()
	return r.classCacheGen
}

// cacheMaterializer stores id unless RegisterMaterializer cleared the cache
// since gen was read.
func (r *Registry) cacheMaterializer(class, id string, gen uint64) {
	r.classCacheLock.Lock()
	defer r.classCacheLock.Unlock()
	if r.classCacheGen != gen {
		return
	}
	r.classCache[class] = id
}

func (r *Registry) materializerForSave(ctx context.Context, class string, value any, explicit string) (string, Materializer, error) {
	id := explicit
	if id == "" {
		registered, ok, err := r.lookupMaterializer(ctx, class)
		if err != nil {
			return "", nil, err
		}
		if ok {
			id = registered
		} else {
			gen := r.cacheGeneration()
			id = defaultMaterializerID(value)
			if err := r.backend.RegisterMaterializer(ctx, class, id); err != nil {
				return "", nil, err
			}
			r.cacheMaterializer(class, id, gen)
			r.l.Info("registered default materializer", zap.String("class", class), zap.String("materializer", id))
		}
	}
	m, ok := r.materializers[id]
	if !ok {
		return "", nil, errors.Wrapf(ErrUnknownMaterializer, "%q for class %s", id, class)
	}
	return id, m, nil
}

// materializerForLoad prefers the materializer recorded with the version and
// falls back to the class mapping.
func (r *Registry) materializerForLoad(ctx context.Context, md backend.Metadata, into any) (Materializer, error) {
	id, _ := md[backend.MetadataMaterializer].(string)
	if id == "" {
		class, _ := md[backend.MetadataClass].(string)
		if class == "" {
			class = ClassOf(into)
		}
		registered, ok, err := r.lookupMaterializer(ctx, class)
		if err != nil {
			return nil, err
		}
		if ok {
			id = registered
		} else {
			id = defaultMaterializerID(into)
		}
	}
	m, ok := r.materializers[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMaterializer, "%q", id)
	}
	return m, nil
}

func (r *Registry) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(attrBackend, r.backend.URI()))
	return r.tracer.Start(ctx, "registry."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

func (r *Registry) finish(span trace.Span, op string, start time.Time, err error) {
	result := metrics.Result(err)
	metrics.RegistryOperationCounter.WithLabelValues(op, result).Inc()
	metrics.RegistryOperationDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.l.Debug("operation failed", zap.String("op", op), zap.Error(err))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func newObject(name, version string, md backend.Metadata) *Object {
	path, _ := md[backend.MetadataPath].(string)
	return &Object{
		Name:     name,
		Version:  version,
		Metadata: md,
		Path:     path,
	}
}

func validateExplicitVersion(version string) error {
	if version == backend.LatestVersion {
		return &ValidationError{Field: "version", Value: version, Reason: "is reserved for lookups"}
	}
	return backend.ValidateVersion(version)
}
