package registry

import (
	"context"
	"os"
	"time"

	"github.com/foomo/objectregistry/pkg/backend"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

// Set saves value as the next auto version of name.
func (r *Registry) Set(ctx context.Context, name string, value any) error {
	_, err := r.Save(ctx, name, value)
	return err
}

// Get loads the latest version of name into into.
func (r *Registry) Get(ctx context.Context, name string, into any) (*Object, error) {
	return r.Load(ctx, name, backend.LatestVersion, into)
}

// Contains reports whether name has at least one version.
func (r *Registry) Contains(ctx context.Context, name string) (bool, error) {
	versions, err := r.backend.ListVersions(ctx, name)
	if err != nil {
		return false, err
	}
	return len(versions) > 0, nil
}

// Keys returns the names of all objects.
func (r *Registry) Keys(ctx context.Context) ([]string, error) {
	return r.backend.ListObjects(ctx)
}

// Pop loads the latest version of name into into and deletes every version.
func (r *Registry) Pop(ctx context.Context, name string, into any) (*Object, error) {
	obj, err := r.Get(ctx, name, into)
	if err != nil {
		return nil, err
	}
	if err := r.Delete(ctx, name, ""); err != nil {
		return nil, err
	}
	return obj, nil
}

// Clear deletes every version of every object.
func (r *Registry) Clear(ctx context.Context) error {
	names, err := r.backend.ListObjects(ctx)
	if err != nil {
		return err
	}
	var errs error
	for _, name := range names {
		if err := r.Delete(ctx, name, ""); err != nil && !errors.Is(err, ErrNotFound) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Download copies one version of name from src into r, keeping its content
// and metadata. The copy keeps name and version unless DownloadAs or
// DownloadVersion say otherwise.
func (r *Registry) Download(ctx context.Context, src *Registry, name, version string, opts ...DownloadOption) (target string, err error) {
	o := downloadOptions{name: name}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	ctx, span := r.startSpan(ctx, "download", attribute.String(attrName, o.name))
	defer func() {
		span.SetAttributes(attribute.String(attrVersion, target))
		r.finish(span, "download", start, err)
	}()

	if err := backend.ValidateName(name); err != nil {
		return "", err
	}
	if err := backend.ValidateName(o.name); err != nil {
		return "", err
	}
	if o.version != "" {
		if err := validateExplicitVersion(o.version); err != nil {
			return "", err
		}
	}

	if version, err = src.resolveVersion(ctx, name, version); err != nil {
		return "", err
	}
	md, err := src.backend.FetchMetadata(ctx, name, version)
	if err != nil {
		return "", err
	}
	delete(md, backend.MetadataPath)

	dir, err := os.MkdirTemp(r.tempDir, tempDirNames)
	if err != nil {
		return "", errors.Wrap(err, "failed to create staging directory")
	}
	defer os.RemoveAll(dir)

	if err := src.backend.Pull(ctx, name, version, dir); err != nil {
		return "", err
	}

	if o.version == "" {
		o.version = version
	}
	return r.write(ctx, o.name, o.version, dir, md, false)
}
