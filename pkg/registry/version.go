package registry

import (
	"context"
	"strconv"
	"time"

	"github.com/foomo/objectregistry/pkg/backend"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// nextVersion returns one above the highest auto version of name, or "1".
// Explicit versions do not take part.
func (r *Registry) nextVersion(ctx context.Context, name string) (string, error) {
	versions, err := r.backend.ListVersions(ctx, name)
	if err != nil {
		return "", err
	}
	var highest uint64
	for _, v := range versions {
		if !backend.IsAutoVersion(v) {
			continue
		}
		// IsAutoVersion guarantees the value fits
		n, _ := strconv.ParseUint(v, 10, 64)
		if n > highest {
			highest = n
		}
	}
	return strconv.FormatUint(highest+1, 10), nil
}

// latest picks from versions, which are in natural order. Mixed or explicit
// versions resolve by created_at with ties going to the higher version.
func (r *Registry) latest(ctx context.Context, name string, versions []string) (string, error) {
	auto := true
	for _, v := range versions {
		if !backend.IsAutoVersion(v) {
			auto = false
			break
		}
	}
	if auto {
		return versions[len(versions)-1], nil
	}

	created := make([]time.Time, len(versions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backend.DefaultConcurrency)
	for i, v := range versions {
		g.Go(func() error {
			md, err := r.backend.FetchMetadata(gctx, name, v)
			if errors.Is(err, ErrNotFound) {
				return nil
			} else if err != nil {
				return err
			}
			if s, ok := md[backend.MetadataCreatedAt].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					created[i] = t
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	best := 0
	for i := 1; i < len(versions); i++ {
		switch {
		case created[i].After(created[best]):
			best = i
		case created[i].Equal(created[best]) && backend.CompareVersions(versions[i], versions[best]) > 0:
			best = i
		}
	}
	return versions[best], nil
}
