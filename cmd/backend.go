package cmd

import (
	"context"
	"strings"

	"github.com/foomo/objectregistry/pkg/backend"
	"github.com/foomo/objectregistry/pkg/registry"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// supportedBlobSchemes lists the URL schemes supported by blob storage
var supportedBlobSchemes = []string{"gs://", "azblob://", "file://", "mem://"}

// createBackend creates a backend based on the configuration
func createBackend(ctx context.Context, v *viper.Viper, l *zap.Logger) (backend.Backend, error) {
	backendType := backendFlag(v)
	l.Debug("creating backend", zap.String("type", backendType))

	switch backendType {
	case "local", "":
		dir := localDirFlag(v)
		l.Debug("using local backend", zap.String("dir", dir))
		return backend.NewLocal(l, dir)
	case "s3":
		cfg := backend.S3Config{
			Bucket:       s3BucketFlag(v),
			Prefix:       s3PrefixFlag(v),
			Endpoint:     s3EndpointFlag(v),
			Region:       s3RegionFlag(v),
			UsePathStyle: s3PathStyleFlag(v),
		}
		if cfg.Bucket == "" {
			return nil, errors.New("s3 bucket is required when backend is 's3'")
		}
		l.Debug("using s3 backend", zap.String("bucket", cfg.Bucket), zap.String("prefix", cfg.Prefix), zap.String("endpoint", cfg.Endpoint))
		return backend.NewS3(ctx, l, cfg)
	case "blob":
		bucket := blobBucketFlag(v)
		if bucket == "" {
			return nil, errors.Errorf("blob bucket URL is required when backend is 'blob' (supported schemes: %s)", strings.Join(supportedBlobSchemes, ", "))
		}
		if !isValidBlobScheme(bucket) {
			return nil, errors.Errorf("unsupported blob storage URL scheme in %q; supported schemes: %s", bucket, strings.Join(supportedBlobSchemes, ", "))
		}
		if isProcessLocalBlobScheme(bucket) {
			l.Warn("blob bucket has no store-side preconditions, locks only hold within this process",
				zap.String("bucket", bucket),
			)
		}
		l.Debug("using blob backend",
			zap.String("bucket", bucket),
			zap.String("prefix", blobPrefixFlag(v)),
			zap.String("provider", detectBlobProvider(bucket)),
		)
		return backend.NewBlob(ctx, l, bucket, blobPrefixFlag(v))
	default:
		return nil, errors.Errorf("unknown backend type: %s (supported: local, s3, blob)", backendType)
	}
}

// withRegistry opens the configured backend, runs fn and closes the backend.
func withRegistry(ctx context.Context, v *viper.Viper, fn func(r *registry.Registry) error) (err error) {
	l := zap.L()
	b, err := createBackend(ctx, v, l)
	if err != nil {
		return errors.Wrap(err, "failed to create backend")
	}
	defer func() {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "failed to close backend")
		}
	}()
	return fn(registry.New(l, b, registry.WithLockTimeout(lockTimeoutFlag(v))))
}

// isValidBlobScheme checks if the bucket URL has a supported scheme
func isValidBlobScheme(bucketURL string) bool {
	for _, scheme := range supportedBlobSchemes {
		if strings.HasPrefix(bucketURL, scheme) {
			return true
		}
	}
	return false
}

// isProcessLocalBlobScheme reports buckets whose lock records are only
// compare-and-swapped within one process
func isProcessLocalBlobScheme(bucketURL string) bool {
	return strings.HasPrefix(bucketURL, "file://") || strings.HasPrefix(bucketURL, "mem://")
}

// detectBlobProvider returns a human-readable provider name from the URL scheme
func detectBlobProvider(bucketURL string) string {
	switch {
	case strings.HasPrefix(bucketURL, "gs://"):
		return "Google Cloud Storage"
	case strings.HasPrefix(bucketURL, "azblob://"):
		return "Azure Blob Storage"
	case strings.HasPrefix(bucketURL, "file://"):
		return "Local Filesystem"
	case strings.HasPrefix(bucketURL, "mem://"):
		return "Memory"
	default:
		return "unknown"
	}
}
