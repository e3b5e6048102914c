package backend

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocloud.dev/blob"
)

// Blob keeps objects in a gocloud.dev bucket (gs://, azblob://, file://, mem://).
type Blob struct {
	*base
}

func NewBlob(ctx context.Context, l *zap.Logger, bucketURL, prefix string, opts ...Option) (*Blob, error) {
	storage, err := NewBlobStorage(ctx, bucketURL, prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open blob backend at %s", bucketURL)
	}
	return &Blob{base: newBase(l, "blob", storage, opts...)}, nil
}

// NewBlobFromBucket wraps an already opened bucket. bucketURL is only used
// to render content locations.
func NewBlobFromBucket(l *zap.Logger, bucket *blob.Bucket, bucketURL, prefix string, opts ...Option) *Blob {
	return &Blob{base: newBase(l, "blob", NewBlobStorageFromBucket(bucket, bucketURL, prefix), opts...)}
}

var _ Backend = (*Blob)(nil)
