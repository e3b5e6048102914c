package backend

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// S3 keeps objects in an S3-compatible bucket.
type S3 struct {
	*base
	storage *S3Storage
}

func NewS3(ctx context.Context, l *zap.Logger, cfg S3Config, opts ...Option) (*S3, error) {
	storage, err := NewS3Storage(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open s3 backend")
	}
	return newS3(l, storage, opts...), nil
}

func NewS3FromClient(l *zap.Logger, client *s3.Client, bucket, prefix string, opts ...Option) *S3 {
	return newS3(l, NewS3StorageFromClient(client, bucket, prefix), opts...)
}

func newS3(l *zap.Logger, storage *S3Storage, opts ...Option) *S3 {
	return &S3{
		base:    newBase(l, "s3", storage, opts...),
		storage: storage,
	}
}

func (b *S3) Bucket() string {
	return b.storage.bucket
}

var _ Backend = (*S3)(nil)
