package backend

import (
	"context"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/foomo/objectregistry/pkg/lock"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// drivers selectable by bucket url
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
)

// BlobStorage implements Storage using gocloud.dev/blob.
// This supports GCS, Azure, local files and in-memory buckets.
type BlobStorage struct {
	bucket      *blob.Bucket
	bucketURL   string
	prefix      string
	conditioner conditioner
}

// conditioner implements the conditional trio for one kind of bucket.
type conditioner interface {
	read(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, string, error)
	write(ctx context.Context, bucket *blob.Bucket, key string, data []byte, generation string) error
	delete(ctx context.Context, bucket *blob.Bucket, key string, generation string) error
}

// NewBlobStorage creates a new blob-backed storage.
// bucketURL should be in the format "gs://bucket-name" for GCS.
// prefix is an optional path prefix for all keys.
func NewBlobStorage(ctx context.Context, bucketURL, prefix string) (*BlobStorage, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return NewBlobStorageFromBucket(bucket, bucketURL, prefix), nil
}

// NewBlobStorageFromBucket creates a new blob-backed storage from an existing bucket.
// This is useful for testing with memblob.
func NewBlobStorageFromBucket(bucket *blob.Bucket, bucketURL, prefix string) *BlobStorage {
	// Normalize prefix: ensure trailing slash if non-empty
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &BlobStorage{
		bucket:      bucket,
		bucketURL:   bucketURL,
		prefix:      prefix,
		conditioner: newConditioner(bucket, bucketURL),
	}
}

// newConditioner picks the store-side preconditions of GCS and Azure. Any
// other bucket (file://, mem://) falls back to process-local compare-and-swap
// and must not be shared between processes.
func newConditioner(bucket *blob.Bucket, bucketURL string) conditioner {
	var client *storage.Client
	if bucket.As(&client) {
		if u, err := url.Parse(bucketURL); err == nil && u.Host != "" {
			return &gcsConditioner{client: client, bucketName: u.Host}
		}
	}
	if c, ok := newAzureConditioner(bucket); ok {
		return c
	}
	return newHashConditioner(bucket, bucketURL)
}

func (b *BlobStorage) fullKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + key
}

func (b *BlobStorage) Write(ctx context.Context, key string, data []byte) error {
	return b.bucket.WriteAll(ctx, b.fullKey(key), data, nil)
}

func (b *BlobStorage) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := b.bucket.ReadAll(ctx, b.fullKey(key))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	return data, nil
}

func (b *BlobStorage) List(ctx context.Context, prefix string) ([]string, error) {
	iter := b.bucket.List(&blob.ListOptions{
		Prefix: b.fullKey(prefix),
	})

	var keys []string
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir {
			continue
		}
		key := obj.Key
		if b.prefix != "" {
			if !strings.HasPrefix(key, b.prefix) {
				continue
			}
			key = strings.TrimPrefix(key, b.prefix)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *BlobStorage) Delete(ctx context.Context, key string) error {
	err := b.bucket.Delete(ctx, b.fullKey(key))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil
		}
		return err
	}
	return nil
}

func (b *BlobStorage) ReadGeneration(ctx context.Context, key string) ([]byte, string, error) {
	return b.conditioner.read(ctx, b.bucket, b.fullKey(key))
}

func (b *BlobStorage) WriteIfGeneration(ctx context.Context, key string, data []byte, generation string) error {
	return b.conditioner.write(ctx, b.bucket, b.fullKey(key), data, generation)
}

func (b *BlobStorage) DeleteIfGeneration(ctx context.Context, key string, generation string) error {
	return b.conditioner.delete(ctx, b.bucket, b.fullKey(key), generation)
}

func (b *BlobStorage) URI(key string) string {
	base := b.bucketURL
	if u, err := url.Parse(b.bucketURL); err == nil && u.Scheme != "" {
		base = u.Scheme + "://" + u.Host + strings.TrimSuffix(u.Path, "/")
	}
	return strings.TrimSuffix(base, "/") + "/" + b.fullKey(key)
}

func (b *BlobStorage) Close() error {
	return b.bucket.Close()
}

// ------------------------------------------------------------------------------------------------
// ~ hashConditioner
// ------------------------------------------------------------------------------------------------

// hashConditioner derives generations from the content and serializes
// compare-and-swap within the process. Creates use IfNotExist so they are
// exclusive on every driver that supports it. Replace and delete are only
// safe while a single process uses the bucket.
type hashConditioner struct {
	mu *sync.Mutex
}

// hashLocks holds one mutex per bucket so that every BlobStorage of the
// process opened on it shares the same compare-and-swap section. file://
// buckets are keyed by directory, all others by bucket instance.
var hashLocks sync.Map

func newHashConditioner(bucket *blob.Bucket, bucketURL string) *hashConditioner {
	var key any = bucket
	if u, err := url.Parse(bucketURL); err == nil && u.Scheme == "file" {
		key = "file://" + u.Host + u.Path
	}
	mu, _ := hashLocks.LoadOrStore(key, &sync.Mutex{})
	return &hashConditioner{mu: mu.(*sync.Mutex)}
}

func (c *hashConditioner) read(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, string, error) {
	data, err := bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, "", os.ErrNotExist
		}
		return nil, "", err
	}
	return data, contentGeneration(data), nil
}

func (c *hashConditioner) write(ctx context.Context, bucket *blob.Bucket, key string, data []byte, generation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation == "" {
		err := bucket.WriteAll(ctx, key, data, &blob.WriterOptions{IfNotExist: true})
		if gcerrors.Code(err) == gcerrors.FailedPrecondition {
			return lock.ErrGenerationMismatch
		}
		return err
	}
	_, current, err := c.read(ctx, bucket, key)
	if os.IsNotExist(err) {
		return lock.ErrGenerationMismatch
	} else if err != nil {
		return err
	}
	if current != generation {
		return lock.ErrGenerationMismatch
	}
	return bucket.WriteAll(ctx, key, data, nil)
}

func (c *hashConditioner) delete(ctx context.Context, bucket *blob.Bucket, key string, generation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, current, err := c.read(ctx, bucket, key)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	if current != generation {
		return lock.ErrGenerationMismatch
	}
	if err := bucket.Delete(ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return err
	}
	return nil
}
