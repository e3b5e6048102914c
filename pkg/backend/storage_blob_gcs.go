package backend

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"

	"cloud.google.com/go/storage"
	"github.com/foomo/objectregistry/pkg/lock"
	"github.com/pkg/errors"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
	"google.golang.org/api/googleapi"
)

// gcsConditioner uses the native object generation of Google Cloud Storage
// as precondition, which makes the conditional trio safe across processes.
type gcsConditioner struct {
	client     *storage.Client
	bucketName string
}

func (c *gcsConditioner) read(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, string, error) {
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, "", os.ErrNotExist
		}
		return nil, "", err
	}
	defer r.Close()

	var gr *storage.Reader
	if !r.As(&gr) {
		return nil, "", errors.Errorf("failed to access gcs reader for %q", key)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", err
	}
	return data, strconv.FormatInt(gr.Attrs.Generation, 10), nil
}

func (c *gcsConditioner) write(ctx context.Context, bucket *blob.Bucket, key string, data []byte, generation string) error {
	conds, err := c.conditions(generation)
	if err != nil {
		return err
	}
	err = bucket.WriteAll(ctx, key, data, &blob.WriterOptions{
		BeforeWrite: func(asFunc func(any) bool) error {
			var obj **storage.ObjectHandle
			if !asFunc(&obj) {
				return errors.New("failed to access gcs object handle")
			}
			*obj = (*obj).If(conds)
			return nil
		},
	})
	if isPreconditionFailed(err) {
		return lock.ErrGenerationMismatch
	}
	return err
}

func (c *gcsConditioner) delete(ctx context.Context, _ *blob.Bucket, key string, generation string) error {
	conds, err := c.conditions(generation)
	if err != nil {
		return err
	}
	err = c.client.Bucket(c.bucketName).Object(key).If(conds).Delete(ctx)
	switch {
	case err == nil, errors.Is(err, storage.ErrObjectNotExist):
		return nil
	case isPreconditionFailed(err):
		return lock.ErrGenerationMismatch
	default:
		return err
	}
}

func (c *gcsConditioner) conditions(generation string) (storage.Conditions, error) {
	if generation == "" {
		return storage.Conditions{DoesNotExist: true}, nil
	}
	g, err := strconv.ParseInt(generation, 10, 64)
	if err != nil {
		return storage.Conditions{}, lock.ErrGenerationMismatch
	}
	return storage.Conditions{GenerationMatch: g}, nil
}

func isPreconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	if gcerrors.Code(err) == gcerrors.FailedPrecondition {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
