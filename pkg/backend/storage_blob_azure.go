package backend

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	azblobblob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/foomo/objectregistry/pkg/lock"
	"github.com/pkg/errors"
	"gocloud.dev/blob"
)

// azureConditioner uses blob ETags with If-Match / If-None-Match access
// conditions, evaluated by the Azure service.
type azureConditioner struct {
	client *container.Client
}

func newAzureConditioner(bucket *blob.Bucket) (*azureConditioner, bool) {
	var client *container.Client
	if !bucket.As(&client) || client == nil {
		return nil, false
	}
	return &azureConditioner{client: client}, true
}

func (c *azureConditioner) read(ctx context.Context, _ *blob.Bucket, key string) ([]byte, string, error) {
	resp, err := c.client.NewBlobClient(key).DownloadStream(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, "", os.ErrNotExist
		}
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	if resp.ETag == nil {
		return nil, "", errors.Errorf("missing etag for %q", key)
	}
	return data, string(*resp.ETag), nil
}

func (c *azureConditioner) write(ctx context.Context, _ *blob.Bucket, key string, data []byte, generation string) error {
	_, err := c.client.NewBlockBlobClient(key).Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), &blockblob.UploadOptions{
		AccessConditions: azureConditions(generation),
	})
	if bloberror.HasCode(err, bloberror.ConditionNotMet, bloberror.BlobAlreadyExists, bloberror.BlobNotFound) {
		return lock.ErrGenerationMismatch
	}
	return err
}

func (c *azureConditioner) delete(ctx context.Context, _ *blob.Bucket, key string, generation string) error {
	_, err := c.client.NewBlobClient(key).Delete(ctx, &azblobblob.DeleteOptions{
		AccessConditions: azureConditions(generation),
	})
	switch {
	case err == nil, bloberror.HasCode(err, bloberror.BlobNotFound):
		return nil
	case bloberror.HasCode(err, bloberror.ConditionNotMet):
		return lock.ErrGenerationMismatch
	default:
		return err
	}
}

// azureConditions maps an empty generation to "must not exist".
func azureConditions(generation string) *azblobblob.AccessConditions {
	conds := &azblobblob.ModifiedAccessConditions{}
	if generation == "" {
		etag := azcore.ETagAny
		conds.IfNoneMatch = &etag
	} else {
		etag := azcore.ETag(generation)
		conds.IfMatch = &etag
	}
	return &azblobblob.AccessConditions{ModifiedAccessConditions: conds}
}
