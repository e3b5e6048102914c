package backend

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/foomo/objectregistry/pkg/lock"
	"github.com/pkg/errors"
)

// S3Config selects an S3-compatible bucket. Empty credentials fall back to
// the default AWS credential chain.
type S3Config struct {
	Bucket          string
	Prefix          string
	Endpoint        string
	Region          string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

// S3Storage implements Storage on an S3-compatible object store. Object
// ETags serve as generations with If-Match / If-None-Match preconditions.
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Storage creates a new S3-backed storage from the default AWS config
// chain, overridden by cfg.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("missing s3 bucket")
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StorageFromClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3StorageFromClient creates a new S3-backed storage from an existing client.
func NewS3StorageFromClient(client *s3.Client, bucket, prefix string) *S3Storage {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Storage{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

func (s *S3Storage) fullKey(key string) string {
	return s.prefix + key
}

func (s *S3Storage) Write(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *S3Storage) Read(ctx context.Context, key string) ([]byte, error) {
	data, _, err := s.ReadGeneration(ctx, key)
	return data, err
}

func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.fullKey(prefix)),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasPrefix(key, s.prefix) {
				continue
			}
			keys = append(keys, strings.TrimPrefix(key, s.prefix))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if isS3NotFound(err) {
		return nil
	}
	return err
}

func (s *S3Storage) ReadGeneration(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, "", os.ErrNotExist
		}
		return nil, "", err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", err
	}
	return data, aws.ToString(out.ETag), nil
}

func (s *S3Storage) WriteIfGeneration(ctx context.Context, key string, data []byte, generation string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
		Body:   bytes.NewReader(data),
	}
	if generation == "" {
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(generation)
	}
	_, err := s.client.PutObject(ctx, input)
	if isS3PreconditionFailed(err) || (generation != "" && isS3NotFound(err)) {
		return lock.ErrGenerationMismatch
	}
	return err
}

func (s *S3Storage) DeleteIfGeneration(ctx context.Context, key string, generation string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:  aws.String(s.bucket),
		Key:     aws.String(s.fullKey(key)),
		IfMatch: aws.String(generation),
	})
	switch {
	case err == nil, isS3NotFound(err):
		return nil
	case isS3PreconditionFailed(err):
		return lock.ErrGenerationMismatch
	default:
		return err
	}
}

func (s *S3Storage) URI(key string) string {
	return "s3://" + s.bucket + "/" + s.fullKey(key)
}

func (s *S3Storage) Close() error {
	return nil
}

func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func isS3PreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
