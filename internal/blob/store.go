package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/clipforge/clipforge/pkg/logger"
)

var log = logger.Get("BlobStore")

// ACL controls the canned access policy applied to uploaded objects.
// Originals and intermediates are private; published bundles (DASH,
// ASR, vision artifacts) are public-read.
type ACL string

const (
	ACLPrivate    ACL = "private"
	ACLPublicRead ACL = "public-read"
)

type Config struct {
	Region      string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	Bucket      string `yaml:"bucket" env:"S3_BUCKET" env-required:"true"`
	AccessKey   string `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey   string `yaml:"secret_key" env:"S3_SECRET_KEY"`
	EndpointURL string `yaml:"endpoint" env:"S3_ENDPOINT"`
}

// Store is the object-storage adapter: an opaque key->bytes store
// with the narrow surface the pipeline requires.
type Store interface {
	Download(ctx context.Context, key string, destPath string) error
	Upload(ctx context.Context, localPath string, key string, acl ACL) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

type s3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewStore constructs an S3-backed store using the config provided. A
// custom endpoint (e.g. MinIO, R2) forces path-style addressing.
func NewStore(ctx context.Context, cfg Config) (*s3Store, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey, cfg.SecretKey, "",
			)),
			awsconfig.WithRegion(cfg.Region),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %s: %w", cfg.Bucket, err)
	}

	log.Emit(logger.SUCCESS, "Object storage connection complete (bucket %s)\n", cfg.Bucket)
	return &s3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// Download fetches the object at the key provided and writes it to
// destPath, creating any missing parent directories.
func (store *s3Store) Download(ctx context.Context, key string, destPath string) error {
	out, err := store.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to fetch object %s: %w", key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create destination dir for %s: %w", destPath, err)
	}

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", destPath, err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, out.Body); err != nil {
		return fmt.Errorf("failed to write object %s to %s: %w", key, destPath, err)
	}

	return nil
}

// Upload streams the local file to the key provided, overwriting any
// existing object. Overwrites are deliberate: re-run tasks re-upload
// under the same key.
func (store *s3Store) Upload(ctx context.Context, localPath string, key string, acl ACL) error {
	source, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s for upload: %w", localPath, err)
	}
	defer source.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
		Body:   source,
	}
	if acl == ACLPublicRead {
		input.ACL = types.ObjectCannedACLPublicRead
	}

	if _, err := store.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", localPath, key, err)
	}

	return nil
}

func (store *s3Store) Delete(ctx context.Context, key string) error {
	_, err := store.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}

	return nil
}

func (store *s3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := store.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	return true, nil
}

// DeletePrefix removes every object under the prefix provided. Used
// when a file is deleted to reclaim its derived artifact bundles.
func (store *s3Store) DeletePrefix(ctx context.Context, prefix string) error {
	paginator := s3.NewListObjectsV2Paginator(store.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(store.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		identifiers := make([]types.ObjectIdentifier, len(page.Contents))
		for i, object := range page.Contents {
			identifiers[i] = types.ObjectIdentifier{Key: object.Key}
		}

		_, err = store.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(store.bucket),
			Delete: &types.Delete{Objects: identifiers},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects under %s: %w", prefix, err)
		}
	}

	return nil
}

// SignedURL generates a presigned GET URL for the key provided.
func (store *s3Store) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	request, err := store.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}

	return request.URL, nil
}

// Open returns a streaming reader over the object at the key provided.
// Used by the HTTP layer to serve file output without a temp file.
func (store *s3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := store.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch object %s: %w", key, err)
	}

	return out.Body, nil
}
