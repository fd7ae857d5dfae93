package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

// S3Storage implements ObjectStorage for AWS S3. Containers map to buckets.
type S3Storage struct {
	client *s3.Client
}

// S3Config holds S3 configuration.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Storage creates a new S3 storage adapter.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	var opts []func(*config.LoadOptions) error

	opts = append(opts, config.WithRegion(cfg.Region))

	// Use explicit credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Storage{client: s3.NewFromConfig(awsCfg, clientOpts...)}, nil
}

var _ output.ObjectStorage = (*S3Storage)(nil)

// List implements output.BlobLister.
func (s *S3Storage) List(ctx context.Context, bucket string, opts output.ListOptions) ([]output.StorageObject, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(opts.Prefix),
	}
	if opts.Delimiter != "" {
		input.Delimiter = aws.String(opts.Delimiter)
	}

	var objects []output.StorageObject
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translateS3Error(err)
		}

		entries := make([]output.StorageObject, 0, len(page.CommonPrefixes)+len(page.Contents))
		for _, p := range page.CommonPrefixes {
			entries = append(entries, output.StorageObject{Key: aws.ToString(p.Prefix), IsPrefix: true})
		}
		for _, obj := range page.Contents {
			entries = append(entries, output.StorageObject{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified).Unix(),
				ETag:         strings.Trim(aws.ToString(obj.ETag), "\""),
			})
		}
		sortByKey(entries)
		objects = append(objects, entries...)
	}
	return objects, nil
}

// Properties implements output.BlobFetcher.
func (s *S3Storage) Properties(ctx context.Context, bucket, key string) (output.StorageObject, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return output.StorageObject{}, translateS3Error(err)
	}
	return output.StorageObject{
		Key:          key,
		Size:         aws.ToInt64(head.ContentLength),
		LastModified: aws.ToTime(head.LastModified).Unix(),
		ETag:         strings.Trim(aws.ToString(head.ETag), "\""),
	}, nil
}

// Download implements output.BlobFetcher.
func (s *S3Storage) Download(ctx context.Context, bucket, key, dest string) error {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return translateS3Error(err)
	}
	defer func() { _ = resp.Body.Close() }()

	f, err := os.Create(dest) //#nosec G304 -- dest is a controlled local path
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// translateS3Error marks missing buckets and keys as domain.ErrNotFound.
func translateS3Error(err error) error {
	var noBucket *types.NoSuchBucket
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noBucket) || errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	return err
}
