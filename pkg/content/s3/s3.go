// Package s3 implements a content store backed by Amazon S3 or any
// S3-compatible object storage.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/minikern/minikern/pkg/content"
)

// S3Store stores each stream as one object, keyed by content ID under an
// optional prefix.
//
// Object storage has no random-access writes, so WriteAt and Truncate are
// implemented as read-modify-write of the whole object. That is acceptable
// for this system's workload (teaching-kernel file sizes); large-file
// deployments should prefer the filesystem backend.
//
// Thread Safety: safe for concurrent use; concurrent writes to the same
// stream are last-write-wins, and the filesystem layer already serializes
// per-inode access through inode locks.
type S3Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// S3Config configures the S3 content store.
type S3Config struct {
	// Bucket is the bucket name. It must already exist.
	Bucket string

	// Region is the AWS region. Required unless the endpoint implies one.
	Region string

	// Endpoint optionally points at an S3-compatible service
	// (MinIO, LocalStack, Cubbit, ...). Empty means AWS.
	Endpoint string

	// AccessKeyID and SecretAccessKey optionally override the default
	// credential chain with static credentials.
	AccessKeyID     string
	SecretAccessKey string

	// KeyPrefix is prepended to every object key, e.g. "minikern/".
	KeyPrefix string
}

// NewS3Store builds the S3 client from config and verifies bucket access.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// Path-style addressing for S3-compatible services
			o.UsePathStyle = true
		}
	})

	store := &S3Store{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}

	// Fail fast on unreachable or missing buckets
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %s: %w", cfg.Bucket, err)
	}

	return store, nil
}

// key maps a content ID to its object key.
func (s *S3Store) key(id content.ID) string {
	return s.keyPrefix + string(id)
}

// get fetches the whole object; missing objects come back as empty slices.
func (s *S3Store) get(ctx context.Context, id content.ID) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get object %s: %w", id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", id, err)
	}
	return data, nil
}

// put stores the whole object.
func (s *S3Store) put(ctx context.Context, id content.ID, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", id, err)
	}
	return nil
}

// ReadAt reads up to len(p) bytes at off using an S3 range read.
func (s *S3Store) ReadAt(ctx context.Context, id content.ID, p []byte, off uint64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if len(p) == 0 {
		return 0, nil
	}

	rng := fmt.Sprintf("bytes=%d-%d", off, off+uint64(len(p))-1)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
		Range:  aws.String(rng),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return 0, nil
		}
		// An out-of-range request on an existing object reports
		// InvalidRange; treat it as reading past EOF.
		var apiErr interface{ ErrorCode() string }
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to range-read object %s: %w", id, err)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, p)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}
	if err != nil {
		return n, fmt.Errorf("failed to read object %s: %w", id, err)
	}
	return n, nil
}

// WriteAt writes p at off via read-modify-write of the whole object.
func (s *S3Store) WriteAt(ctx context.Context, id content.ID, p []byte, off uint64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	data, err := s.get(ctx, id)
	if err != nil {
		return 0, err
	}

	end := off + uint64(len(p))
	if end > uint64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[off:], p)

	if err := s.put(ctx, id, data); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Size returns the object length via HeadObject; 0 for missing objects.
func (s *S3Store) Size(ctx context.Context, id content.ID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to head object %s: %w", id, err)
	}
	return uint64(aws.ToInt64(out.ContentLength)), nil
}

// Truncate rewrites the object at the requested length.
func (s *S3Store) Truncate(ctx context.Context, id content.ID, size uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case size < uint64(len(data)):
		data = data[:size]
	case size > uint64(len(data)):
		grown := make([]byte, size)
		copy(grown, data)
		data = grown
	default:
		return nil
	}

	return s.put(ctx, id, data)
}

// Delete removes the object. S3 delete is idempotent.
func (s *S3Store) Delete(ctx context.Context, id content.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", id, err)
	}
	return nil
}

// Close is a no-op; the S3 client holds no local resources.
func (s *S3Store) Close() error {
	return nil
}
