// Package storage keeps raw webhook payloads in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/config"
)

// objectAPI is the subset of the S3 client the archive uses
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3PayloadArchive stores raw webhook bodies whose processing failed under
// <prefix>/<provider>/<yyyy>/<mm>/<dd>/<event>.json
type S3PayloadArchive struct {
	client objectAPI
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// ArchiveOption configures S3PayloadArchive
type ArchiveOption func(*S3PayloadArchive)

// WithLogger sets the archive logger
func WithLogger(logger *zap.Logger) ArchiveOption {
	return func(a *S3PayloadArchive) {
		a.logger = logger
	}
}

// WithClock overrides the clock used for date partitions
func WithClock(now func() time.Time) ArchiveOption {
	return func(a *S3PayloadArchive) {
		a.now = now
	}
}

// NewS3PayloadArchive creates an archive from configuration. Static
// credentials are used when both keys are set, otherwise the default AWS
// credential chain applies.
func NewS3PayloadArchive(ctx context.Context, cfg config.ArchiveConfig, opts ...ArchiveOption) (*S3PayloadArchive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normalizeEndpoint(cfg.Endpoint))
		}
	})
	return newS3PayloadArchive(client, cfg.Bucket, cfg.Prefix, opts...), nil
}

func newS3PayloadArchive(client objectAPI, bucket, prefix string, opts ...ArchiveOption) *S3PayloadArchive {
	a := &S3PayloadArchive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func normalizeEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "https://" + endpoint
}

// EnsureBucket creates the bucket if it does not exist
func (a *S3PayloadArchive) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	a.logger.Info("Creating archive bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Key returns the object key for an event received at t
func (a *S3PayloadArchive) Key(provider integration.Provider, eventID string, t time.Time) string {
	return path.Join(a.prefix, string(provider), t.UTC().Format("2006/01/02"), sanitizeKeyPart(eventID)+".json")
}

// Archive uploads body and returns its s3:// location
func (a *S3PayloadArchive) Archive(ctx context.Context, provider integration.Provider, eventID string, body []byte) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	key := a.Key(provider, eventID, a.now())

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"provider": string(provider),
			"event-id": eventID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive payload: %w", err)
	}

	location := fmt.Sprintf("s3://%s/%s", a.bucket, key)
	a.logger.Debug("Archived webhook payload", zap.String("location", location), zap.Int("bytes", len(body)))
	return location, nil
}

// sanitizeKeyPart keeps event ids from introducing extra path segments
func sanitizeKeyPart(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}

// NoopArchive discards payloads
type NoopArchive struct{}

// Archive implements the archive port without storing anything
func (NoopArchive) Archive(context.Context, integration.Provider, string, []byte) (string, error) {
	return "", nil
}
