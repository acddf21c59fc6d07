// Package s3 implements the object store on Amazon S3 or S3-compatible
// storage such as MinIO and LocalStack.
//
// This file contains the main type, configuration, constructor, and client
// helper for the S3 store implementation.
package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/paperdrop/paperdrop/pkg/store"
)

// S3Store implements store.Store using Amazon S3 or S3-compatible storage.
//
// Key Design:
//   - Object keys are used exactly as given by the caller; the namespace
//     layer owns the "<user>/<folder>/<file>" layout.
//   - The bucket mirrors the virtual folder structure, so its contents stay
//     human-readable and can be inspected with standard S3 tooling.
//
// S3 Characteristics:
//   - Range reads via the HTTP Range header (used for file downloads)
//   - Single-request PutObject with explicit content length (uploads are
//     buffered in full before the PUT, so multipart is not needed)
//   - Eventually consistent listings
//
// Thread Safety:
// This implementation is safe for concurrent use by multiple goroutines.
type S3Store struct {
	client *s3.Client
	bucket string

	// Retry configuration for transient errors
	retry retryConfig

	// Metrics is optional; nil means no collection
	metrics store.Metrics
}

// retryConfig holds retry settings for S3 operations.
type retryConfig struct {
	maxRetries        uint          // Maximum number of retry attempts (default: 3)
	initialBackoff    time.Duration // Initial backoff duration (default: 100ms)
	maxBackoff        time.Duration // Maximum backoff duration (default: 2s)
	backoffMultiplier float64       // Backoff multiplier (default: 2.0)
}

// Config contains configuration for the S3 store.
type Config struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name
	Bucket string

	// Metrics is an optional metrics collector
	Metrics store.Metrics

	// MaxRetries is the maximum number of retry attempts for transient
	// errors (default: 3). Set to 0 to use the default.
	MaxRetries uint

	// InitialBackoff is the initial backoff duration before the first retry
	// (default: 100ms). Subsequent retries use exponential backoff up to
	// MaxBackoff.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration between retries (default: 2s).
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff (default: 2.0).
	// Each retry waits: min(InitialBackoff * (BackoffMultiplier ^ attempt), MaxBackoff)
	BackoffMultiplier float64
}

// NewS3Client creates an S3 client from configuration parameters.
// This is a helper for creating clients from YAML configuration.
func NewS3Client(
	ctx context.Context,
	endpoint,
	region,
	accessKeyID,
	secretAccessKey string,
	forcePathStyle bool,
) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"", // session token (empty for static credentials)
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = forcePathStyle
	})

	return client, nil
}

// New creates a new S3-backed object store.
//
// This verifies bucket access before returning. The bucket must already
// exist; this function does not create it.
func New(ctx context.Context, cfg Config) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff == 0 {
		initialBackoff = 100 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 2 * time.Second
	}
	backoffMultiplier := cfg.BackoffMultiplier
	if backoffMultiplier == 0 {
		backoffMultiplier = 2.0
	}

	return &S3Store{
		client:  cfg.Client,
		bucket:  cfg.Bucket,
		metrics: cfg.Metrics,
		retry: retryConfig{
			maxRetries:        maxRetries,
			initialBackoff:    initialBackoff,
			maxBackoff:        maxBackoff,
			backoffMultiplier: backoffMultiplier,
		},
	}, nil
}

// Bucket returns the bucket name this store operates on.
func (s *S3Store) Bucket() string {
	return s.bucket
}

// calculateBackoff returns the backoff duration for a given attempt using
// the store's retry config.
func (s *S3Store) calculateBackoff(attempt int) time.Duration {
	backoff := float64(s.retry.initialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= s.retry.backoffMultiplier
	}
	if backoff > float64(s.retry.maxBackoff) {
		backoff = float64(s.retry.maxBackoff)
	}
	return time.Duration(backoff)
}
