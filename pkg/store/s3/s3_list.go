// Package s3 implements the object store on Amazon S3 or S3-compatible
// storage.
//
// This file contains prefix listings.
package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/paperdrop/paperdrop/internal/logger"
	"github.com/paperdrop/paperdrop/internal/telemetry"
	"github.com/paperdrop/paperdrop/pkg/store"
)

// List returns all objects whose keys begin with prefix, in key order.
//
// Listings are paginated internally; the full result set is accumulated
// before returning. S3 returns keys in lexicographic order, which the
// namespace layer relies on when folding keys into directory views.
//
// Retry Behavior:
// Each page fetch retries transient errors with exponential backoff.
func (s *S3Store) List(ctx context.Context, prefix string) (objects []store.ObjectInfo, err error) {
	ctx, span := telemetry.StartStoreSpan(ctx, "list", prefix,
		telemetry.Prefix(prefix),
		telemetry.Bucket(s.bucket))
	defer span.End()

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("List", time.Since(start), err)
		}
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		var page *s3.ListObjectsV2Output
		var lastErr error

		for attempt := 0; attempt <= int(s.retry.maxRetries); attempt++ {
			if attempt > 0 {
				backoff := s.calculateBackoff(attempt - 1)
				logger.Debug("List: retrying", "backoff", backoff, "attempt", attempt, "max_retries", s.retry.maxRetries, "prefix", prefix)

				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
			}

			page, lastErr = paginator.NextPage(ctx)

			if lastErr == nil {
				break
			}

			if !isRetryableError(lastErr) {
				break
			}

			logger.Debug("List: transient error", "attempt", attempt+1, "max_retries", s.retry.maxRetries+1, "prefix", prefix, "error", lastErr)
		}

		if lastErr != nil {
			return nil, fmt.Errorf("failed to list objects after %d attempts: %w", s.retry.maxRetries+1, lastErr)
		}

		for _, obj := range page.Contents {
			info := store.ObjectInfo{}
			if obj.Key != nil {
				info.Key = *obj.Key
			}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			objects = append(objects, info)
		}
	}

	return objects, nil
}
