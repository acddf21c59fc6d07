// Package s3 implements the object store on Amazon S3 or S3-compatible
// storage.
//
// This file contains object deletion and server-side copies.
package s3

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/paperdrop/paperdrop/internal/logger"
	"github.com/paperdrop/paperdrop/internal/telemetry"
	"github.com/paperdrop/paperdrop/pkg/store"
)

// Delete removes the object at key.
//
// S3 DeleteObject succeeds whether or not the object exists, so deleting a
// missing key is not an error. This matches the store contract: callers
// issue deletes unconditionally.
//
// Retry Behavior:
// Transient errors are retried with exponential backoff.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "delete", key,
		telemetry.Bucket(s.bucket))
	defer span.End()

	start := time.Now()
	var err error
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("Delete", time.Since(start), err)
		}
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= int(s.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := s.calculateBackoff(attempt - 1)
			logger.Debug("Delete: retrying", "backoff", backoff, "attempt", attempt, "max_retries", s.retry.maxRetries, "key", key)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		_, lastErr = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})

		if lastErr == nil {
			return nil
		}

		if !isRetryableError(lastErr) {
			break
		}

		logger.Debug("Delete: transient error", "attempt", attempt+1, "max_retries", s.retry.maxRetries+1, "key", key, "error", lastErr)
	}

	err = fmt.Errorf("failed to delete object from S3 after %d attempts: %w", s.retry.maxRetries+1, lastErr)
	return err
}

// Copy duplicates the object at srcKey to dstKey within the bucket using a
// server-side CopyObject, so the data never transits the gateway.
//
// Retry Behavior:
// Transient errors are retried with exponential backoff. A missing source
// returns an error wrapping store.ErrNotFound.
func (s *S3Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "copy", dstKey,
		telemetry.Bucket(s.bucket))
	defer span.End()

	start := time.Now()
	var err error
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("Copy", time.Since(start), err)
		}
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	// CopySource must be URL-encoded; PathEscape also encodes the slashes,
	// which S3 accepts.
	copySource := url.PathEscape(s.bucket + "/" + srcKey)

	var lastErr error
	for attempt := 0; attempt <= int(s.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := s.calculateBackoff(attempt - 1)
			logger.Debug("Copy: retrying", "backoff", backoff, "attempt", attempt, "max_retries", s.retry.maxRetries, "key", dstKey)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		_, lastErr = s.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(dstKey),
			CopySource: aws.String(copySource),
		})

		if lastErr == nil {
			return nil
		}

		if isNotFoundError(lastErr) {
			err = fmt.Errorf("object %s: %w", srcKey, store.ErrNotFound)
			return err
		}

		if !isRetryableError(lastErr) {
			break
		}

		logger.Debug("Copy: transient error", "attempt", attempt+1, "max_retries", s.retry.maxRetries+1, "key", dstKey, "error", lastErr)
	}

	err = fmt.Errorf("failed to copy object in S3 after %d attempts: %w", s.retry.maxRetries+1, lastErr)
	return err
}
