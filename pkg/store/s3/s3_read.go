// Package s3 implements the object store on Amazon S3 or S3-compatible
// storage.
//
// This file contains read operations: ranged reads, metadata lookups, and
// the error classifiers shared by all operations.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/paperdrop/paperdrop/internal/logger"
	"github.com/paperdrop/paperdrop/internal/telemetry"
	"github.com/paperdrop/paperdrop/pkg/store"
)

// isRetryableError returns true if the error is transient and the operation
// should be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Network errors are retryable
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	// Check for AWS API errors
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()

		// Throttling errors - retryable
		if code == "Throttling" || code == "ThrottlingException" ||
			code == "RequestThrottled" || code == "SlowDown" ||
			code == "ProvisionedThroughputExceededException" {
			return true
		}

		// Server errors (5xx) - retryable
		if code == "InternalError" || code == "ServiceUnavailable" ||
			code == "ServiceException" || code == "InternalServiceException" {
			return true
		}

		// Not found, access denied, invalid request - not retryable
		if code == "NoSuchKey" || code == "NotFound" ||
			code == "AccessDenied" || code == "Forbidden" ||
			code == "InvalidRange" || code == "InvalidRequest" {
			return false
		}
	}

	// Check error message for common patterns
	errStr := err.Error()
	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "500") {
		return true
	}

	return false
}

// isNotFoundError returns true if the error indicates the object doesn't exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	// Check typed errors
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	// Check AWS API error code
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" {
			return true
		}
	}

	// Check error message for 404 patterns
	errStr := err.Error()
	return strings.Contains(errStr, "StatusCode: 404") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "NoSuchKey")
}

// isInvalidRangeError returns true if the error indicates an invalid byte range.
func isInvalidRangeError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "InvalidRange"
	}

	return strings.Contains(err.Error(), "InvalidRange")
}

// ReadAt reads data from the specified offset without downloading the entire
// object.
//
// This uses S3 byte-range requests to efficiently read portions of large
// files. It follows io.ReaderAt semantics: a short read past the end of the
// object returns the bytes read with a nil error, and an offset at or beyond
// the end returns io.EOF.
//
// Retry Behavior:
// Transient errors (network issues, throttling, 5xx errors) are retried with
// exponential backoff. Not found (404) and invalid range errors are not
// retried.
func (s *S3Store) ReadAt(
	ctx context.Context,
	key string,
	p []byte,
	offset uint64,
) (n int, err error) {
	ctx, span := telemetry.StartStoreSpan(ctx, "get", key,
		telemetry.Offset(offset),
		telemetry.Length(uint32(len(p))),
		telemetry.Bucket(s.bucket))
	defer span.End()

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("ReadAt", time.Since(start), err)
			if n > 0 {
				s.metrics.RecordBytes("read", int64(n))
			}
		}
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// Empty buffer: nothing to read (follows io.ReaderAt semantics)
	if len(p) == 0 {
		return 0, nil
	}

	// Build range request: "bytes=offset-end"
	// S3 range is inclusive, so end = offset + len(p) - 1
	end := offset + uint64(len(p)) - 1
	rangeStr := fmt.Sprintf("bytes=%d-%d", offset, end)

	var result *s3.GetObjectOutput
	var lastErr error

	for attempt := 0; attempt <= int(s.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := s.calculateBackoff(attempt - 1)
			logger.Debug("ReadAt: retrying", "backoff", backoff, "attempt", attempt, "max_retries", s.retry.maxRetries, "key", key, "offset", offset)

			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, lastErr = s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Range:  aws.String(rangeStr),
		})

		if lastErr == nil {
			break
		}

		// Don't retry non-retryable errors
		if isNotFoundError(lastErr) {
			return 0, fmt.Errorf("object %s: %w", key, store.ErrNotFound)
		}

		if isInvalidRangeError(lastErr) {
			return 0, io.EOF
		}

		if !isRetryableError(lastErr) {
			break
		}

		logger.Debug("ReadAt: transient error", "attempt", attempt+1, "max_retries", s.retry.maxRetries+1, "key", key, "offset", offset, "error", lastErr)
	}

	if lastErr != nil {
		return 0, fmt.Errorf("failed to read from S3 after %d attempts: %w", s.retry.maxRetries+1, lastErr)
	}

	defer func() { _ = result.Body.Close() }()

	// Read the data
	n, err = io.ReadFull(result.Body, p)
	if err == io.ErrUnexpectedEOF {
		// The object is smaller than the requested range.
		// Return what we got and no error (like io.ReaderAt)
		return n, nil
	}

	return n, err
}

// Head returns metadata for the object at key.
//
// This performs a HEAD request to retrieve object metadata without
// downloading the content.
//
// Retry Behavior:
// Transient errors are retried with exponential backoff. Not found (404)
// errors are not retried.
func (s *S3Store) Head(ctx context.Context, key string) (info store.ObjectInfo, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("Head", time.Since(start), err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return store.ObjectInfo{}, err
	}

	var result *s3.HeadObjectOutput
	var lastErr error

	for attempt := 0; attempt <= int(s.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := s.calculateBackoff(attempt - 1)
			logger.Debug("Head: retrying", "backoff", backoff, "attempt", attempt, "max_retries", s.retry.maxRetries, "key", key)

			select {
			case <-ctx.Done():
				return store.ObjectInfo{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, lastErr = s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})

		if lastErr == nil {
			break
		}

		// Don't retry non-retryable errors
		if isNotFoundError(lastErr) {
			return store.ObjectInfo{}, fmt.Errorf("object %s: %w", key, store.ErrNotFound)
		}

		if !isRetryableError(lastErr) {
			break
		}

		logger.Debug("Head: transient error", "attempt", attempt+1, "max_retries", s.retry.maxRetries+1, "key", key, "error", lastErr)
	}

	if lastErr != nil {
		return store.ObjectInfo{}, fmt.Errorf("failed to head object after %d attempts: %w", s.retry.maxRetries+1, lastErr)
	}

	info = store.ObjectInfo{Key: key}
	if result.ContentLength != nil {
		info.Size = *result.ContentLength
	}
	if result.LastModified != nil {
		info.LastModified = *result.LastModified
	}

	return info, nil
}
