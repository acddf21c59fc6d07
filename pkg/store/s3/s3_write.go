// Package s3 implements the object store on Amazon S3 or S3-compatible
// storage.
//
// This file contains the write path: single-request object uploads.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/paperdrop/paperdrop/internal/logger"
	"github.com/paperdrop/paperdrop/internal/telemetry"
)

// Put writes data as the object at key in a single PutObject request.
//
// The content length is set explicitly from len(data); the caller is
// expected to have the complete object in memory before calling. An empty
// contentType is omitted from the request.
//
// Retry Behavior:
// Transient errors (network issues, throttling, 5xx errors) are retried
// with exponential backoff.
//
// Context Cancellation:
// The S3 PutObject operation respects context cancellation. Callers that
// must complete an upload regardless of connection teardown should pass a
// context detached from the connection's.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, span := telemetry.StartStoreSpan(ctx, "put", key,
		telemetry.Size(uint64(len(data))),
		telemetry.Bucket(s.bucket))
	defer span.End()

	start := time.Now()
	var err error
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveOperation("Put", time.Since(start), err)
			if err == nil {
				s.metrics.RecordBytes("write", int64(len(data)))
			}
		}
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	var lastErr error
	for attempt := 0; attempt <= int(s.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := s.calculateBackoff(attempt - 1)
			logger.Debug("Put: retrying", "backoff", backoff, "attempt", attempt, "max_retries", s.retry.maxRetries, "key", key)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			// Rewind the body for the retry
			input.Body = bytes.NewReader(data)
		}

		_, lastErr = s.client.PutObject(ctx, input)

		if lastErr == nil {
			return nil
		}

		if !isRetryableError(lastErr) {
			break
		}

		logger.Debug("Put: transient error", "attempt", attempt+1, "max_retries", s.retry.maxRetries+1, "key", key, "error", lastErr)
	}

	err = fmt.Errorf("failed to put object to S3 after %d attempts: %w", s.retry.maxRetries+1, lastErr)
	return err
}
