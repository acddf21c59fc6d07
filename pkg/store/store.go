// Package store defines the object store abstraction the gateway is built on.
//
// The backing store holds flat bucket/key blobs with no native directories.
// Directory structure is inferred from key prefixes and marker objects by the
// namespace layer; this package only knows about keys, bytes, and listings.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested object does not exist in the store.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a single object in the store.
type ObjectInfo struct {
	// Key is the full object key within the bucket.
	Key string

	// Size is the object size in bytes.
	Size int64

	// LastModified is the time the object was last written.
	LastModified time.Time
}

// Store is the minimal object store surface the gateway needs.
//
// Implementations must be safe for concurrent use. The store is eventually
// consistent: a LIST issued immediately after a PUT may not include the new
// object yet, and callers are expected to tolerate that.
type Store interface {
	// Head returns metadata for the object at key.
	// Returns an error wrapping ErrNotFound if the object does not exist.
	Head(ctx context.Context, key string) (ObjectInfo, error)

	// ReadAt reads len(p) bytes from the object at key starting at offset,
	// using a ranged request. It follows io.ReaderAt semantics: a short read
	// past the end of the object returns the bytes read with a nil error,
	// and an offset at or beyond the end returns io.EOF.
	ReadAt(ctx context.Context, key string, p []byte, offset uint64) (int, error)

	// Put writes data as the object at key in a single request with an
	// explicit content length. An empty contentType is omitted.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Delete removes the object at key. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Copy duplicates the object at srcKey to dstKey within the bucket.
	Copy(ctx context.Context, srcKey, dstKey string) error

	// List returns all objects whose keys begin with prefix, in key order.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Metrics collects operation-level measurements from store implementations.
//
// A nil Metrics is valid and means no collection; implementations must
// nil-check before recording.
type Metrics interface {
	// ObserveOperation records a store operation with its duration and outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes transferred for read/write operations.
	RecordBytes(operation string, bytes int64)
}
