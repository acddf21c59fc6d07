// Package memory provides an in-memory implementation of the store.Store
// interface. This implementation is for testing only - all data is lost on
// restart.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/paperdrop/paperdrop/pkg/store"
)

// memObject holds a single stored object.
type memObject struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// MemoryStore is an in-memory implementation of store.Store.
// It is thread-safe but ephemeral - all data is lost on restart.
// Use this for testing and development only.
type MemoryStore struct {
	mu sync.RWMutex

	objects map[string]memObject

	// puts records every Put key in arrival order
	puts []string

	// putErr, when set, is returned by all subsequent Put calls
	putErr error

	// putDelay, when set, makes Put block before committing
	putDelay time.Duration

	// hidden maps keys to the number of remaining List calls that must not
	// return them, simulating an eventually consistent listing
	hidden map[string]int
}

// New creates a new in-memory object store.
func New() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memObject),
		hidden:  make(map[string]int),
	}
}

// Head returns metadata for the object at key.
func (m *MemoryStore) Head(ctx context.Context, key string) (store.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return store.ObjectInfo{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return store.ObjectInfo{}, fmt.Errorf("object %s: %w", key, store.ErrNotFound)
	}

	return store.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.modTime,
	}, nil
}

// ReadAt reads len(p) bytes from the object at key starting at offset.
// It follows io.ReaderAt semantics, matching the S3 implementation: a short
// read past the end returns the bytes read with a nil error, and an offset
// at or beyond the end returns io.EOF.
func (m *MemoryStore) ReadAt(ctx context.Context, key string, p []byte, offset uint64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if len(p) == 0 {
		return 0, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return 0, fmt.Errorf("object %s: %w", key, store.ErrNotFound)
	}

	if offset >= uint64(len(obj.data)) {
		return 0, io.EOF
	}

	n := copy(p, obj.data[offset:])
	return n, nil
}

// Put writes data as the object at key.
func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delay := m.putDelay
	failErr := m.putErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if failErr != nil {
		return failErr
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = memObject{
		data:        stored,
		contentType: contentType,
		modTime:     time.Now(),
	}
	m.puts = append(m.puts, key)
	return nil
}

// Delete removes the object at key. Deleting a missing object is not an
// error, matching S3 semantics.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

// Copy duplicates the object at srcKey to dstKey.
func (m *MemoryStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.objects[srcKey]
	if !ok {
		return fmt.Errorf("object %s: %w", srcKey, store.ErrNotFound)
	}

	data := make([]byte, len(src.data))
	copy(data, src.data)

	m.objects[dstKey] = memObject{
		data:        data,
		contentType: src.contentType,
		modTime:     time.Now(),
	}
	return nil
}

// List returns all objects whose keys begin with prefix, in key order.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var infos []store.ObjectInfo
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if remaining, ok := m.hidden[key]; ok && remaining > 0 {
			m.hidden[key] = remaining - 1
			if m.hidden[key] == 0 {
				delete(m.hidden, key)
			}
			continue
		}
		infos = append(infos, store.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.modTime,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// ============================================================================
// Test hooks
// ============================================================================

// Object returns the stored bytes for key, or false if absent.
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return data, true
}

// ContentType returns the stored content type for key.
func (m *MemoryStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.objects[key].contentType
}

// PutKeys returns every Put key in arrival order.
func (m *MemoryStore) PutKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, len(m.puts))
	copy(keys, m.puts)
	return keys
}

// SetPutError makes all subsequent Put calls fail with err.
// Pass nil to clear.
func (m *MemoryStore) SetPutError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.putErr = err
}

// SetPutDelay makes all subsequent Put calls block for d before committing.
func (m *MemoryStore) SetPutDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.putDelay = d
}

// HideFromList hides key from the next n List calls, simulating an
// eventually consistent listing.
func (m *MemoryStore) HideFromList(key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hidden[key] = n
}
