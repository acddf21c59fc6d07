package sftp

import (
	"sync"
	"time"

	"github.com/paperdrop/paperdrop/pkg/metrics"
	"github.com/paperdrop/paperdrop/pkg/namespace"
)

// readHandle is an open file being downloaded.
type readHandle struct {
	virtualPath string
	objectKey   string
	size        int64
	modTime     time.Time

	// readAtEOF short-circuits further reads once the end was served.
	readAtEOF bool

	// announced is set after the first successful read fired the
	// file-downloaded event.
	announced bool
}

// writeHandle is an open file being uploaded. Writes append to buf; the
// single PUT happens at close.
type writeHandle struct {
	virtualPath string
	objectKey   string
	pflags      uint32
	buf         []byte

	// nextOffset is where the next in-order write would land; used only to
	// warn about clients sending non-contiguous offsets.
	nextOffset   uint64
	offsetWarned bool

	// upload is the in-flight PUT once close started it.
	upload *upload
}

// dirHandle is an open directory listing. READDIR emits the precomputed
// entries once, then EOF.
type dirHandle struct {
	virtualPath string
	prefix      string
	entries     []namespace.Entry
	emitted     bool
}

// handleTable maps the session's opaque 32-bit handles to open state.
// Handles are allocated from a monotonic counter and never reused within a
// session.
type handleTable struct {
	mu      sync.Mutex
	next    uint32
	entries map[uint32]any
	metrics metrics.SFTPMetrics
}

func newHandleTable(m metrics.SFTPMetrics) *handleTable {
	return &handleTable{
		entries: make(map[uint32]any),
		metrics: m,
	}
}

// alloc registers state under a fresh handle.
func (t *handleTable) alloc(state any) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.next
	t.next++
	t.entries[h] = state
	if t.metrics != nil {
		t.metrics.AddOpenHandles(1)
	}
	return h
}

// get looks up a handle.
func (t *handleTable) get(h uint32) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.entries[h]
	return state, ok
}

// remove frees a handle and returns its state.
func (t *handleTable) remove(h uint32) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.entries[h]
	if ok {
		delete(t.entries, h)
		if t.metrics != nil {
			t.metrics.AddOpenHandles(-1)
		}
	}
	return state, ok
}

// clear drops every handle, returning how many were open. Called when the
// session ends; in-flight uploads keep running on their own.
func (t *handleTable) clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.entries)
	t.entries = make(map[uint32]any)
	if t.metrics != nil && n > 0 {
		t.metrics.AddOpenHandles(-n)
	}
	return n
}
