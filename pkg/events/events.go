// Package events provides the typed event bus the gateway announces its
// activity on.
//
// Every user-visible action (login, upload, download, delete, rename,
// blocked attempts, idle detection) is published as a typed Event. Emission
// is fire-and-forget: a slow or stuck subscriber never blocks the SFTP
// request path. Each subscriber gets a bounded queue; events that do not fit
// are dropped and counted.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies the kind of event.
type Type int

const (
	// Login fires after a successful authentication.
	Login Type = iota

	// ClientError fires when a session terminates due to a channel or
	// connection error.
	ClientError

	// ClientDisconnected fires when a session ends for any reason.
	ClientDisconnected

	// FileUploaded fires after a successful PUT at CLOSE.
	FileUploaded

	// UploadError fires when an upload is rejected or the PUT fails.
	UploadError

	// FileDownloaded fires on the first successful READ of a read handle.
	FileDownloaded

	// FileDeleted fires after a successful REMOVE.
	FileDeleted

	// FileRenamed fires after a successful RENAME.
	FileRenamed

	// DirectoryCreated fires when home provisioning writes a directory
	// marker.
	DirectoryCreated

	// DirectoryDeleted is reserved for operator tooling; users can never
	// delete directories.
	DirectoryDeleted

	// DirectoryChanged fires after an upload alters a directory's content.
	DirectoryChanged

	// DirectoryCreationBlocked fires when a MKDIR is rejected.
	DirectoryCreationBlocked

	// DirectoryDeletionBlocked fires when an RMDIR is rejected.
	DirectoryDeletionBlocked

	// ProtectedDeletionBlocked fires when a REMOVE targets a protected path.
	ProtectedDeletionBlocked

	// ProtectedRenameBlocked fires when a RENAME targets a protected path.
	ProtectedRenameBlocked

	// UserIdle fires when a user's idle timer expires.
	UserIdle
)

var typeNames = map[Type]string{
	Login:                    "login",
	ClientError:              "client-error",
	ClientDisconnected:       "client-disconnected",
	FileUploaded:             "file-uploaded",
	UploadError:              "upload-error",
	FileDownloaded:           "file-downloaded",
	FileDeleted:              "file-deleted",
	FileRenamed:              "file-renamed",
	DirectoryCreated:         "directory-created",
	DirectoryDeleted:         "directory-deleted",
	DirectoryChanged:         "directory-changed",
	DirectoryCreationBlocked: "directory-creation-blocked",
	DirectoryDeletionBlocked: "directory-deletion-blocked",
	ProtectedDeletionBlocked: "protected-directory-deletion-blocked",
	ProtectedRenameBlocked:   "protected-directory-rename-blocked",
	UserIdle:                 "user-idle",
}

// String returns the wire/log name of the event type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is a single gateway event.
type Event struct {
	// Type is the event kind.
	Type Type

	// Time is when the event was emitted.
	Time time.Time

	// User is the authenticated username, when known.
	User string

	// Path is the virtual path the event refers to, when applicable.
	Path string

	// Key is the object-store key the event refers to, when applicable.
	Key string

	// NewPath is the rename destination for FileRenamed.
	NewPath string

	// Size is the byte count for uploads and downloads.
	Size int64

	// Err carries the cause for error events. May be nil.
	Err error
}

// Subscriber receives events. HandleEvent is called from a dedicated
// goroutine per subscriber, so implementations may block without affecting
// the request path; blocking only risks dropping events once the
// subscriber's queue fills.
type Subscriber interface {
	HandleEvent(ev Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ev Event)

// HandleEvent calls f(ev).
func (f SubscriberFunc) HandleEvent(ev Event) { f(ev) }

// defaultQueueSize is the per-subscriber queue depth.
const defaultQueueSize = 256

// Bus fans events out to subscribers without blocking publishers.
//
// The zero value is not usable; create with NewBus. A nil *Bus is valid:
// all publish methods are no-ops, so components can hold an optional bus
// without nil checks at every call site.
type Bus struct {
	mu      sync.RWMutex
	subs    []*subscription
	closed  bool
	dropped atomic.Uint64
}

type subscription struct {
	ch   chan Event
	done chan struct{}
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers sub and starts its delivery goroutine. Events
// published before Subscribe returns are not delivered to sub.
func (b *Bus) Subscribe(sub Subscriber) {
	if b == nil {
		return
	}

	s := &subscription{
		ch:   make(chan Event, defaultQueueSize),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	go func() {
		defer close(s.done)
		for ev := range s.ch {
			sub.HandleEvent(ev)
		}
	}()
}

// Publish delivers ev to every subscriber's queue, stamping ev.Time if
// unset. Publish never blocks: if a subscriber's queue is full the event is
// dropped for that subscriber and counted.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	// The read lock spans the sends so Close cannot close a queue channel
	// while a send to it is in flight.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the total number of events dropped across all subscribers.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// Close stops delivery and waits for subscriber goroutines to drain their
// queues. Publish after Close is a no-op.
func (b *Bus) Close() {
	if b == nil {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	// Closing under the write lock excludes in-flight Publish sends.
	for _, s := range subs {
		close(s.ch)
	}
	b.mu.Unlock()

	for _, s := range subs {
		<-s.done
	}
}
