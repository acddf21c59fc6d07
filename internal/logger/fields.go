package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that logs remain
// queryable in aggregation systems.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Protocol & Request
	// ========================================================================
	KeyVerb      = "verb"       // SFTP request name: OPEN, READ, CLOSE, etc.
	KeyRequestID = "request_id" // SFTP request identifier
	KeyHandle    = "handle"     // File or directory handle
	KeyStatus    = "status"     // SFTP status code
	KeyStatusMsg = "status_msg" // Human-readable status message

	// ========================================================================
	// Virtual Filesystem
	// ========================================================================
	KeyPath     = "path"     // Virtual path as seen by the client
	KeyOldPath  = "old_path" // Source path for rename operations
	KeyNewPath  = "new_path" // Destination path for rename operations
	KeyFilename = "filename" // File or directory name (basename)
	KeySize     = "size"     // File size in bytes
	KeyMode     = "mode"     // File mode/permissions

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyOffset       = "offset"        // File offset for read/write operations
	KeyLength       = "length"        // Byte count requested
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written
	KeyEOF          = "eof"           // End of file indicator

	// ========================================================================
	// Client & Session
	// ========================================================================
	KeyUser      = "user"       // Authenticated username
	KeyRemote    = "remote"     // Client remote address
	KeySessionID = "session_id" // Session identifier

	// ========================================================================
	// Object Store
	// ========================================================================
	KeyBucket     = "bucket"      // Bucket name
	KeyKey        = "key"         // Object key
	KeyPrefix     = "prefix"      // List prefix
	KeyRegion     = "region"      // Object store region
	KeyEndpoint   = "endpoint"    // Object store endpoint
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Events
	// ========================================================================
	KeyEvent      = "event"      // Event name
	KeySubscriber = "subscriber" // Event subscriber name
	KeyDropped    = "dropped"    // Number of dropped events

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyEntries    = "entries"     // Number of directory entries
	KeyProtocol   = "protocol"    // Adapter protocol name
	KeyPort       = "port"        // Listener port
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Verb returns a slog.Attr for an SFTP request name
func Verb(name string) slog.Attr {
	return slog.String(KeyVerb, name)
}

// RequestID returns a slog.Attr for an SFTP request identifier
func RequestID(id uint32) slog.Attr {
	return slog.Any(KeyRequestID, id)
}

// Handle returns a slog.Attr for a file handle (formatted as hex)
func Handle(h []byte) slog.Attr {
	return slog.String(KeyHandle, fmt.Sprintf("%x", h))
}

// Status returns a slog.Attr for an SFTP status code
func Status(code uint32) slog.Attr {
	return slog.Any(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for a human-readable status message
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// Path returns a slog.Attr for a virtual path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// OldPath returns a slog.Attr for the source path in rename operations
func OldPath(p string) slog.Attr {
	return slog.String(KeyOldPath, p)
}

// NewPath returns a slog.Attr for the destination path in rename operations
func NewPath(p string) slog.Attr {
	return slog.String(KeyNewPath, p)
}

// Filename returns a slog.Attr for a filename (basename)
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// Size returns a slog.Attr for a file size
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// Mode returns a slog.Attr for a file mode
func Mode(m uint32) slog.Attr {
	return slog.Any(KeyMode, m)
}

// Offset returns a slog.Attr for a file offset
func Offset(off uint64) slog.Attr {
	return slog.Uint64(KeyOffset, off)
}

// Length returns a slog.Attr for a requested byte count
func Length(n uint32) slog.Attr {
	return slog.Any(KeyLength, n)
}

// BytesRead returns a slog.Attr for actual bytes read
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for actual bytes written
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// EOF returns a slog.Attr for an end-of-file indicator
func EOF(eof bool) slog.Attr {
	return slog.Bool(KeyEOF, eof)
}

// User returns a slog.Attr for an authenticated username
func User(name string) slog.Attr {
	return slog.String(KeyUser, name)
}

// Remote returns a slog.Attr for a client remote address
func Remote(addr string) slog.Attr {
	return slog.String(KeyRemote, addr)
}

// SessionID returns a slog.Attr for a session identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// Bucket returns a slog.Attr for a bucket name
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// Key returns a slog.Attr for an object key
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Prefix returns a slog.Attr for a list prefix
func Prefix(p string) slog.Attr {
	return slog.String(KeyPrefix, p)
}

// Region returns a slog.Attr for an object store region
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}

// Endpoint returns a slog.Attr for an object store endpoint
func Endpoint(e string) slog.Attr {
	return slog.String(KeyEndpoint, e)
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// Event returns a slog.Attr for an event name
func Event(name string) slog.Attr {
	return slog.String(KeyEvent, name)
}

// Subscriber returns a slog.Attr for an event subscriber name
func Subscriber(name string) slog.Attr {
	return slog.String(KeySubscriber, name)
}

// Dropped returns a slog.Attr for a dropped event count
func Dropped(n uint64) slog.Attr {
	return slog.Uint64(KeyDropped, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Entries returns a slog.Attr for a directory entry count
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}

// Protocol returns a slog.Attr for an adapter protocol name
func Protocol(proto string) slog.Attr {
	return slog.String(KeyProtocol, proto)
}

// Port returns a slog.Attr for a listener port
func Port(p int) slog.Attr {
	return slog.Int(KeyPort, p)
}
