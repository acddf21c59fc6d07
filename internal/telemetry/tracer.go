package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for SFTP and object store operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// SFTP request attributes
	// ========================================================================
	AttrVerb      = "sftp.verb"       // Request name: OPEN, READ, CLOSE, etc.
	AttrRequestID = "sftp.request_id" // Request identifier
	AttrHandle    = "sftp.handle"     // File or directory handle
	AttrPath      = "sftp.path"       // Virtual path
	AttrOffset    = "sftp.offset"     // I/O offset
	AttrLength    = "sftp.length"     // Byte count requested
	AttrSize      = "sftp.size"       // File size
	AttrStatus    = "sftp.status"     // Status code
	AttrStatusMsg = "sftp.status_msg" // Human-readable status
	AttrEOF       = "sftp.eof"        // End of file indicator

	// ========================================================================
	// User attributes
	// ========================================================================
	AttrUsername = "user.name"

	// ========================================================================
	// Object store attributes
	// ========================================================================
	AttrBucket = "storage.bucket"
	AttrKey    = "storage.key"
	AttrPrefix = "storage.prefix"
	AttrRegion = "storage.region"

	// ========================================================================
	// Event attributes
	// ========================================================================
	AttrEvent = "event.name"
)

// Span names for internal operations.
// SFTP request spans are built dynamically as "sftp.<VERB>".
const (
	SpanSFTPRequest = "sftp.request"

	SpanStoreGet    = "store.get"
	SpanStorePut    = "store.put"
	SpanStoreDelete = "store.delete"
	SpanStoreCopy   = "store.copy"
	SpanStoreList   = "store.list"
	SpanStoreHead   = "store.head"

	SpanAuthCheck     = "auth.check"
	SpanAuthProvision = "auth.provision"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Verb returns an attribute for an SFTP request name
func Verb(name string) attribute.KeyValue {
	return attribute.String(AttrVerb, name)
}

// RequestID returns an attribute for an SFTP request identifier
func RequestID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrRequestID, int64(id))
}

// Handle returns an attribute for a file handle
func Handle(handle []byte) attribute.KeyValue {
	return attribute.String(AttrHandle, fmt.Sprintf("%x", handle))
}

// Path returns an attribute for a virtual path
func Path(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// Offset returns an attribute for a file offset
func Offset(offset uint64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, int64(offset))
}

// Length returns an attribute for a requested byte count
func Length(length uint32) attribute.KeyValue {
	return attribute.Int64(AttrLength, int64(length))
}

// Size returns an attribute for a file size
func Size(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrSize, int64(size))
}

// StatusCode returns an attribute for an SFTP status code
func StatusCode(status uint32) attribute.KeyValue {
	return attribute.Int64(AttrStatus, int64(status))
}

// StatusMsg returns an attribute for a status message
func StatusMsg(msg string) attribute.KeyValue {
	return attribute.String(AttrStatusMsg, msg)
}

// EOF returns an attribute for an end-of-file indicator
func EOF(eof bool) attribute.KeyValue {
	return attribute.Bool(AttrEOF, eof)
}

// Username returns an attribute for a username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// Bucket returns an attribute for a bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for an object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Prefix returns an attribute for a list prefix
func Prefix(prefix string) attribute.KeyValue {
	return attribute.String(AttrPrefix, prefix)
}

// Region returns an attribute for an object store region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// EventName returns an attribute for an event name
func EventName(name string) attribute.KeyValue {
	return attribute.String(AttrEvent, name)
}

// StartVerbSpan starts a span for an SFTP request.
// This is a convenience function that sets common attributes.
func StartVerbSpan(ctx context.Context, verb string, id uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Verb(verb),
		RequestID(id),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "sftp."+verb, trace.WithAttributes(allAttrs...))
}

// StartStoreSpan starts a span for an object store operation.
func StartStoreSpan(ctx context.Context, operation string, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		StorageKey(key),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "store."+operation, trace.WithAttributes(allAttrs...))
}

// StartAuthSpan starts a span for an authentication operation.
func StartAuthSpan(ctx context.Context, operation string, user string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Username(user),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "auth."+operation, trace.WithAttributes(allAttrs...))
}
