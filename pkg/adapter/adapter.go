// Package adapter provides the shared TCP server lifecycle protocol
// front-ends are built on: listener management, connection limiting,
// graceful shutdown, and connection tracking. The SFTP adapter in
// pkg/adapter/sftp embeds BaseAdapter and supplies the protocol behavior
// through a ConnectionFactory.
package adapter

import (
	"context"
)

// Adapter is a protocol server the orchestrator can manage.
//
// Lifecycle: the adapter is created with its configuration, Serve starts the
// listener and blocks until the context is cancelled or a fatal error
// occurs, and Stop initiates graceful shutdown. Stop may be called
// concurrently with Serve and must be idempotent.
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is
	// cancelled or an unrecoverable error occurs. On cancellation it stops
	// accepting, drains active connections up to the shutdown timeout, and
	// returns nil when the drain completed.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown, waiting for active connections up
	// to the context deadline.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging.
	Protocol() string

	// Port returns the TCP port the adapter listens on.
	Port() int
}
