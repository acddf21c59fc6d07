// Package sftp implements the SFTP protocol adapter: the SSH server glue,
// per-session request router, handle tables, and the upload and download
// pipelines that bridge stream-oriented SFTP to whole-object store
// semantics.
package sftp

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/paperdrop/paperdrop/pkg/adapter"
	"github.com/paperdrop/paperdrop/pkg/auth"
	"github.com/paperdrop/paperdrop/pkg/events"
	"github.com/paperdrop/paperdrop/pkg/metrics"
	"github.com/paperdrop/paperdrop/pkg/namespace"
	"github.com/paperdrop/paperdrop/pkg/session"
	"github.com/paperdrop/paperdrop/pkg/store"
)

// Default consistency handling for eventually consistent listings.
const (
	// DefaultConsistencyWindow is how long after an upload listings are
	// considered possibly stale.
	DefaultConsistencyWindow = 10 * time.Second

	// DefaultSettleDelay is how long a stale listing waits before listing
	// again.
	DefaultSettleDelay = time.Second
)

// Config holds the SFTP adapter configuration.
type Config struct {
	// Base is the shared TCP lifecycle configuration.
	Base adapter.BaseConfig

	// HostKey signs the SSH handshake.
	HostKey ssh.Signer

	// Store is the backing object store.
	Store store.Store

	// Auth validates credentials and provisions homes.
	Auth *auth.Authenticator

	// Tracker registers sessions and runs idle detection.
	Tracker *session.Tracker

	// Bus receives gateway events. May be nil.
	Bus *events.Bus

	// Metrics is an optional protocol metrics collector.
	Metrics metrics.SFTPMetrics

	// UserBasePath is the bucket prefix user homes live under.
	UserBasePath string

	// AllowedPaths holds per-user allow-list overrides keyed by username.
	// Users not present get the policy defaults.
	AllowedPaths map[string][]string

	// MaxDirectoryDepth bounds virtual path depth. 0 means unlimited.
	MaxDirectoryDepth int

	// MaxFileSize is the advisory upload size limit in bytes; exceeding it
	// logs a warning but the upload proceeds. 0 disables the check.
	MaxFileSize int64

	// ConsistencyWindow and SettleDelay tune stale-listing handling.
	// Zero values select the defaults.
	ConsistencyWindow time.Duration
	SettleDelay       time.Duration
}

// Adapter is the SFTP protocol adapter.
type Adapter struct {
	*adapter.BaseAdapter

	cfg     Config
	sshCfg  *ssh.ServerConfig
	clock   *namespace.UploadClock
	metrics metrics.SFTPMetrics
}

// New creates the SFTP adapter. The host key must already be loaded; a
// missing key is a startup error the caller surfaces before getting here.
func New(cfg Config) *Adapter {
	if cfg.ConsistencyWindow == 0 {
		cfg.ConsistencyWindow = DefaultConsistencyWindow
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	a := &Adapter{
		BaseAdapter: adapter.NewBaseAdapter(cfg.Base, "SFTP"),
		cfg:         cfg,
		clock:       &namespace.UploadClock{},
		metrics:     cfg.Metrics,
	}
	a.BaseAdapter.Metrics = cfg.Metrics

	sshCfg := &ssh.ServerConfig{
		PasswordCallback: a.passwordCallback,
	}
	sshCfg.AddHostKey(cfg.HostKey)
	a.sshCfg = sshCfg

	return a
}

// Serve starts the adapter and blocks until ctx is cancelled.
func (a *Adapter) Serve(ctx context.Context) error {
	return a.ServeWithFactory(ctx, a, nil, nil)
}

// NewConnection implements adapter.ConnectionFactory.
func (a *Adapter) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return &connection{adapter: a, netConn: conn}
}

// passwordCallback bridges SSH password authentication to the credential
// probe. The context is the adapter's shutdown context: an authentication
// in flight during shutdown is abandoned with the connection.
func (a *Adapter) passwordCallback(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
	ok := a.cfg.Auth.Authenticate(a.ShutdownCtx, meta.User(), string(password))
	if a.metrics != nil {
		a.metrics.RecordAuthAttempt(ok)
	}
	if !ok {
		return nil, fmt.Errorf("password rejected for %q", meta.User())
	}
	return nil, nil
}
