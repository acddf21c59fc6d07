// Package server wires the paperdrop components into one runnable unit.
//
// The server owns the object store, the event bus, the session tracker, the
// SFTP adapter, and the optional metrics and operator API HTTP servers. It
// builds everything from the loaded configuration and runs them under a
// single context so one shutdown signal drains the whole process.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/paperdrop/paperdrop/internal/logger"
	"github.com/paperdrop/paperdrop/pkg/adapter"
	sftpadapter "github.com/paperdrop/paperdrop/pkg/adapter/sftp"
	"github.com/paperdrop/paperdrop/pkg/api"
	"github.com/paperdrop/paperdrop/pkg/auth"
	"github.com/paperdrop/paperdrop/pkg/config"
	"github.com/paperdrop/paperdrop/pkg/events"
	"github.com/paperdrop/paperdrop/pkg/metrics"
	"github.com/paperdrop/paperdrop/pkg/session"
	"github.com/paperdrop/paperdrop/pkg/store"
	"github.com/paperdrop/paperdrop/pkg/store/s3"
)

// Server is the assembled paperdrop gateway.
type Server struct {
	cfg     *config.Config
	store   store.Store
	bus     *events.Bus
	tracker *session.Tracker
	auth    *auth.Authenticator
	adapter *sftpadapter.Adapter

	apiServer   *api.Server
	metricsPort int
}

// New builds a server from configuration, connecting to the S3 bucket named
// in cfg. The bucket must already exist; startup fails when it cannot be
// reached.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	st, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithStore(cfg, st)
}

// NewWithStore builds a server around an already-constructed object store.
// Tests use this with the in-memory store.
func NewWithStore(cfg *config.Config, st store.Store) (*Server, error) {
	hostKey, err := loadHostKey(cfg.Server.HostKey)
	if err != nil {
		return nil, err
	}

	// The registry must exist before any collector is constructed; the
	// constructors return nil while it is absent.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	bus := events.NewBus()
	bus.Subscribe(eventLogger())
	if counter := metrics.NewEventCounter(); counter != nil {
		bus.Subscribe(counter)
	}

	tracker := session.NewTracker(cfg.Server.IdleTimeout, bus)

	authenticator := auth.New(auth.Config{
		Store:                st,
		UserBasePath:         cfg.Users.BasePath,
		DefaultSubdirs:       cfg.Users.DefaultSubdirs,
		CreateDefaultSubdirs: cfg.Users.CreateDefaultSubdirs,
		Bus:                  bus,
	})

	sftpAdapter := sftpadapter.New(sftpadapter.Config{
		Base: adapter.BaseConfig{
			BindAddress:     cfg.Server.Host,
			Port:            cfg.Server.Port,
			MaxConnections:  cfg.Server.MaxConnections,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		},
		HostKey:           hostKey,
		Store:             st,
		Auth:              authenticator,
		Tracker:           tracker,
		Bus:               bus,
		Metrics:           metrics.NewSFTPMetrics(),
		UserBasePath:      cfg.Users.BasePath,
		AllowedPaths:      cfg.Users.AllowedPaths,
		MaxDirectoryDepth: cfg.Uploads.MaxDirectoryDepth,
		MaxFileSize:       int64(cfg.Uploads.MaxFileSize),
	})

	s := &Server{
		cfg:     cfg,
		store:   st,
		bus:     bus,
		tracker: tracker,
		auth:    authenticator,
		adapter: sftpAdapter,
	}

	if cfg.API.Enabled {
		s.apiServer = api.NewServer(api.Config{Port: cfg.API.Port}, api.Deps{
			Store:             st,
			Tracker:           tracker,
			UserBasePath:      cfg.Users.BasePath,
			MaxDirectoryDepth: cfg.Uploads.MaxDirectoryDepth,
		})
	}
	if cfg.Metrics.Enabled {
		s.metricsPort = cfg.Metrics.Port
	}

	return s, nil
}

// Auth returns the authenticator, shared with the user management CLI.
func (s *Server) Auth() *auth.Authenticator {
	return s.auth
}

// Tracker returns the live session registry.
func (s *Server) Tracker() *session.Tracker {
	return s.tracker
}

// SFTPAddr returns the SFTP listener address once the adapter is serving.
func (s *Server) SFTPAddr() string {
	return s.adapter.GetListenerAddr()
}

// Serve runs every component until the context is cancelled or one of them
// fails. It blocks; on return all components have shut down.
func (s *Server) Serve(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.adapter.Serve(runCtx); err != nil {
			errChan <- fmt.Errorf("SFTP adapter failed: %w", err)
			cancel()
		}
	}()

	if s.metricsPort > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.serveMetrics(runCtx); err != nil {
				errChan <- fmt.Errorf("metrics server failed: %w", err)
				cancel()
			}
		}()
	}

	if s.apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.apiServer.Start(runCtx); err != nil {
				errChan <- fmt.Errorf("API server failed: %w", err)
				cancel()
			}
		}()
	}

	<-runCtx.Done()
	wg.Wait()

	s.tracker.Close()
	s.bus.Close()

	select {
	case err := <-errChan:
		return err
	default:
		return nil
	}
}

// serveMetrics exposes the Prometheus registry on its own port until the
// context is cancelled.
func (s *Server) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.metricsPort),
		Handler: mux,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "port", s.metricsPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// NewStore connects to the configured S3 bucket. The user management CLI
// uses it directly, without assembling a full server.
func NewStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	client, err := s3.NewS3Client(ctx,
		cfg.S3.Endpoint,
		cfg.S3.Region,
		cfg.S3.AccessKeyID,
		cfg.S3.SecretAccessKey,
		cfg.S3.ForcePathStyle,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	st, err := s3.New(ctx, s3.Config{
		Client:         client,
		Bucket:         cfg.S3.Bucket,
		Metrics:        metrics.NewStoreMetrics(),
		MaxRetries:     cfg.S3.MaxRetries,
		InitialBackoff: cfg.S3.InitialBackoff,
		MaxBackoff:     cfg.S3.MaxBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open S3 store: %w", err)
	}

	logger.Info("object store ready", "bucket", cfg.S3.Bucket, "region", cfg.S3.Region)
	return st, nil
}

// loadHostKey reads and parses the SSH host key PEM.
func loadHostKey(path string) (ssh.Signer, error) {
	if path == "" {
		return nil, fmt.Errorf("server.host_key is not set; run \"paperdrop keygen\" to create one")
	}

	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read host key %s: %w", path, err)
	}

	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse host key %s: %w", path, err)
	}
	return signer, nil
}

// eventLogger logs every gateway event at debug level, and upload errors at
// warn so they show up with default logging.
func eventLogger() events.Subscriber {
	return events.SubscriberFunc(func(ev events.Event) {
		switch ev.Type {
		case events.UploadError:
			logger.Warn("gateway event", "type", ev.Type, "user", ev.User, "path", ev.Path, "error", ev.Err)
		default:
			logger.Debug("gateway event", "type", ev.Type, "user", ev.User, "path", ev.Path)
		}
	})
}
