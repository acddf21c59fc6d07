package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/paperdrop/paperdrop/internal/logger"
	"github.com/paperdrop/paperdrop/pkg/api/handlers"
	"github.com/paperdrop/paperdrop/pkg/session"
	"github.com/paperdrop/paperdrop/pkg/store"
)

// Deps carries everything the API handlers need from the running server.
type Deps struct {
	// Store is the object store backing the folder view and readiness probe.
	Store store.Store

	// Tracker is the live session registry.
	Tracker *session.Tracker

	// UserBasePath is the bucket-wide user root, e.g. "users".
	UserBasePath string

	// MaxDirectoryDepth bounds virtual path depth in the folder view;
	// 0 means unlimited.
	MaxDirectoryDepth int
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - GET /healthz - Liveness probe
//   - GET /healthz/ready - Readiness probe (object store reachability)
//   - GET /api/v1/users/{user}/folders - Per-user folder view
//   - GET /api/v1/sessions - Live session listing
//   - POST /api/v1/sessions/{user}/disconnect - Force-disconnect a user
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	health := handlers.NewHealthHandler(deps.Store)
	folders := handlers.NewFoldersHandler(deps.Store, deps.UserBasePath, deps.MaxDirectoryDepth)
	sessions := handlers.NewSessionsHandler(deps.Tracker)

	r.Route("/healthz", func(r chi.Router) {
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/users/{user}/folders", folders.List)
		r.Get("/sessions", sessions.List)
		r.Post("/sessions/{user}/disconnect", sessions.Disconnect)
	})

	// Root redirect to the liveness probe for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/healthz", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the internal
// logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
