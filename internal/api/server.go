// Package api serves the admin HTTP API, the display socket and the media
// routes.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ccpd/signboard/internal/auth"
	"github.com/ccpd/signboard/internal/dashboard"
	"github.com/ccpd/signboard/internal/events"
	"github.com/ccpd/signboard/internal/ingest"
)

// PlaylistAssembler turns raw playlist items into a playable playlist.
type PlaylistAssembler interface {
	Assemble(ctx context.Context, raw []ingest.RawItem) (ingest.Playlist, error)
}

// SnapshotScheduler persists dashboard snapshots in the background.
type SnapshotScheduler interface {
	Schedule(snap dashboard.Snapshot)
}

// UploadInbox keeps received files until a playlist references them.
type UploadInbox interface {
	Save(r io.Reader, name string) (ref, kind string, err error)
}

// FileOpener streams remote files for the Drive proxy route.
type FileOpener interface {
	Open(ctx context.Context, fileID string) (io.ReadCloser, string, error)
}

// IngestHistory lists recent ingests.
type IngestHistory interface {
	Recent(ctx context.Context, limit int) ([]ingest.Record, error)
}

// DisplayHandler serves display sockets.
type DisplayHandler interface {
	http.Handler
	Connected() int
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the admin bearer token. With neither APIKey nor Tokens set,
	// protected routes are open.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens          []auth.TokenConfig
	MaxUploadBytes  int64
	AssembleTimeout time.Duration
	ShutdownTimeout time.Duration
}

// Deps are the collaborators behind the routes. Dashboard, Events and
// Assembler are required; the rest switch their routes off when nil.
type Deps struct {
	Dashboard *dashboard.Store
	Events    *events.Hub
	Assembler PlaylistAssembler
	Snapshots SnapshotScheduler
	Inbox     UploadInbox
	Drive     FileOpener
	Media     http.Handler
	Displays  DisplayHandler
	Metrics   http.Handler
	History   IngestHistory
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	keyring   *auth.Keyring
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 50 << 20
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		keyring:   auth.NewKeyring(config.APIKey, config.Tokens),
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Playlist assembly and socket streams run long; no write timeout.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	for _, rt := range s.routes() {
		if rt.handler == nil {
			continue
		}
		h := rt.handler
		if rt.scopes != nil {
			h = s.authMiddleware(s.requireScopes(rt.scopes...)(h))
		}
		if rt.prefix {
			r.Handle(rt.path+"*", h)
			continue
		}
		r.Method(rt.method, rt.path, h)
	}
	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
