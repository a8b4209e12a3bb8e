// Package server exposes stored federations over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Benny93/fedgraph/internal/ctxlog"
	"github.com/Benny93/fedgraph/internal/ingestion"
	"github.com/Benny93/fedgraph/internal/storage"
)

const defaultMaxUpload = 64 << 20

// Options configures a Server.
type Options struct {
	// Import configures decoding of uploaded archives and graph builds.
	Import ingestion.Options

	// MaxUploadBytes bounds an uploaded archive. Zero uses 64 MiB.
	MaxUploadBytes int64

	// Logger receives request logs. Nil discards them.
	Logger *slog.Logger
}

// Server serves the federation API.
type Server struct {
	store  storage.StorageBackend
	opts   Options
	logger *slog.Logger
}

// New creates a server over store.
func New(store storage.StorageBackend, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{store: store, opts: opts, logger: logger}
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Post("/fed", s.handleUpload)
		api.Get("/feds", s.handleList)
		api.Get("/feds/{name}", s.handleSummary)
		api.Get("/feds/{name}/graph", s.handleGraph)
		api.Get("/feds/{name}/diagnostics", s.handleDiagnostics)
		api.Delete("/feds/{name}", s.handleDelete)
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctxlog.WithLogger(context.Background(), s.logger) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger logs one line per request and puts a request-scoped logger
// into the request context.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger.With("request_id", middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctxlog.WithLogger(r.Context(), logger)))

		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}
