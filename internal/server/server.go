// Package server exposes stories viewer sessions over HTTP and WebSocket.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agleyzer/linkinbio/internal/playlist"
	"github.com/agleyzer/linkinbio/internal/session"
	"github.com/agleyzer/linkinbio/internal/stories"
)

// Config holds server configuration.
type Config struct {
	Port int

	// AssetsDir is served under /assets/. Empty disables it.
	AssetsDir string

	// AllowAll allows all CORS origins.
	AllowAll bool

	// PushInterval is how often WebSocket clients receive state.
	PushInterval time.Duration
}

// Server serves the offers stories API.
type Server struct {
	cfg        Config
	sessions   *session.Manager
	stories    func() any
	cache      *stories.Cache
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a new HTTP server. rawStories returns the configured raw
// stories list; cache must be the one the session manager normalizes with.
func New(cfg Config, sessions *session.Manager, rawStories func() any, cache *stories.Cache, logger *slog.Logger) *Server {
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = 100 * time.Millisecond
	}

	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		stories:  rawStories,
		cache:    cache,
		logger:   logger,
	}

	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/health", s.handleHealth)
	r.Get("/stories", s.handleStories)
	r.Get("/stories.m3u8", s.handleStoriesPlaylist)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleMount)
		r.Get("/{id}", s.handleState)
		r.Delete("/{id}", s.handleUnmount)
		r.Post("/{id}/input", s.handleInput)
		r.Post("/{id}/asset", s.handleAsset)
		r.Get("/{id}/ws", s.handleWebSocket)
	})

	if s.cfg.AssetsDir != "" {
		r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.Dir(s.cfg.AssetsDir))))
	}

	return r
}

// Start starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "port", s.cfg.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// handleHealth serves health check information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"stats":  s.sessions.GetStats(),
	})
}

// handleStories serves the normalized stories list.
func (s *Server) handleStories(w http.ResponseWriter, r *http.Request) {
	slides := s.cache.Normalize(s.stories())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(slides),
		"stories": slides,
	})
}

// handleStoriesPlaylist serves the normalized stories list as an M3U
// playlist.
func (s *Server) handleStoriesPlaylist(w http.ResponseWriter, r *http.Request) {
	slides := s.cache.Normalize(s.stories())

	content, err := playlist.Generate(slides, s.sessions.Duration())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(content))
}

// lookup resolves the {id} URL parameter, writing a 404 when unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return sess, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
			"status", wrapped.statusCode,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades take over the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
