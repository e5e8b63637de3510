// Package server exposes the chat pipeline, version history and live
// page reload over HTTP.
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

	"github.com/Aman-CERP/pagegenie/internal/broadcast"
	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/pipeline"
	"github.com/Aman-CERP/pagegenie/internal/store"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8000"
	// DefaultKeepAlive is the SSE comment interval on idle chat streams.
	DefaultKeepAlive = 15 * time.Second
	// DefaultRunsLimit is used when /api/runs has no limit parameter.
	DefaultRunsLimit = 20
	// MaxRunsLimit caps /api/runs?limit.
	MaxRunsLimit = 500

	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// ChatRunner runs one chat request. *pipeline.Pipeline implements it.
type ChatRunner interface {
	Run(ctx context.Context, req pipeline.Request, sink pipeline.Sink) (*store.RunRecord, error)
}

// VersionReader reads page history. *versions.Manager implements it.
type VersionReader interface {
	List(ctx context.Context, slug string) ([]string, error)
	Get(ctx context.Context, slug, label string) (string, error)
	Slugs(ctx context.Context) ([]string, error)
}

// RunLister lists finalized runs. *store.DB implements it.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error)
}

// ViewerRegistry tracks live-reload clients. *broadcast.Registry implements it.
type ViewerRegistry interface {
	Register(v broadcast.Viewer) (unregister func())
}

// Pinger reports store health. *store.DB implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies contains the injected dependencies for a Server.
type Dependencies struct {
	Chat     ChatRunner
	Versions VersionReader
	Runs     RunLister
	Viewers  ViewerRegistry
	// Health is optional; nil reports healthy.
	Health Pinger
}

// Config configures a Server.
type Config struct {
	Addr         string
	SSEKeepAlive time.Duration
	// AllowedOrigins are websocket origin patterns besides the request host.
	AllowedOrigins []string
	// PagesDir, when set, is served under /pages/ for generated assets.
	PagesDir string
}

// Server is the HTTP front end.
type Server struct {
	deps Dependencies
	cfg  Config
	mux  *http.ServeMux
}

// New creates a Server. Chat, Versions, Runs and Viewers are required.
func New(deps Dependencies, cfg Config) (*Server, error) {
	if deps.Chat == nil || deps.Versions == nil || deps.Runs == nil || deps.Viewers == nil {
		return nil, fmt.Errorf("chat, versions, runs and viewers are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.SSEKeepAlive <= 0 {
		cfg.SSEKeepAlive = DefaultKeepAlive
	}

	s := &Server{deps: deps, cfg: cfg, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/versions/{slug}", s.handleVersions)
	s.mux.HandleFunc("GET /api/versions/{slug}/{label}", s.handleVersion)
	s.mux.HandleFunc("GET /api/runs", s.handleRuns)
	s.mux.HandleFunc("GET /api/pages", s.handlePages)
	s.mux.HandleFunc("GET /page", s.handlePage)
	s.mux.HandleFunc("GET /ws", s.handleWebsocket)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.cfg.PagesDir != "" {
		s.mux.Handle("GET /pages/", http.StripPrefix("/pages/", http.FileServer(http.Dir(s.cfg.PagesDir))))
	}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	return logRequests(s.mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http_shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	slog.Info("http_server_started", slog.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	slog.Info("http_server_stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(r.Context()); err != nil {
			writeError(w, perrors.New(perrors.ErrCodeStoreUnavailable, "store unavailable", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("http_write_failed", slog.String("error", err.Error()))
	}
}

// writeError writes err as a JSON error body with a status derived from
// its kind.
func writeError(w http.ResponseWriter, err error) {
	body, jerr := perrors.FormatJSON(err)
	if jerr != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	_, _ = w.Write(body)
}

func statusFor(err error) int {
	switch perrors.GetCode(err) {
	case perrors.ErrCodeVersionNotFound:
		return http.StatusNotFound
	case perrors.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	}
	switch perrors.KindOf(err) {
	case perrors.KindInvalidInput:
		return http.StatusBadRequest
	case perrors.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}
