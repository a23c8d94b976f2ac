package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"kge/internal/domain"
)

const (
	requestIDHeader = "X-Request-ID"
	postOnlyNotice  = "only POST requests are supported on this endpoint\n"
)

// Options configures the HTTP surface.
type Options struct {
	Host              string
	Port              int
	Path              string
	MaxBodyBytes      int64
	ReadHeaderTimeout time.Duration

	// Health reports the payload served on GET /healthz.
	Health func() any
}

// Server exposes a Gateway over HTTP.
type Server struct {
	gateway *Gateway
	opts    Options
	logger  *slog.Logger
	handler http.Handler
}

// New creates a server for gateway.
func New(gateway *Gateway, opts Options, logger *slog.Logger) *Server {
	if opts.Path == "" {
		opts.Path = "/embeddings"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{gateway: gateway, opts: opts, logger: logger.With("component", "server")}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+opts.Path, s.handleLookup)
	mux.HandleFunc("GET "+opts.Path, s.handleNotice)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	s.handler = s.withRequestID(mux)

	return s
}

// Handler returns the root handler, including request id tagging.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr, "path", s.opts.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve on %s: %w", srv.Addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r.Context(), s.logger)
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("request body too large", "limit", tooLarge.Limit)
			writeJSON(w, http.StatusRequestEntityTooLarge, malformed(
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)))
			return
		}
		log.Warn("failed to read request body", "error", err)
		writeJSON(w, http.StatusBadRequest, malformed("failed to read request body", err.Error()))
		return
	}

	payload, err := s.gateway.Handle(r.Context(), body)
	if err != nil {
		log.Warn("batch abandoned", "error", err)
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		return
	}

	switch p := payload.(type) {
	case domain.ErrorResponse:
		log.Info("rejected malformed request", "message", p.Message, "details", len(p.Details))
	case domain.BatchResponse:
		log.Debug("batch resolved",
			"entities", len(p.EntityEmbeddings),
			"relations", len(p.RelationEmbeddings),
			"duration", time.Since(start),
		)
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleNotice(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_, _ = io.WriteString(w, postOnlyNotice)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var stats any = map[string]string{"status": "ok"}
	if s.opts.Health != nil {
		stats = s.opts.Health()
	}
	writeJSON(w, http.StatusOK, stats)
}

type loggerKey struct{}

// withRequestID tags each request with an id, taken from the incoming
// X-Request-ID header when present.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		log := s.logger.With("request_id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), loggerKey{}, log)))
	})
}

func requestLogger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if log, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return log
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
