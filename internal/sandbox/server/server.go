// Package server exposes a sandbox engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Cyclone1070/triage/internal/metrics"
	"github.com/Cyclone1070/triage/internal/sandbox"
)

const (
	RequestIDHeader = "X-Request-ID"
	maxRequestBytes = 1 << 20
)

// Executor runs one snippet.
type Executor interface {
	Execute(ctx context.Context, code string) sandbox.ExecutionOutcome
}

// Server routes /invoke, /healthz and /metrics.
type Server struct {
	exec    Executor
	logger  *zap.Logger
	metrics *metrics.Metrics
	router  *mux.Router
}

// New builds the router. gatherer may be nil, in which case /metrics is not served.
func New(exec Executor, logger *zap.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{exec: exec, logger: logger, metrics: m, router: mux.NewRouter()}

	s.router.HandleFunc("/invoke", s.handleInvoke).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	s.router.Use(s.requestID, s.logRequests)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the router so callers can mount more routes behind the same
// middleware.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req sandbox.InvokeRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "read request: "+err.Error())
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Command == "" {
		respondError(w, http.StatusBadRequest, "No command provided")
		return
	}

	outcome := s.exec.Execute(r.Context(), req.Command)
	s.metrics.ObserveExecution(outcome.Success, outcome.ExecutionTime, outcome.ImportsRemoved)
	s.logger.Debug("executed snippet",
		zap.String("request_id", requestID(r)),
		zap.Bool("success", outcome.Success),
		zap.Float64("execution_time", outcome.ExecutionTime),
		zap.Int("imports_removed", outcome.ImportsRemoved),
	)

	respondJSON(w, http.StatusOK, sandbox.InvokeResponse{
		StatusCode: http.StatusOK,
		Body:       sandbox.NewInvokeBody(outcome),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type ctxKey struct{}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// responseWriter captures status code for logging.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		// Route templates keep label cardinality bounded.
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil && tpl != "" {
				path = tpl
			}
		}
		s.metrics.ObserveHTTP(r.Method, path, rw.status, elapsed)
		s.logger.Info("request",
			zap.String("request_id", requestID(r)),
			zap.String("method", r.Method),
			zap.String("path", path),
			zap.Int("status", rw.status),
			zap.Duration("duration", elapsed),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, sandbox.InvokeResponse{
		StatusCode: status,
		Body:       sandbox.InvokeBody{Success: false, Output: message, Error: message},
	})
}
