// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api serves policy queries over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/uidpolicy/internal/boot"
	"grimm.is/uidpolicy/internal/logging"
	"grimm.is/uidpolicy/internal/netmaps"
	"grimm.is/uidpolicy/internal/platform"
	"grimm.is/uidpolicy/internal/policy"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// ServerConfig holds HTTP server timeouts.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 14,
		ShutdownTimeout:   5 * time.Second,
	}
}

// Querier is what the API needs from the policy helper.
type Querier interface {
	Decide(uid uint32, metered bool) (policy.Decision, error)
	ChainEnabled(chain netmaps.Chain) (bool, error)
	UIDRule(chain netmaps.Chain, uid uint32) (policy.Rule, error)
	Ready() bool
	State() boot.State
	Tier() platform.Tier
	TableStatus() map[string]bool
}

// ServerOptions holds dependencies for the API server
type ServerOptions struct {
	Querier Querier
	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger
	Config   *ServerConfig
}

// Server handles API requests.
type Server struct {
	q      Querier
	logger *logging.Logger
	cfg    *ServerConfig
	router *mux.Router
}

// NewServer creates a new API server with the provided options
func NewServer(opts ServerOptions) *Server {
	s := &Server{
		q:      opts.Querier,
		logger: opts.Logger,
		cfg:    opts.Config,
		router: mux.NewRouter(),
	}
	if s.logger == nil {
		s.logger = logging.WithComponent("api")
	}
	if s.cfg == nil {
		s.cfg = DefaultServerConfig()
	}

	s.router.Use(s.requestID)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/uids/{uid}/blocked", s.handleUIDBlocked).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{chain}", s.handleChain).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{chain}/uids/{uid}", s.handleUIDRule).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestID tags every request with an ID, reusing the caller's when given.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored in ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
