package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/datasci/pkg/observability"
	"github.com/rhuss/datasci/pkg/transport"
)

// Server wraps an http.Server with the adapter and manages startup and
// graceful shutdown.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the interpreter server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout time.Duration
	// ReadTimeout and WriteTimeout bound a whole request. WriteTimeout must
	// exceed the longest execution timeout. Zero means no limit.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxConcurrent bounds running executions; further requests get 429.
	// Zero disables the limit.
	MaxConcurrent int
	Version       string
	Metrics       bool
	Logger        *slog.Logger
	// HTTPMiddleware wraps the whole handler, innermost first (auth).
	HTTPMiddleware []func(http.Handler) http.Handler
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30 * time.Second,
		MaxConcurrent:   8,
		Version:         "dev",
		Metrics:         true,
		Logger:          slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithTimeouts sets the request read and write timeouts.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		s.config.ReadTimeout = read
		s.config.WriteTimeout = write
	}
}

// WithMaxConcurrent sets the number of executions allowed to run at once.
func WithMaxConcurrent(n int) ServerOption {
	return func(s *Server) { s.config.MaxConcurrent = n }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.config.Version = v }
}

// WithMetrics toggles the /metrics endpoint.
func WithMetrics(enabled bool) ServerOption {
	return func(s *Server) { s.config.Metrics = enabled }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// WithHTTPMiddleware adds HTTP-level middleware such as authentication.
func WithHTTPMiddleware(mw func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.config.HTTPMiddleware = append(s.config.HTTPMiddleware, mw) }
}

// NewServer creates the interpreter server for a backend. The default
// execute middleware (recovery, request ID, logging, concurrency limit) is
// applied automatically.
func NewServer(exec transport.ExecuteHandler, sessions transport.SessionService, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	defaultMW := []transport.Middleware{
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
		transport.ConcurrencyLimit(s.config.MaxConcurrent, observability.ExecutionsRejectedTotal.Inc),
	}

	s.adapter = NewAdapter(exec, sessions, Config{
		MaxBodySize: s.config.MaxBodySize,
		Version:     s.config.Version,
		Metrics:     s.config.Metrics,
	}, defaultMW...)

	var handler http.Handler = s.adapter.mux
	for _, mw := range s.config.HTTPMiddleware {
		handler = mw(handler)
	}
	handler = httpRequestIDMiddleware(handler)
	handler = observability.MetricsMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}
	return s
}

// Mount serves h under pattern, behind the same HTTP middleware as the
// API. It must be called before the server starts.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.adapter.Mount(pattern, h)
}

// Executor returns the execute handler with the server's middleware
// applied, so other front ends share its request IDs, logging and
// concurrency limit.
func (s *Server) Executor() transport.ExecuteHandler {
	return s.adapter.exec
}

// InFlight returns the registry of running executions.
func (s *Server) InFlight() *transport.InFlightRegistry {
	return s.adapter.inflight
}

// Handler returns the fully wrapped handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the server and blocks until SIGINT or SIGTERM is
// received, then shuts down gracefully.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

// ServeOn serves on ln until ctx is done. Used for testing.
func (s *Server) ServeOn(ctx context.Context, ln net.Listener) error {
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests and waits for running ones. When ctx
// expires first, the remaining executions are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gracefully")
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		n := s.adapter.inflight.CancelAll()
		s.logger.Error("shutdown deadline exceeded", slog.String("error", err.Error()), slog.Int("cancelled", n))
		s.httpServer.Close()
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
