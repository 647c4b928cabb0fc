package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mercator-hq/callisto/pkg/admission"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/middleware"
)

// Server is the admission-control HTTP server.
type Server struct {
	config       *config.Config
	limiter      *admission.Limiter
	gatherer     prometheus.Gatherer
	app          http.Handler
	key          middleware.KeyFunc
	wait         bool
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithGatherer sets the metrics gatherer backing the metrics endpoint.
// Without it the endpoint serves the default Prometheus gatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithAppHandler mounts handler at "/" behind the rate-limit middleware.
func WithAppHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.app = handler
	}
}

// WithKeyFunc replaces the default client-IP key extractor.
func WithKeyFunc(key middleware.KeyFunc) Option {
	return func(s *Server) {
		s.key = key
	}
}

// WithWait makes the rate-limit middleware queue denied requests instead of
// answering 429 immediately.
func WithWait(wait bool) Option {
	return func(s *Server) {
		s.wait = wait
	}
}

// NewServer creates a new admission server.
func NewServer(cfg *config.Config, limiter *admission.Limiter, opts ...Option) *Server {
	s := &Server{
		config:       cfg,
		limiter:      limiter,
		gatherer:     prometheus.DefaultGatherer,
		key:          middleware.ClientIP,
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         s.config.Server.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting admission server", "address", s.config.Server.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop requests shutdown of a running server without waiting for it.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
	})
}

// Shutdown gracefully shuts down the server, draining in-flight requests up
// to the configured shutdown timeout, then drains the admission queues.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	slog.Info("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
	}

	// Waiting requests must not outlive the server.
	s.limiter.Close()

	slog.Info("admission server stopped")
	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/healthz", newHealthHandler(s))
	mux.Handle("/admission/status", newStatusHandler(s.limiter))
	mux.Handle("/admission/queues", newClearHandler(s.limiter))
	mux.Handle("/admission/queues/", newClearHandler(s.limiter))

	if s.config.Telemetry.Metrics.MetricsEnabled() {
		mux.Handle(s.config.Telemetry.Metrics.Path, promhttp.HandlerFor(
			s.gatherer,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				ErrorHandling:     promhttp.ContinueOnError,
			},
		))
	}

	if s.app != nil {
		guarded := middleware.RateLimit(middleware.Config{
			Limiter: s.limiter,
			Key:     s.key,
			Wait:    s.wait,
		})(s.app)
		mux.Handle("/", guarded)
	}

	var handler http.Handler = mux
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)
	return handler
}
