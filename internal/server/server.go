// Package server exposes the stream gateway over HTTP.
//
// POST /api/evaluate accepts a batch of items and answers with a chunked
// body of NDJSON frames. The admin routes report and reset the shared
// upstream protection state.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/lexiz/internal/gateway"
	"github.com/abhisek/lexiz/internal/guard"
	"github.com/abhisek/lexiz/internal/metrics"
)

// Config configures the HTTP listener.
type Config struct {
	ListenAddress     string        `yaml:"listen_address"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// AllowedOrigins lists origins for CORS. "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Admin enables the /admin/circuit endpoints.
	Admin bool `yaml:"admin"`

	// MaxBodyBytes caps the request body. Default: 1 MiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddress:     ":8080",
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		AllowedOrigins:    []string{"*"},
		Admin:             true,
		MaxBodyBytes:      1 << 20,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.ListenAddress == "" {
		return errors.New("listen_address is required")
	}
	if c.ShutdownTimeout < 0 {
		return errors.New("shutdown_timeout must not be negative")
	}
	if c.MaxBodyBytes < 0 {
		return errors.New("max_body_bytes must not be negative")
	}
	return nil
}

// Server routes HTTP requests to the gateway.
type Server struct {
	cfg        Config
	gateway    *gateway.Gateway
	protection *guard.ProtectionState
	metrics    *metrics.Collector
	logger     *slog.Logger
	engine     *gin.Engine
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics records HTTP metrics and mounts the metrics handler at path.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the router.
func New(gw *gateway.Gateway, protection *guard.ProtectionState, cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		gateway:    gw,
		protection: protection,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(
		requestID(),
		recovery(s.logger),
		cors(s.cfg.AllowedOrigins),
		accessLog(s.logger),
		observe(s.metrics),
	)

	r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api")
	api.POST("/evaluate", s.handleEvaluate)

	if s.cfg.Admin {
		admin := r.Group("/admin")
		admin.GET("/circuit", s.handleCircuitStatus)
		admin.POST("/circuit/reset", s.handleCircuitReset)
	}
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully. In-flight streams see their request context canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
