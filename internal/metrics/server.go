package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/systmms/secretref/internal/logging"
)

// ServerConfig holds configuration for the metrics HTTP server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":9090". Empty disables the server.
	Addr string

	// Path is the path to serve metrics on.
	Path string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration
}

// DefaultServerConfig returns the default metrics server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Path:         "/metrics",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server serves Prometheus metrics over HTTP.
type Server struct {
	config ServerConfig
	logger *logging.Logger
	server *http.Server
	addr   string
}

// NewServer creates a new metrics server.
func NewServer(config ServerConfig, logger *logging.Logger) *Server {
	if config.Path == "" {
		config.Path = "/metrics"
	}
	return &Server{config: config, logger: logger}
}

// Handler returns the HTTP handler with the metrics and health endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start initializes metrics and starts listening. It returns once the
// listener is bound.
func (s *Server) Start() error {
	if s.config.Addr == "" {
		return nil
	}

	InitMetrics()

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Metrics are non-critical
			s.logger.Warn("metrics server error: %v", err)
		}
	}()

	s.logger.Debug("metrics server listening on %s", s.addr)
	return nil
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address, or "" if the server is not running.
func (s *Server) Addr() string {
	return s.addr
}
