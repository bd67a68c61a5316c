package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/manage-core/internal/infrastructure/config"
	"github.com/nerrad567/manage-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// BrowserServer upgrades an authenticated request to a browser channel.
type BrowserServer interface {
	Serve(w http.ResponseWriter, r *http.Request, subject string) error
	ClientCount() int
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Browsers BrowserServer

	// Metrics serves the Prometheus scrape endpoint. Optional.
	Metrics http.Handler

	// Checks are probed by /health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP front of the manage service: health, metrics and the
// browser WebSocket endpoint.
type Server struct {
	cfg      config.APIConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	browsers BrowserServer
	metrics  http.Handler
	checks   map[string]HealthChecker
	version  string
	server   *http.Server
}

// New validates deps and returns a server that is not yet listening.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Browsers == nil {
		return nil, fmt.Errorf("browser server is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	return &Server{
		cfg:      deps.Config,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		browsers: deps.Browsers,
		metrics:  deps.Metrics,
		checks:   deps.Checks,
		version:  deps.Version,
	}, nil
}

// Start binds the listener and serves in the background. A bind failure
// is returned directly.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close waits up to gracefulShutdownTimeout for in-flight requests, then
// drops the remaining connections. Hijacked WebSocket connections are not
// tracked here; the browser pilot closes them.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
