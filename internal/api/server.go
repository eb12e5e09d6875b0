package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
	"github.com/nerrad567/blegate/internal/device"
	"github.com/nerrad567/blegate/internal/infrastructure/config"
	"github.com/nerrad567/blegate/internal/infrastructure/logging"
	"github.com/nerrad567/blegate/internal/metrics"
	"github.com/nerrad567/blegate/internal/presence"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// PresenceView is the read side of the tracker table. *presence.Table
// implements it.
type PresenceView interface {
	Snapshot(now time.Time) []presence.Record
	Get(key beacon.Key, now time.Time) (presence.Record, bool)
	Counts() (total, home int)
}

// SeenIndex reports when keys were last heard. *presence.Registry
// implements it.
type SeenIndex interface {
	Len() int
	LastSeen(key beacon.Key) (time.Time, bool)
}

// DeviceStore is the read side of the device store. device.Repository
// implements it.
type DeviceStore interface {
	GetByKey(ctx context.Context, key beacon.Key) (*device.Device, error)
	List(ctx context.Context) ([]device.Device, error)
	GetHistory(ctx context.Context, key beacon.Key, limit int) ([]device.HistoryEntry, error)
}

// HealthChecker is a dependency whose health is reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Presence PresenceView

	// Optional.
	Seen        SeenIndex
	Devices     DeviceStore
	Metrics     *metrics.Manager
	MetricsPath string

	// Checks are run by /health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
	Now     func() time.Time
}

// Server is the HTTP API server for blegate.
//
// The hub is created by New so it can be registered with the presence
// pipeline before Start.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	presence    PresenceView
	seen        SeenIndex
	devices     DeviceStore
	metrics     *metrics.Manager
	metricsPath string
	checks      map[string]HealthChecker
	version     string
	now         func() time.Time
	startTime   time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// Parameters:
//   - deps: Logger and Presence are required; the rest is optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Presence == nil {
		return nil, fmt.Errorf("presence view is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		presence:    deps.Presence,
		seen:        deps.Seen,
		devices:     deps.Devices,
		metrics:     deps.Metrics,
		metricsPath: deps.MetricsPath,
		checks:      deps.Checks,
		version:     deps.Version,
		now:         deps.Now,
		startTime:   deps.Now(),
		hub:         NewHub(deps.WS, deps.Logger),
	}, nil
}

// Hub returns the WebSocket hub. Register it with the presence pipeline to
// relay events.
func (s *Server) Hub() *Hub { return s.hub }

// Start runs the hub and begins listening for HTTP connections in the
// background. The server can be stopped with Close.
//
// Parameters:
//   - ctx: Parent context for the hub; cancelling it disconnects WebSocket
//     clients
//
// Returns:
//   - error: Currently always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close stops the hub and shuts the server down, waiting up to 10 seconds
// for in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
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

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
