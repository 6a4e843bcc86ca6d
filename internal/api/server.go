package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/obd2mqtt/internal/bridge"
	"github.com/nerrad567/obd2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/obd2mqtt/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StatusProvider exposes the supervisor state. *bridge.Supervisor satisfies it.
type StatusProvider interface {
	Snapshot() bridge.Snapshot
	Sensors() []*bridge.Sensor
	ActiveSensors() []*bridge.Sensor
}

// ConnectionChecker reports the MQTT link. *mqtt.Client satisfies it.
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config          config.APIConfig
	Logger          *logging.Logger
	Supervisor      StatusProvider
	MQTT            ConnectionChecker // optional
	DiscoveryPrefix string
	Version         string
}

// Server is the HTTP status API.
//
// It is created with New(), started with Start() and stopped with Close().
type Server struct {
	cfg             config.APIConfig
	logger          *logging.Logger
	supervisor      StatusProvider
	mqtt            ConnectionChecker
	discoveryPrefix string
	version         string
	startTime       time.Time
	server          *http.Server
	listener        net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Supervisor == nil {
		return nil, fmt.Errorf("supervisor is required")
	}

	return &Server{
		cfg:             deps.Config,
		logger:          deps.Logger,
		supervisor:      deps.Supervisor,
		mqtt:            deps.MQTT,
		discoveryPrefix: deps.DiscoveryPrefix,
		version:         deps.Version,
		startTime:       time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
// Binding errors (port in use) are returned immediately.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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
