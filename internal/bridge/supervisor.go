package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/obd2mqtt/internal/obd"
)

// Supervisor defaults.
const (
	defaultPollInterval  = 5 * time.Second
	defaultRetryInterval = 10 * time.Second
)

// State is the supervisor's connection lifecycle state.
type State int

// Supervisor states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDegraded
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateDisconnected; st <= StateStopped; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown supervisor state %q", string(b))
}

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	// Dial creates a fresh connection for every attempt. Required.
	Dial obd.Dialer

	// Publisher receives discovery configs and values. Required.
	Publisher Publisher

	// Sensors is the configured watch set.
	Sensors []*Sensor

	DiscoveryPrefix string

	// DiscoveryQoS is used for the retained discovery configs.
	DiscoveryQoS byte

	// PollInterval is the health check period. Default: 5 seconds.
	PollInterval time.Duration

	// RetryInterval is the wait after a failed connection attempt. Default: 10 seconds.
	RetryInterval time.Duration

	// IgnoreAdapterHealth accepts a connection as soon as Connect succeeds
	// and keeps it through health checks that fail with an error (reported
	// as degraded). An explicit unhealthy status still reconnects.
	IgnoreAdapterHealth bool

	Logger Logger
}

// Snapshot is a point-in-time view of the supervisor.
type Snapshot struct {
	State          State     `json:"state"`
	ActiveSensors  []string  `json:"active_sensors"`
	Cycles         uint64    `json:"connection_cycles"`
	Reconnects     uint64    `json:"reconnects"`
	LastError      string    `json:"last_error,omitempty"`
	ConnectedSince time.Time `json:"connected_since,omitzero"`
}

// Supervisor keeps a diagnostic connection alive and its sensors
// registered.
//
// It owns the connection handle: only the supervisor goroutine calls
// Connect, Start and Stop, and each (re)connection uses a new handle from
// Dial with fresh registrations. Sensor callbacks only read immutable
// sensor state.
//
// Thread Safety:
//   - Run must be called once. Stop and Snapshot are safe from any goroutine.
type Supervisor struct {
	dial            obd.Dialer
	publisher       Publisher
	sensors         []*Sensor
	prefix          string
	discoveryQoS    byte
	pollInterval    time.Duration
	retryInterval   time.Duration
	ignoreHealth    bool
	logger          Logger
	onStateChange   func(State)
	onStateChangeMu sync.RWMutex

	mu             sync.RWMutex
	state          State
	active         []*Sensor
	cycles         uint64
	reconnects     uint64
	lastErr        error
	connectedSince time.Time

	started  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewSupervisor validates opts and applies defaults.
func NewSupervisor(opts SupervisorOptions) (*Supervisor, error) {
	if opts.Dial == nil {
		return nil, fmt.Errorf("supervisor: dial function is required")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("supervisor: publisher is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}

	return &Supervisor{
		dial:          opts.Dial,
		publisher:     opts.Publisher,
		sensors:       opts.Sensors,
		prefix:        opts.DiscoveryPrefix,
		discoveryQoS:  opts.DiscoveryQoS,
		pollInterval:  opts.PollInterval,
		retryInterval: opts.RetryInterval,
		ignoreHealth:  opts.IgnoreAdapterHealth,
		logger:        orNop(opts.Logger),
		state:         StateDisconnected,
		done:          make(chan struct{}),
	}, nil
}

// SetOnStateChange registers a callback invoked after every state change.
// It runs on the supervisor goroutine and must not block.
func (s *Supervisor) SetOnStateChange(fn func(State)) {
	s.onStateChangeMu.Lock()
	s.onStateChange = fn
	s.onStateChangeMu.Unlock()
}

// Run supervises connections until ctx is cancelled or Stop is called.
// It returns nil on a requested stop.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	defer s.setState(StateStopped)

	for ctx.Err() == nil {
		s.setState(StateConnecting)
		conn := s.dial()

		if err := s.establish(ctx, conn); err != nil {
			s.teardown(conn)
			if ctx.Err() != nil {
				break
			}
			s.recordError(err)
			s.logger.Warn("diagnostic connection failed",
				"error", err,
				"retry_in", s.retryInterval,
			)
			s.setState(StateDisconnected)
			if !s.wait(ctx, s.retryInterval) {
				break
			}
			continue
		}

		s.monitor(ctx, conn)
		s.teardown(conn)
		s.clearActive()

		if ctx.Err() != nil {
			break
		}
		s.mu.Lock()
		s.reconnects++
		s.mu.Unlock()
		s.setState(StateDisconnected)
	}

	s.setState(StateStopping)
	s.clearActive()
	s.logger.Info("supervisor stopped")
	return nil
}

// Stop requests shutdown. Run returns after tearing down the current
// connection. Safe to call multiple times.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// Snapshot returns the current state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		State:          s.state,
		ActiveSensors:  SensorNames(s.active),
		Cycles:         s.cycles,
		Reconnects:     s.reconnects,
		ConnectedSince: s.connectedSince,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Sensors returns the configured watch set.
func (s *Supervisor) Sensors() []*Sensor {
	return s.sensors
}

// ActiveSensors returns the sensors registered on the current connection.
func (s *Supervisor) ActiveSensors() []*Sensor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Sensor(nil), s.active...)
}

// RepublishDiscovery re-sends the discovery configs of the active sensors.
// Used when Home Assistant announces a restart.
func (s *Supervisor) RepublishDiscovery() {
	for _, sensor := range s.ActiveSensors() {
		if err := sensor.DiscoveryInfo(s.prefix).Publish(s.publisher, s.discoveryQoS); err != nil {
			s.logger.Warn("failed to republish discovery", "sensor", sensor.Name(), "error", err)
		}
	}
}

// establish connects conn, registers the supported sensors and starts
// value delivery.
func (s *Supervisor) establish(ctx context.Context, conn obd.Connection) error {
	if err := s.connect(ctx, conn); err != nil {
		return err
	}

	if s.ignoreHealth {
		s.logger.Warn("adapter health gate bypassed", "reason", "ignore_adapter_health")
	} else {
		status, err := s.checkHealth(ctx, conn)
		if err != nil {
			return err
		}
		if status != obd.StatusCarConnected {
			return fmt.Errorf("%w: adapter status %s", obd.ErrConnectionFailed, status)
		}
	}

	supported := conn.Supported()
	active := FilterSupported(s.sensors, supported)

	for _, sensor := range active {
		if err := sensor.Register(s.prefix, s.publisher, conn, s.discoveryQoS, s.logger); err != nil {
			s.logger.Warn("discovery publish failed, watching anyway",
				"sensor", sensor.Name(),
				"error", err,
			)
		}
	}
	conn.Start()

	s.mu.Lock()
	s.active = active
	s.cycles++
	s.lastErr = nil
	s.connectedSince = time.Now()
	s.mu.Unlock()
	s.setState(StateConnected)

	s.logger.Info("diagnostic connection established",
		"supported_commands", len(supported),
		"active_sensors", SensorNames(active),
		"skipped_sensors", len(s.sensors)-len(active),
	)
	return nil
}

func (s *Supervisor) connect(ctx context.Context, conn obd.Connection) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: connect panic: %v", obd.ErrConnectionFailed, r)
		}
	}()
	return conn.Connect(ctx)
}

// checkHealth runs a status query. A failing or panicking query counts
// as unhealthy.
func (s *Supervisor) checkHealth(ctx context.Context, conn obd.Connection) (status obd.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, err = obd.StatusNotConnected, fmt.Errorf("%w: health check panic: %v", obd.ErrConnectionFailed, r)
		}
	}()
	return conn.Status(ctx)
}

// monitor polls health until the connection is lost or shutdown is requested.
func (s *Supervisor) monitor(ctx context.Context, conn obd.Connection) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := s.checkHealth(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		if err == nil && status == obd.StatusCarConnected {
			if s.State() == StateDegraded {
				s.logger.Info("diagnostic connection recovered")
			}
			s.setState(StateConnected)
			continue
		}

		// The ignore flag tolerates a failing check only; an explicit
		// not-connected or adapter-only answer still redials.
		if err != nil && s.ignoreHealth {
			s.recordError(err)
			if s.State() != StateDegraded {
				s.logger.Warn("diagnostic connection degraded", "error", err)
			}
			s.setState(StateDegraded)
			continue
		}

		if err == nil {
			err = fmt.Errorf("%w: adapter status %s", obd.ErrConnectionFailed, status)
		}
		s.recordError(err)

		s.logger.Warn("diagnostic connection unhealthy, reconnecting", "error", err)
		return
	}
}

// teardown stops conn, swallowing errors and panics.
func (s *Supervisor) teardown(conn obd.Connection) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("connection stop panicked", "panic", r)
		}
	}()
	if err := conn.Stop(); err != nil {
		s.logger.Debug("connection stop failed", "error", err)
	}
}

// wait sleeps for d unless shutdown is requested first.
func (s *Supervisor) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev == state {
		return
	}
	s.logger.Debug("supervisor state changed", "from", prev.String(), "to", state.String())

	s.onStateChangeMu.RLock()
	fn := s.onStateChange
	s.onStateChangeMu.RUnlock()
	if fn != nil {
		fn(state)
	}
}

func (s *Supervisor) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Supervisor) clearActive() {
	s.mu.Lock()
	s.active = nil
	s.connectedSince = time.Time{}
	s.mu.Unlock()
}
