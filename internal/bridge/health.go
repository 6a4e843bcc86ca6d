package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/obd2mqtt/internal/infrastructure/mqtt"
)

// HealthStatus is the bridge status published on the status topic.
type HealthStatus string

const (
	// HealthStarting is published once during startup.
	HealthStarting HealthStatus = "starting"

	// HealthHealthy means the diagnostic connection is up and MQTT is connected.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded means values are flowing but something is impaired.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy means no diagnostic connection.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthStopping is published during graceful shutdown.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the retained JSON document on the bridge status topic.
type HealthMessage struct {
	Node          string       `json:"node"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version"`
	Timestamp     time.Time    `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Connection    Snapshot     `json:"connection"`
}

// StatusSource provides the snapshot a health message is built from.
// *Supervisor satisfies it.
type StatusSource interface {
	Snapshot() Snapshot
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// NodeID selects the status topic.
	NodeID string

	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	Publisher Publisher

	Source StatusSource

	Logger Logger
}

// HealthReporter publishes periodic bridge status to MQTT.
type HealthReporter struct {
	nodeID    string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher Publisher
	source    StatusSource
	logger    Logger

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &HealthReporter{
		nodeID:    cfg.NodeID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		source:    cfg.Source,
		logger:    orNop(cfg.Logger),
		done:      make(chan struct{}),
	}
}

// Topic returns the status topic.
func (h *HealthReporter) Topic() string {
	return mqtt.Topics{}.BridgeStatus(h.nodeID)
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logger.Error("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Error("failed to publish health", "error", err)
			}
		}
	}
}

// determineStatus maps the supervisor state to a health status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.source == nil {
		return HealthUnhealthy, "no supervisor"
	}

	snap := h.source.Snapshot()
	switch snap.State {
	case StateConnected:
		if h.publisher == nil || !h.publisher.IsConnected() {
			return HealthDegraded, "MQTT disconnected"
		}
		return HealthHealthy, ""
	case StateDegraded:
		return HealthDegraded, "adapter health check failing"
	case StateStopping, StateStopped:
		return HealthStopping, ""
	default:
		if snap.LastError != "" {
			return HealthUnhealthy, snap.LastError
		}
		return HealthUnhealthy, "diagnostic connection " + snap.State.String()
	}
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	msg := HealthMessage{
		Node:          h.nodeID,
		Status:        status,
		Reason:        reason,
		Version:       h.version,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	if h.source != nil {
		msg.Connection = h.source.Snapshot()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return h.publisher.Publish(h.Topic(), payload, 1, true)
}
