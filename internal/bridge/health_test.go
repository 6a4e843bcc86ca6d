package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct{ snap Snapshot }

func (s staticSource) Snapshot() Snapshot { return s.snap }

func decodeHealth(t *testing.T, msg publishedMessage) HealthMessage {
	t.Helper()
	var h HealthMessage
	require.NoError(t, json.Unmarshal([]byte(msg.payload), &h))
	return h
}

func TestHealthReporterTopic(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{NodeID: "car"})
	assert.Equal(t, "obd2mqtt/car/status", h.Topic())
	assert.Equal(t, 30*time.Second, h.interval)
}

func TestHealthReporterDetermineStatus(t *testing.T) {
	tests := []struct {
		name       string
		state      State
		lastErr    string
		mqttUp     bool
		wantStatus HealthStatus
		wantReason string
	}{
		{"connected", StateConnected, "", true, HealthHealthy, ""},
		{"connected without mqtt", StateConnected, "", false, HealthDegraded, "MQTT disconnected"},
		{"degraded", StateDegraded, "", true, HealthDegraded, "adapter health check failing"},
		{"disconnected with error", StateDisconnected, "obd: connection failed", true, HealthUnhealthy, "obd: connection failed"},
		{"connecting", StateConnecting, "", true, HealthUnhealthy, "diagnostic connection connecting"},
		{"stopping", StateStopping, "", true, HealthStopping, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := newMockPublisher()
			pub.setConnected(tt.mqttUp)
			h := NewHealthReporter(HealthReporterConfig{
				NodeID:    "car",
				Publisher: pub,
				Source:    staticSource{Snapshot{State: tt.state, LastError: tt.lastErr}},
			})

			status, reason := h.determineStatus()
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestHealthReporterPublishesRetained(t *testing.T) {
	pub := newMockPublisher()
	h := NewHealthReporter(HealthReporterConfig{
		NodeID:    "car",
		Version:   "1.2.3",
		Publisher: pub,
		Source: staticSource{Snapshot{
			State:         StateConnected,
			ActiveSensors: []string{"RPM"},
			Cycles:        3,
			Reconnects:    2,
		}},
	})

	require.NoError(t, h.PublishStarting())
	require.NoError(t, h.PublishNow())

	msgs := pub.onTopic("obd2mqtt/car/status")
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.True(t, m.retained)
		assert.Equal(t, byte(1), m.qos)
	}

	starting := decodeHealth(t, msgs[0])
	assert.Equal(t, HealthStarting, starting.Status)

	now := decodeHealth(t, msgs[1])
	assert.Equal(t, HealthHealthy, now.Status)
	assert.Equal(t, "1.2.3", now.Version)
	assert.Equal(t, "car", now.Node)
	assert.Equal(t, StateConnected, now.Connection.State)
	assert.Equal(t, []string{"RPM"}, now.Connection.ActiveSensors)
	assert.Equal(t, uint64(2), now.Connection.Reconnects)
}

func TestHealthReporterLoopAndStop(t *testing.T) {
	pub := newMockPublisher()
	h := NewHealthReporter(HealthReporterConfig{
		NodeID:    "car",
		Interval:  5 * time.Millisecond,
		Publisher: pub,
		Source:    staticSource{Snapshot{State: StateConnected}},
	})

	h.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(pub.onTopic("obd2mqtt/car/status")) >= 3
	}, time.Second, time.Millisecond)

	h.Stop()
	h.Stop()

	msgs := pub.onTopic("obd2mqtt/car/status")
	last := decodeHealth(t, msgs[len(msgs)-1])
	assert.Equal(t, HealthStopping, last.Status)

	count := len(msgs)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, pub.onTopic("obd2mqtt/car/status"), count, "no publishes after Stop")
}

func TestHealthReporterNilPublisher(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{NodeID: "car"})
	assert.NoError(t, h.PublishNow())
}
