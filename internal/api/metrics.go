package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Sensors       SensorMetrics  `json:"sensors"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// SensorMetrics sums the value-processing counters of all sensors.
type SensorMetrics struct {
	Configured    int    `json:"configured"`
	Active        int    `json:"active"`
	Published     uint64 `json:"published"`
	DecodeErrors  uint64 `json:"decode_errors"`
	RenderErrors  uint64 `json:"render_errors"`
	PublishErrors uint64 `json:"publish_errors"`
}

// handleMetrics returns runtime and publishing metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
	}

	sensors := s.supervisor.Sensors()
	metrics.Sensors.Configured = len(sensors)
	metrics.Sensors.Active = len(s.supervisor.ActiveSensors())
	for _, sensor := range sensors {
		st := sensor.Stats()
		metrics.Sensors.Published += st.Published
		metrics.Sensors.DecodeErrors += st.DecodeErrors
		metrics.Sensors.RenderErrors += st.RenderErrors
		metrics.Sensors.PublishErrors += st.PublishErrors
	}

	writeJSON(w, http.StatusOK, metrics)
}
