package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/obd2mqtt/internal/bridge"
	"github.com/nerrad567/obd2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/obd2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/obd2mqtt/internal/obd"
)

// fakeSupervisor implements StatusProvider.
type fakeSupervisor struct {
	snap    bridge.Snapshot
	sensors []*bridge.Sensor
	active  []*bridge.Sensor
}

func (f *fakeSupervisor) Snapshot() bridge.Snapshot       { return f.snap }
func (f *fakeSupervisor) Sensors() []*bridge.Sensor       { return f.sensors }
func (f *fakeSupervisor) ActiveSensors() []*bridge.Sensor { return f.active }

type fakeMQTT struct{ connected bool }

func (f fakeMQTT) IsConnected() bool { return f.connected }

func testConfig() config.APIConfig {
	return config.APIConfig{
		Host: "127.0.0.1",
		Port: 0,
		Timeouts: config.APITimeoutConfig{
			Read:  5,
			Write: 5,
			Idle:  5,
		},
	}
}

// testServer creates a Server over the default sensor set with RPM active.
func testServer(t *testing.T, state bridge.State, mqttUp bool) (*Server, *fakeSupervisor) {
	t.Helper()

	sensors := bridge.DefaultSensors("car", obd.NewCatalog())
	sup := &fakeSupervisor{
		snap:    bridge.Snapshot{State: state, Cycles: 1},
		sensors: sensors,
	}
	for _, s := range sensors {
		if s.Name() == "RPM" {
			sup.active = append(sup.active, s)
			sup.snap.ActiveSensors = []string{"RPM"}
		}
	}

	srv, err := New(Deps{
		Config:          testConfig(),
		Logger:          logging.Discard(),
		Supervisor:      sup,
		MQTT:            fakeMQTT{connected: mqttUp},
		DiscoveryPrefix: "homeassistant",
		Version:         "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, sup
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal: %v (body %s)", err, w.Body.String())
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Deps{Supervisor: &fakeSupervisor{}}); err == nil {
		t.Error("expected error without logger")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("expected error without supervisor")
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		state  bridge.State
		mqttUp bool
		want   string
	}{
		{"connected", bridge.StateConnected, true, "ok"},
		{"mqtt down", bridge.StateConnected, false, "degraded"},
		{"no vehicle", bridge.StateDisconnected, true, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, tt.state, tt.mqttUp)
			w := get(t, srv, "/api/v1/health")

			if w.Code != http.StatusOK {
				t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
			}
			var resp HealthResponse
			decode(t, w, &resp)
			if resp.Status != tt.want {
				t.Errorf("status = %q, want %q", resp.Status, tt.want)
			}
			if resp.Supervisor != tt.state {
				t.Errorf("supervisor = %v, want %v", resp.Supervisor, tt.state)
			}
			if resp.Version != "test" {
				t.Errorf("version = %q, want test", resp.Version)
			}
		})
	}
}

func TestHealth_ContentType(t *testing.T) {
	srv, _ := testServer(t, bridge.StateConnected, true)
	w := get(t, srv, "/api/v1/health")

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

// ─── Status and Sensors ────────────────────────────────────────────

func TestStatus(t *testing.T) {
	srv, _ := testServer(t, bridge.StateDegraded, true)
	w := get(t, srv, "/api/v1/status")

	var raw map[string]any
	decode(t, w, &raw)
	if raw["state"] != "degraded" {
		t.Errorf("state = %v, want degraded", raw["state"])
	}
	if raw["connection_cycles"] != float64(1) {
		t.Errorf("connection_cycles = %v, want 1", raw["connection_cycles"])
	}
}

func TestListSensors(t *testing.T) {
	srv, sup := testServer(t, bridge.StateConnected, true)
	w := get(t, srv, "/api/v1/sensors")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var list SensorList
	decode(t, w, &list)

	if list.Count != len(sup.sensors) {
		t.Errorf("count = %d, want %d", list.Count, len(sup.sensors))
	}
	if list.Active != 1 {
		t.Errorf("active = %d, want 1", list.Active)
	}

	for _, v := range list.Sensors {
		if v.Name != "FUEL_LEVEL" {
			continue
		}
		if v.UniqueID != "car_FUEL_LEVEL_7C02129" {
			t.Errorf("unique_id = %q", v.UniqueID)
		}
		if v.DiscoveryTopic != "homeassistant/sensor/car/car_FUEL_LEVEL_7C02129/config" {
			t.Errorf("discovery_topic = %q", v.DiscoveryTopic)
		}
		if v.Unit != "L" || v.Header != "7C0" || v.Active {
			t.Errorf("unexpected view %+v", v)
		}
	}
}

func TestGetSensor(t *testing.T) {
	srv, _ := testServer(t, bridge.StateConnected, true)

	w := get(t, srv, "/api/v1/sensors/rpm")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var v SensorView
	decode(t, w, &v)
	if v.Name != "RPM" || !v.Active || v.StateTopic != "obd/car_RPM_010C" {
		t.Errorf("unexpected view %+v", v)
	}

	w = get(t, srv, "/api/v1/sensors/WARP_DRIVE")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var e Error
	decode(t, w, &e)
	if e.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeNotFound)
	}
}

func TestMetrics(t *testing.T) {
	srv, sup := testServer(t, bridge.StateConnected, true)
	w := get(t, srv, "/api/v1/metrics")

	var m SystemMetrics
	decode(t, w, &m)
	if !m.MQTT.Connected {
		t.Error("mqtt.connected = false, want true")
	}
	if m.Sensors.Configured != len(sup.sensors) || m.Sensors.Active != 1 {
		t.Errorf("sensors = %+v", m.Sensors)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("goroutines = 0")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t, bridge.StateConnected, true)
	w := get(t, srv, "/api/v1/health")

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t, bridge.StateConnected, true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestRequestID_RejectsOversized(t *testing.T) {
	srv, _ := testServer(t, bridge.StateConnected, true)

	long := strings.Repeat("x", maxRequestIDLen+1)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", long)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	got := w.Header().Get("X-Request-ID")
	if got == long || got == "" {
		t.Errorf("X-Request-ID = %q, want a generated id", got)
	}
}

func TestRecovery(t *testing.T) {
	srv, _ := testServer(t, bridge.StateConnected, true)

	handler := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t, bridge.StateConnected, true)
	w := get(t, srv, "/api/v1/nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var e Error
	decode(t, w, &e)
	if e.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeNotFound)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := testServer(t, bridge.StateConnected, true)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
	if allow := w.Header().Get("Allow"); allow != http.MethodGet {
		t.Errorf("Allow = %q, want GET", allow)
	}
	var e Error
	decode(t, w, &e)
	if e.Code != ErrCodeMethodNotAllowed {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeMethodNotAllowed)
	}
}

func TestNoStore(t *testing.T) {
	srv, _ := testServer(t, bridge.StateConnected, true)
	w := get(t, srv, "/api/v1/status")

	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t, bridge.StateConnected, true)

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	addr := srv.Addr()

	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServer_CloseBeforeStart(t *testing.T) {
	srv, _ := testServer(t, bridge.StateConnected, true)
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if srv.Addr() != "" {
		t.Errorf("Addr() = %q before Start", srv.Addr())
	}
}
