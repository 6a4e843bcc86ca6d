package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/obd2mqtt/internal/bridge"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(noStoreMiddleware)

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/sensors", func(r chi.Router) {
			r.Get("/", s.handleListSensors)
			r.Get("/{name}", s.handleGetSensor)
		})
	})

	return r
}

// HealthResponse is the liveness document.
type HealthResponse struct {
	Status        string       `json:"status"`
	Version       string       `json:"version"`
	Supervisor    bridge.State `json:"supervisor"`
	MQTTConnected bool         `json:"mqtt_connected"`
}

// handleHealth always answers 200 while the process serves requests; the
// body tells whether values are flowing.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.supervisor.Snapshot().State
	mqttUp := s.mqtt != nil && s.mqtt.IsConnected()

	status := "ok"
	if state != bridge.StateConnected || !mqttUp {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		Version:       s.version,
		Supervisor:    state,
		MQTTConnected: mqttUp,
	})
}

// handleStatus returns the supervisor snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.supervisor.Snapshot())
}
