package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/obd2mqtt/internal/bridge"
)

// SensorView describes one configured sensor.
type SensorView struct {
	Name           string             `json:"name"`
	Command        string             `json:"command"`
	Request        string             `json:"request"`
	Header         string             `json:"header,omitempty"`
	UniqueID       string             `json:"unique_id"`
	DisplayName    string             `json:"display_name"`
	StateTopic     string             `json:"state_topic"`
	DiscoveryTopic string             `json:"discovery_topic"`
	Unit           string             `json:"unit_of_measurement,omitempty"`
	DeviceClass    string             `json:"device_class,omitempty"`
	Active         bool               `json:"active"`
	Stats          bridge.SensorStats `json:"stats"`
}

// SensorList is the response of the sensor listing.
type SensorList struct {
	Sensors []SensorView `json:"sensors"`
	Count   int          `json:"count"`
	Active  int          `json:"active"`
}

func (s *Server) activeSet() map[string]bool {
	active := make(map[string]bool)
	for _, sensor := range s.supervisor.ActiveSensors() {
		active[sensor.UniqueID()] = true
	}
	return active
}

func (s *Server) viewOf(sensor *bridge.Sensor, active map[string]bool) SensorView {
	info := sensor.DiscoveryInfo(s.discoveryPrefix)
	cmd := sensor.Command()
	return SensorView{
		Name:           sensor.Name(),
		Command:        cmd.Name,
		Request:        cmd.Bytes,
		Header:         cmd.Header,
		UniqueID:       sensor.UniqueID(),
		DisplayName:    sensor.DisplayName(),
		StateTopic:     sensor.StateTopic(),
		DiscoveryTopic: info.Topic,
		Unit:           info.Config.UnitOfMeasurement,
		DeviceClass:    info.Config.DeviceClass,
		Active:         active[sensor.UniqueID()],
		Stats:          sensor.Stats(),
	}
}

// handleListSensors returns every configured sensor.
func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	active := s.activeSet()
	sensors := s.supervisor.Sensors()

	list := SensorList{Sensors: make([]SensorView, 0, len(sensors))}
	for _, sensor := range sensors {
		view := s.viewOf(sensor, active)
		if view.Active {
			list.Active++
		}
		list.Sensors = append(list.Sensors, view)
	}
	list.Count = len(list.Sensors)

	writeJSON(w, http.StatusOK, list)
}

// handleGetSensor returns one sensor by name (case-insensitive).
func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	name := strings.ToUpper(chi.URLParam(r, "name"))

	for _, sensor := range s.supervisor.Sensors() {
		if sensor.Name() == name {
			writeJSON(w, http.StatusOK, s.viewOf(sensor, s.activeSet()))
			return
		}
	}
	writeNotFound(w, "sensor not found")
}
