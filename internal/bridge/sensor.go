package bridge

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/nerrad567/obd2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/obd2mqtt/internal/obd"
)

// componentSensor is the Home Assistant component all OBD entities use.
const componentSensor = "sensor"

// Sensor binds a diagnostic command to its MQTT presentation.
//
// Identity fields are fixed at construction; only the counters change.
// A Sensor is registered once per connection cycle.
type Sensor struct {
	nodeID    string
	name      string
	command   obd.Command
	component string
	presenter Presenter

	published    atomic.Uint64
	decodeErrors atomic.Uint64
	renderErrors atomic.Uint64
	publishErrs  atomic.Uint64
}

// SensorStats are a sensor's value-processing counters.
type SensorStats struct {
	Published     uint64 `json:"published"`
	DecodeErrors  uint64 `json:"decode_errors"`
	RenderErrors  uint64 `json:"render_errors"`
	PublishErrors uint64 `json:"publish_errors"`
}

// NewSensor creates a sensor with an explicit presenter.
func NewSensor(nodeID, name string, cmd obd.Command, presenter Presenter) *Sensor {
	if presenter == nil {
		presenter = RawPresenter{}
	}
	return &Sensor{
		nodeID:    nodeID,
		name:      name,
		command:   cmd,
		component: componentSensor,
		presenter: presenter,
	}
}

// NewRawSensor creates a sensor that publishes the value's text form.
func NewRawSensor(nodeID, name string, cmd obd.Command) *Sensor {
	return NewSensor(nodeID, name, cmd, RawPresenter{})
}

// NewUnitSensor creates a sensor that publishes a magnitude in unit.
func NewUnitSensor(nodeID, name string, cmd obd.Command, unit obd.Unit, deviceClass string) *Sensor {
	return NewSensor(nodeID, name, cmd, UnitPresenter{Unit: unit, DeviceClass: deviceClass})
}

// NewSelectingUnitSensor creates a unit sensor fed by one field of a
// composite value.
func NewSelectingUnitSensor(nodeID, name string, cmd obd.Command, unit obd.Unit, deviceClass string, sel Selector) *Sensor {
	return NewSensor(nodeID, name, cmd, SelectingPresenter{
		UnitPresenter: UnitPresenter{Unit: unit, DeviceClass: deviceClass},
		Select:        sel,
	})
}

// Name returns the sensor name (e.g. "HV_BATTERY_CURRENT").
func (s *Sensor) Name() string { return s.name }

// Command returns the command feeding this sensor.
func (s *Sensor) Command() obd.Command { return s.command }

// UniqueID is a pure function of node id, sensor name, command header and
// command bytes, so it is stable across restarts.
func (s *Sensor) UniqueID() string {
	return fmt.Sprintf("%s_%s_%s%s", s.nodeID, s.name, s.command.Header, s.command.Bytes)
}

// StateTopic returns the topic values are published to.
func (s *Sensor) StateTopic() string {
	return mqtt.Topics{}.SensorState(s.UniqueID())
}

// DisplayName returns the entity name shown by Home Assistant.
func (s *Sensor) DisplayName() string {
	return s.nodeID + "_" + strings.ToLower(s.name)
}

// Stats returns a snapshot of the counters.
func (s *Sensor) Stats() SensorStats {
	return SensorStats{
		Published:     s.published.Load(),
		DecodeErrors:  s.decodeErrors.Load(),
		RenderErrors:  s.renderErrors.Load(),
		PublishErrors: s.publishErrs.Load(),
	}
}

// DiscoveryInfo builds the discovery topic and config for prefix.
func (s *Sensor) DiscoveryInfo(prefix string) DiscoveryInfo {
	cfg := DiscoveryConfig{
		StateTopic: s.StateTopic(),
		Name:       s.DisplayName(),
		UniqueID:   s.UniqueID(),
		Device:     deviceFor(s.nodeID),
	}
	s.presenter.configure(&cfg)

	return DiscoveryInfo{
		Topic:  discoveryTopic(prefix, s.component, s.nodeID, s.UniqueID()),
		Config: cfg,
	}
}

// Register publishes the discovery config and then installs the value
// watcher on conn.
//
// The watcher is installed even if the discovery publish fails: the config
// is retained and re-sent on the next cycle, and values keep flowing to
// anyone already subscribed. The publish error is returned for logging.
// Registering the same sensor twice on one connection is not supported.
func (s *Sensor) Register(prefix string, pub Publisher, conn obd.Connection, qos byte, log Logger) error {
	err := s.DiscoveryInfo(prefix).Publish(pub, qos)

	log = orNop(log)
	conn.Watch(s.command, func(resp obd.Response) {
		s.ProcessValue(pub, resp, log)
	})

	return err
}

// ProcessValue decodes a response and publishes it to the state topic.
//
// It never panics and never returns an error: failures are logged with
// the command and raw payload, counted, and the value is dropped.
func (s *Sensor) ProcessValue(pub Publisher, resp obd.Response, log Logger) {
	log = orNop(log)

	defer func() {
		if r := recover(); r != nil {
			s.renderErrors.Add(1)
			log.Error("sensor value processing panic recovered",
				"sensor", s.name,
				"command", s.command.Name,
				"raw", rawHex(resp.Payload),
				"panic", r,
			)
		}
	}()

	log.Debug("obd response",
		"sensor", s.name,
		"command", s.command.Name,
		"raw", rawHex(resp.Payload),
	)

	value, err := s.command.Decode(resp.Payload)
	if err != nil {
		s.decodeErrors.Add(1)
		log.Warn("failed to decode value",
			"sensor", s.name,
			"command", s.command.Name,
			"raw", rawHex(resp.Payload),
			"error", err,
		)
		return
	}

	payload, err := s.presenter.render(value)
	if err != nil {
		s.renderErrors.Add(1)
		log.Warn("failed to render value",
			"sensor", s.name,
			"command", s.command.Name,
			"value", value.String(),
			"error", err,
		)
		return
	}

	if err := pub.Publish(s.StateTopic(), []byte(payload), 0, false); err != nil {
		s.publishErrs.Add(1)
		log.Warn("failed to publish value",
			"sensor", s.name,
			"topic", s.StateTopic(),
			"value", payload,
			"error", err,
		)
		return
	}
	s.published.Add(1)
}

// rawHex renders a payload for logs. Logging must never abort decoding,
// so any failure yields a placeholder.
func rawHex(b []byte) (out string) {
	defer func() {
		if recover() != nil {
			out = "<unprintable>"
		}
	}()
	return hex.EncodeToString(b)
}
