package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/obd2mqtt/internal/infrastructure/mqtt"
)

// deviceName is the display name of the device all entities attach to.
const deviceName = "OBD"

// DiscoveryDevice groups the bridge's entities under one device.
type DiscoveryDevice struct {
	Identifiers []string `json:"identifiers"`
	Name        string   `json:"name"`
}

// DiscoveryConfig is the Home Assistant MQTT discovery payload of a sensor.
type DiscoveryConfig struct {
	UnitOfMeasurement string          `json:"unit_of_measurement,omitempty"`
	DeviceClass       string          `json:"device_class,omitempty"`
	StateTopic        string          `json:"state_topic"`
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	Device            DiscoveryDevice `json:"device"`
}

// DiscoveryInfo is a discovery config together with the topic it is
// published to.
type DiscoveryInfo struct {
	Topic  string
	Config DiscoveryConfig
}

// Payload serialises the config.
func (d DiscoveryInfo) Payload() ([]byte, error) {
	b, err := json.Marshal(d.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}
	return b, nil
}

// Publish sends the config retained, so subscribers joining later still
// discover the entity.
func (d DiscoveryInfo) Publish(pub Publisher, qos byte) error {
	payload, err := d.Payload()
	if err != nil {
		return err
	}
	if err := pub.Publish(d.Topic, payload, qos, true); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDiscoveryFailed, d.Topic, err)
	}
	return nil
}

func deviceFor(nodeID string) DiscoveryDevice {
	return DiscoveryDevice{
		Identifiers: []string{"obd_" + nodeID},
		Name:        deviceName,
	}
}

func discoveryTopic(prefix, component, nodeID, uniqueID string) string {
	return mqtt.Topics{}.Discovery(prefix, component, nodeID, uniqueID)
}
