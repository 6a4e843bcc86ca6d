package mqtt

import "fmt"

// Topic prefixes owned by the bridge. Discovery topics live under the
// configurable Home Assistant prefix instead.
const (
	// TopicPrefixState is the base for sensor value topics.
	TopicPrefixState = "obd"

	// TopicPrefixBridge is the base for bridge status topics.
	TopicPrefixBridge = "obd2mqtt"
)

// Availability payloads, in Home Assistant's default vocabulary.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Discovery("homeassistant", "sensor", "car", "car_RPM_010C")
//	// Returns: "homeassistant/sensor/car/car_RPM_010C/config"
type Topics struct{}

// Discovery returns the retained discovery config topic for an entity.
//
// Example: homeassistant/sensor/car/car_FUEL_LEVEL_7C02129/config
func (Topics) Discovery(prefix, component, nodeID, uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", prefix, component, nodeID, uniqueID)
}

// SensorState returns the value topic for a sensor.
//
// Example: obd/car_RPM_010C
func (Topics) SensorState(uniqueID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixState, uniqueID)
}

// HomeAssistantStatus returns the birth/will topic Home Assistant publishes
// "online" to when it (re)starts.
//
// Example: homeassistant/status
func (Topics) HomeAssistantStatus(prefix string) string {
	return fmt.Sprintf("%s/status", prefix)
}

// Availability returns the retained online/offline topic of this client.
// The broker publishes "offline" here through the will message on crash.
//
// Example: obd2mqtt/obd-service/availability
func (Topics) Availability(clientID string) string {
	return fmt.Sprintf("%s/%s/availability", TopicPrefixBridge, clientID)
}

// BridgeStatus returns the retained JSON status topic for a node.
//
// Example: obd2mqtt/car/status
func (Topics) BridgeStatus(nodeID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixBridge, nodeID)
}

// AllSensorStates returns a pattern matching every sensor value topic.
//
// Pattern: obd/+
func (Topics) AllSensorStates() string {
	return fmt.Sprintf("%s/+", TopicPrefixState)
}
