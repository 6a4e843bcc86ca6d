package mqtt

import (
	"fmt"
	"strings"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends a message to the specified topic and waits for the
// broker acknowledgment (QoS 1/2) or the local send (QoS 0).
//
// Sensor values are published with QoS 0 and not retained; discovery
// configs and status with QoS 1 and retained.
//
// Returns:
//   - error: nil on success, or an error wrapping ErrPublishFailed,
//     ErrNotConnected, ErrInvalidTopic or ErrInvalidQoS
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcard in publish topic %q", ErrInvalidTopic, topic)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return fmt.Errorf("%w: %w", ErrPublishFailed, ErrNotConnected)
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// QoS returns the configured QoS for retained bridge metadata.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}
