package bridge

import (
	"strings"

	"github.com/nerrad567/obd2mqtt/internal/infrastructure/mqtt"
)

// Subscriber is the MQTT subscribe capability. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Republisher re-sends discovery configs. *Supervisor satisfies it.
type Republisher interface {
	RepublishDiscovery()
}

// WatchHomeAssistant re-publishes discovery whenever Home Assistant
// announces "online" on its birth topic, so entities survive a Home
// Assistant restart with a non-persistent broker.
func WatchHomeAssistant(sub Subscriber, prefix string, target Republisher, log Logger) error {
	log = orNop(log)
	topic := mqtt.Topics{}.HomeAssistantStatus(prefix)

	return sub.Subscribe(topic, 1, func(_ string, payload []byte) error {
		if strings.TrimSpace(string(payload)) != mqtt.PayloadOnline {
			return nil
		}
		log.Info("home assistant online, republishing discovery", "topic", topic)
		target.RepublishDiscovery()
		return nil
	})
}
