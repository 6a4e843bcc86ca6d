// Package bridge turns diagnostic responses into Home Assistant entities.
//
// A Sensor binds one obd.Command to a Presenter. On registration it
// publishes a retained discovery config and installs a watcher on the
// connection; every response is then decoded, rendered and published to
// the sensor's state topic.
//
// # Architecture
//
//	┌──────────────┐ Response ┌──────────────┐  MQTT  ┌────────────────┐
//	│ obd adapter  │─────────►│    Sensor    │───────►│ Home Assistant │
//	└──────────────┘          └──────────────┘        └────────────────┘
//	        ▲                                                  │
//	        │ Dial/Connect/Status/Stop       homeassistant/status
//	┌──────────────┐                                           │
//	│  Supervisor  │◄──────────── RepublishDiscovery ──────────┘
//	└──────────────┘
//
// The Supervisor owns the connection. It dials, gates on adapter health,
// registers the supported sensors, polls health and reconnects with a
// fresh handle when the adapter or vehicle goes away.
//
// # Topics
//
//	{prefix}/sensor/{node}/{unique_id}/config   discovery (retained)
//	obd/{unique_id}                              values
//	obd2mqtt/{node}/status                       bridge health (retained)
//
// Unique ids have the form {node}_{SENSOR}_{header}{command}, for example
// car_FUEL_LEVEL_7C02129, and never change between restarts.
//
// # Thread Safety
//
// Sensors are immutable apart from their atomic counters. Supervisor and
// HealthReporter methods are safe for concurrent use.
package bridge
