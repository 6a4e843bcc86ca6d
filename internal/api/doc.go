// Package api implements the read-only HTTP status API of the bridge.
//
// This package provides:
//   - Liveness and bridge status endpoints
//   - The configured sensors with their topics, activity and counters
//   - Runtime metrics
//   - Middleware stack (request ID, logging, recovery)
//
// # Endpoints
//
//	GET /api/v1/health          liveness, supervisor state, MQTT link
//	GET /api/v1/status          supervisor snapshot
//	GET /api/v1/sensors         configured sensors
//	GET /api/v1/sensors/{name}  one sensor
//	GET /api/v1/metrics         runtime and publish counters
//
// The API is disabled by default and binds to the configured host only.
// It never changes bridge state.
package api
