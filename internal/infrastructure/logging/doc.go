// Package logging provides structured logging for obd2mqtt.
//
// It wraps log/slog with the service defaults used across the bridge:
// JSON output unless text is requested, level filtering, and service and
// version fields on every entry.
//
//	logging:
//	  level: "info"      # debug, info, warn, error (LOG_LEVEL)
//	  format: "json"     # json, text (LOG_FORMAT)
//	  output: "stdout"   # stdout, stderr (LOG_OUTPUT)
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("elm327").Info("adapter ready", "version", v)
//
// Raw adapter frames are logged at debug level only.
package logging
