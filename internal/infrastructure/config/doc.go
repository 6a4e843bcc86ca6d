// Package config handles loading and validating obd2mqtt configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Overriding with environment variables (MQTT_BROKER, NODE_ID, ...)
//   - Validation of required fields
//   - Default value handling
//
// The environment variable names match the ones the bridge has always used,
// so a deployment configured purely through the environment keeps working
// without a config file.
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("OBD2MQTT_CONFIG"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Discovery.NodeID)
package config
