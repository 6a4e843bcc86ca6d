package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for obd2mqtt.
// Values are loaded from an optional YAML file and overridden by environment
// variables.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	OBD       OBDConfig       `yaml:"obd"`
	Status    StatusConfig    `yaml:"status"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos" env:"MQTT_QOS"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
//
// MQTT_BROKER accepts either "host" or "host:port".
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"MQTT_BROKER"`
	Port     int    `yaml:"port" env:"MQTT_PORT"`
	TLS      bool   `yaml:"tls" env:"MQTT_TLS"`
	ClientID string `yaml:"client_id" env:"MQTT_CLIENT_NAME"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"MQTT_USERNAME"`
	Password string `yaml:"password" env:"MQTT_PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
// InitialDelay is also the interval of the startup connect loop.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" env:"MQTT_RETRY_INTERVAL"`
	MaxDelay     int `yaml:"max_delay"`
}

// DiscoveryConfig contains Home Assistant discovery settings.
type DiscoveryConfig struct {
	Prefix string `yaml:"prefix" env:"HASS_DISCOVERY_PREFIX"`
	NodeID string `yaml:"node_id" env:"NODE_ID"`
}

// OBDConfig contains diagnostic adapter and supervision settings.
// Intervals are fractional seconds.
type OBDConfig struct {
	// Device is the adapter URL: "serial:///dev/rfcomm0" or "tcp://192.168.0.10:35000".
	// A bare path is treated as a serial device.
	Device   string `yaml:"device" env:"OBD_DEVICE"`
	BaudRate int    `yaml:"baud_rate" env:"OBD_BAUD_RATE"`

	// WatchCommands selects sensors by command or sensor name. Empty watches everything.
	WatchCommands []string `yaml:"watch_commands" env:"OBD_WATCH_COMMANDS" envSeparator:","`

	PollInterval        float64 `yaml:"poll_interval" env:"OBD_POLL_INTERVAL"`
	RetryInterval       float64 `yaml:"retry_interval" env:"OBD_RETRY_INTERVAL"`
	Timeout             float64 `yaml:"timeout" env:"OBD_TIMEOUT"`
	IgnoreAdapterHealth bool    `yaml:"ignore_adapter_health" env:"OBD_IGNORE_ADAPTER_HEALTH"`

	// Fast appends the expected frame count to repeated queries.
	Fast bool `yaml:"fast" env:"OBD_FAST"`
}

// StatusConfig contains bridge status reporting settings.
type StatusConfig struct {
	Interval int `yaml:"interval" env:"STATUS_INTERVAL"`
}

// APIConfig contains status HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" env:"API_ENABLED"`
	Host     string           `yaml:"host" env:"API_HOST"`
	Port     int              `yaml:"port" env:"API_PORT"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
	Output string `yaml:"output" env:"LOG_OUTPUT"`
}

// Load builds the configuration.
//
// The loading order is:
//  1. Default values
//  2. YAML file values, if path is not empty
//  3. Environment variables
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for environment only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.normalise(); err != nil {
		return nil, fmt.Errorf("normalising config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "obd-service",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 5,
				MaxDelay:     60,
			},
		},
		Discovery: DiscoveryConfig{
			Prefix: "homeassistant",
			NodeID: "car",
		},
		OBD: OBDConfig{
			Device:        "serial:///dev/rfcomm0",
			BaudRate:      38400,
			WatchCommands: []string{"ELM_VERSION", "ELM_VOLTAGE", "RPM"},
			PollInterval:  5,
			RetryInterval: 10,
			Timeout:       5,
			Fast:          true,
		},
		Status: StatusConfig{
			Interval: 30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// watchCommandsEnv is read separately: set but blank means "watch every
// sensor", which env.Parse cannot tell apart from unset.
const watchCommandsEnv = "OBD_WATCH_COMMANDS"

// applyEnvOverrides overlays environment variables declared in the env
// struct tags. Unset variables leave the current value untouched.
func applyEnvOverrides(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(watchCommandsEnv); ok && strings.TrimSpace(strings.ReplaceAll(v, ",", "")) == "" {
		cfg.OBD.WatchCommands = nil
	}
	return nil
}

// normalise cleans values that commonly arrive in loose form from the
// environment.
func (c *Config) normalise() error {
	watch := make([]string, 0, len(c.OBD.WatchCommands))
	for _, name := range c.OBD.WatchCommands {
		if name = strings.TrimSpace(name); name != "" {
			watch = append(watch, name)
		}
	}
	c.OBD.WatchCommands = watch

	host := strings.TrimSpace(c.MQTT.Broker.Host)
	if h, p, ok := strings.Cut(host, ":"); ok {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("mqtt.broker.host %q: invalid port: %w", host, err)
		}
		host = h
		c.MQTT.Broker.Port = port
	}
	c.MQTT.Broker.Host = host

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.InitialDelay < 1 {
		errs = append(errs, "mqtt.reconnect.initial_delay must be at least 1 second")
	}

	// Discovery: both values become topic levels.
	if err := validateTopicLevel(c.Discovery.Prefix); err != nil {
		errs = append(errs, "discovery.prefix "+err.Error())
	}
	if err := validateTopicLevel(c.Discovery.NodeID); err != nil {
		errs = append(errs, "discovery.node_id "+err.Error())
	}

	// OBD
	if c.OBD.Device == "" {
		errs = append(errs, "obd.device is required")
	}
	if c.OBD.BaudRate <= 0 {
		errs = append(errs, "obd.baud_rate must be positive")
	}
	if c.OBD.PollInterval <= 0 {
		errs = append(errs, "obd.poll_interval must be positive")
	}
	if c.OBD.RetryInterval <= 0 {
		errs = append(errs, "obd.retry_interval must be positive")
	}
	if c.OBD.Timeout <= 0 {
		errs = append(errs, "obd.timeout must be positive")
	}

	if c.Status.Interval < 1 {
		errs = append(errs, "status.interval must be at least 1 second")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

var errInvalidTopicLevel = errors.New("must be a non-empty MQTT topic level without '/', '+' or '#'")

func validateTopicLevel(s string) error {
	if s == "" || strings.ContainsAny(s, "/+#") {
		return errInvalidTopicLevel
	}
	return nil
}

// PollInterval returns the diagnostic health poll interval.
func (c *Config) PollInterval() time.Duration {
	return seconds(c.OBD.PollInterval)
}

// RetryInterval returns the delay between diagnostic connection attempts.
func (c *Config) RetryInterval() time.Duration {
	return seconds(c.OBD.RetryInterval)
}

// OBDTimeout returns the per-request adapter timeout.
func (c *Config) OBDTimeout() time.Duration {
	return seconds(c.OBD.Timeout)
}

// MQTTRetryInterval returns the delay between startup broker connection attempts.
func (c *Config) MQTTRetryInterval() time.Duration {
	return time.Duration(c.MQTT.Reconnect.InitialDelay) * time.Second
}

// StatusInterval returns the bridge status publish interval.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Status.Interval) * time.Second
}

// ReadTimeout returns the API read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
