// obd2mqtt bridges an ELM327 diagnostic adapter to MQTT.
//
// Supported vehicle values are polled continuously, published as plain
// strings and announced to Home Assistant through MQTT discovery. The
// diagnostic connection is supervised: a car switched off or an adapter
// unplugged only pauses publishing until the link comes back.
//
// Configuration comes from an optional YAML file (OBD2MQTT_CONFIG, or
// configs/config.yaml when present) overlaid by environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/obd2mqtt/internal/api"
	"github.com/nerrad567/obd2mqtt/internal/bridge"
	"github.com/nerrad567/obd2mqtt/internal/elm327"
	"github.com/nerrad567/obd2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/obd2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/obd2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/obd2mqtt/internal/obd"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path, used only if it exists.
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting obd2mqtt",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// A bad watch list or device URL is a configuration error: fail before
	// touching the broker.
	catalog := obd.NewCatalog()
	sensors, err := bridge.SelectSensors(catalog, bridge.DefaultSensors(cfg.Discovery.NodeID, catalog), cfg.OBD.WatchCommands)
	if err != nil {
		return fmt.Errorf("selecting sensors: %w", err)
	}
	log.Info("sensors selected", "sensors", bridge.SensorNames(sensors))

	opener, err := elm327.DeviceOpener(cfg.OBD.Device, cfg.OBD.BaudRate)
	if err != nil {
		return fmt.Errorf("configuring adapter: %w", err)
	}

	mqttClient, err := mqtt.ConnectWithRetry(ctx, cfg.MQTT, cfg.MQTTRetryInterval(), log.Component("mqtt"))
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", mqttClient.Broker(),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	supervisor, err := bridge.NewSupervisor(bridge.SupervisorOptions{
		Dial: elm327.Dialer(elm327.Options{
			Open:    opener,
			Catalog: catalog,
			Timeout: cfg.OBDTimeout(),
			Fast:    cfg.OBD.Fast,
			Logger:  log.Component("elm327"),
		}),
		Publisher:           mqttClient,
		Sensors:             sensors,
		DiscoveryPrefix:     cfg.Discovery.Prefix,
		DiscoveryQoS:        mqttClient.QoS(),
		PollInterval:        cfg.PollInterval(),
		RetryInterval:       cfg.RetryInterval(),
		IgnoreAdapterHealth: cfg.OBD.IgnoreAdapterHealth,
		Logger:              log.Component("supervisor"),
	})
	if err != nil {
		return fmt.Errorf("creating supervisor: %w", err)
	}
	supervisor.SetOnStateChange(func(state bridge.State) {
		log.Info("diagnostic connection state changed", "state", state)
	})

	reporter := bridge.NewHealthReporter(bridge.HealthReporterConfig{
		NodeID:    cfg.Discovery.NodeID,
		Version:   version,
		Interval:  cfg.StatusInterval(),
		Publisher: mqttClient,
		Source:    supervisor,
		Logger:    log.Component("status"),
	})
	if pubErr := reporter.PublishStarting(); pubErr != nil {
		log.Warn("publishing starting status failed", "error", pubErr)
	}

	if watchErr := bridge.WatchHomeAssistant(mqttClient, cfg.Discovery.Prefix, supervisor, log); watchErr != nil {
		// Discovery still goes out on every connection; only the
		// re-announce after a Home Assistant restart is lost.
		log.Warn("subscribing to Home Assistant status failed", "error", watchErr)
	}

	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:          cfg.API,
			Logger:          log.Component("api"),
			Supervisor:      supervisor,
			MQTT:            mqttClient,
			DiscoveryPrefix: cfg.Discovery.Prefix,
			Version:         version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr = apiServer.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("status API disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return supervisor.Run(gctx)
	})

	reporter.Start(gctx)
	defer reporter.Stop()

	log.Info("initialisation complete, waiting for shutdown signal")

	err = g.Wait()
	log.Info("shutdown signal received, cleaning up")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	// Deferred calls run in reverse order: status reporter (publishes
	// "stopping"), API server, then MQTT.
	log.Info("obd2mqtt stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// OBD2MQTT_CONFIG wins; otherwise the default path is used when it exists,
// and "" (environment only) when it does not.
func getConfigPath() string {
	if path := os.Getenv("OBD2MQTT_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}
