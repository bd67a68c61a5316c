// Command manage runs the recorder management service.
//
// It keeps recording devices (over MQTT), browser consoles (over WebSocket)
// and the SQLite store in sync, and starts and stops scheduled recordings.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/manage-core/internal/api"
	"github.com/nerrad567/manage-core/internal/cache"
	"github.com/nerrad567/manage-core/internal/infrastructure/config"
	"github.com/nerrad567/manage-core/internal/infrastructure/database"
	"github.com/nerrad567/manage-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/manage-core/internal/infrastructure/logging"
	"github.com/nerrad567/manage-core/internal/infrastructure/metrics"
	"github.com/nerrad567/manage-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/manage-core/internal/manager"
	"github.com/nerrad567/manage-core/internal/pilot"
	"github.com/nerrad567/manage-core/internal/store"
	"github.com/nerrad567/manage-core/internal/timer"
	_ "github.com/nerrad567/manage-core/migrations"
)

// Set at build time:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts every component in dependency order, blocks in the manager
// loop until ctx is cancelled, then tears down in reverse.
//
//nolint:gocognit,gocyclo // linear startup sequence
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting manage", "version", version, "commit", commit, "build_date", date)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	// Storage.
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Device channel.
	topics := mqtt.Topics{Prefix: cfg.Devices.TopicPrefix}
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	checks := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}

	// Telemetry sink, optional.
	var telemetry manager.Telemetry
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "org", cfg.InfluxDB.Org, "bucket", cfg.InfluxDB.Bucket)
	}

	// Timer.
	timers := timer.New(cfg.Location())
	timers.SetLogger(log.With("component", "timer"))
	timers.Start()
	defer func() {
		if stopErr := timers.Stop(context.Background()); stopErr != nil {
			log.Error("error stopping timer", "error", stopErr)
		}
	}()

	// Pilots. Both stop with ctx.
	devices := pilot.NewDevicePilot(mqttClient, pilot.DeviceConfig{
		TopicPrefix:    cfg.Devices.TopicPrefix,
		QoS:            byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
		RequestTimeout: cfg.GetRequestTimeout(),
	})
	devices.SetLogger(log.With("component", "device_pilot"))
	if startErr := devices.Start(ctx); startErr != nil {
		return fmt.Errorf("starting device pilot: %w", startErr)
	}

	browsers := pilot.NewBrowserPilot(hubConfig(cfg))
	browsers.SetLogger(log.With("component", "browser_pilot"))
	browsers.Start(ctx)

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	m.Watch("browsers_connected", "Browsers currently connected.", browsers.ClientCount)
	m.Watch("timer_jobs", "Timer jobs currently registered.", timers.Len)

	// Orchestrator.
	registry := cache.New()
	registry.SetLogger(log.With("component", "cache"))
	mgr := manager.New(manager.Deps{
		Cache:     registry,
		Devices:   store.NewDeviceProvider(db.DB),
		Groups:    store.NewGroupProvider(db.DB),
		Channel:   devices,
		Browsers:  browsers,
		Timer:     timers,
		Events:    devices.Events(),
		Requests:  browsers.Requests(),
		Fired:     timers.Fired(),
		Telemetry: telemetry,
		Metrics:   m,
		Logger:    log.With("component", "manager"),
		Location:  cfg.Location(),
	})
	if loadErr := mgr.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading manager state: %w", loadErr)
	}

	// HTTP surface.
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log.With("component", "api"),
		Browsers: browsers,
		Metrics:  metrics.Handler(reg),
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("manage started", "api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	if runErr := mgr.Run(ctx); runErr != nil {
		return fmt.Errorf("manager: %w", runErr)
	}

	log.Info("shutdown signal received, stopping")
	return nil
}

// hubConfig converts the websocket and security sections into browser
// connection settings. The burst allows one second of sustained traffic.
func hubConfig(cfg *config.Config) pilot.HubConfig {
	burst := int(cfg.Security.BrowserRateLimit)
	if burst < 1 {
		burst = 1
	}
	return pilot.HubConfig{
		MaxMessageSize: int64(cfg.WebSocket.MaxMessageSize),
		PingInterval:   seconds(cfg.WebSocket.PingInterval),
		PongTimeout:    seconds(cfg.WebSocket.PongTimeout),
		RateLimit:      cfg.Security.BrowserRateLimit,
		RateBurst:      burst,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
