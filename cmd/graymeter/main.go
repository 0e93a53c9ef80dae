// Gray Meter Core - HAN Smart Meter Bridge
//
// This is the main entry point for the Gray Meter Core application.
// It maintains a resilient websocket connection to a HAN serial bridge,
// validates and decodes the meter's binary frames, and fans readings
// out to MQTT, SQLite history and InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-meter-core/migrations"

	"github.com/nerrad567/gray-meter-core/internal/export"
	"github.com/nerrad567/gray-meter-core/internal/history"
	"github.com/nerrad567/gray-meter-core/internal/infrastructure/config"
	"github.com/nerrad567/gray-meter-core/internal/infrastructure/database"
	"github.com/nerrad567/gray-meter-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-meter-core/internal/infrastructure/logging"
	"github.com/nerrad567/gray-meter-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-meter-core/internal/meter"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Grace period for the connection loop to wind down on shutdown.
const shutdownTimeout = 5 * time.Second

// How often stale history rows are pruned.
const pruneInterval = 6 * time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Meter Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		// Set up MQTT logging callbacks
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Create the connection manager
	manager := meter.NewManager(meter.Options{
		Config: cfg.Meter,
		Logger: log,
	})

	// Wire sinks
	if mqttClient != nil {
		publisher := export.NewPublisher(cfg.Meter.ID, byte(cfg.MQTT.QoS), mqttClient) //nolint:gosec // QoS is validated to 0-2
		publisher.SetLogger(log)
		manager.Subscribe(publisher)
	}

	if cfg.History.Enabled {
		store := history.NewStore(db.DB)
		recorder := export.NewRecorder(cfg.Meter.ID, store)
		recorder.SetLogger(log)
		manager.Subscribe(recorder)

		go pruneLoop(ctx, store, cfg.History.GetRetention(), log)
		log.Info("history enabled", "retention", cfg.History.GetRetention())
	} else {
		log.Info("history disabled")
	}

	if influxClient != nil {
		manager.Subscribe(export.NewMetricsRecorder(cfg.Meter.ID, influxClient))
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Start the meter connection loop
	manager.Start()
	defer func() {
		log.Info("stopping meter connection")
		manager.Stop(shutdownTimeout)
	}()
	log.Info("meter connection started", "endpoint", cfg.Meter.Endpoint())

	// Periodic bridge status to MQTT
	if mqttClient != nil {
		reporter := export.NewStatusReporter(export.StatusReporterConfig{
			MeterID:   cfg.Meter.ID,
			Version:   version,
			Interval:  cfg.Meter.GetStatusInterval(),
			Publisher: mqttClient,
			Source:    manager,
		})
		reporter.SetLogger(log)
		reporter.Start(ctx)
		defer reporter.Stop()
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Status reporter
	// 2. Meter connection
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Gray Meter Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYMETER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYMETER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// pruneLoop deletes readings past the retention window at a fixed
// interval until the context is cancelled.
func pruneLoop(ctx context.Context, store *history.Store, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.Prune(ctx, retention)
			if err != nil {
				log.Error("history prune failed", "error", err)
				continue
			}
			if deleted > 0 {
				log.Info("history pruned", "deleted", deleted)
			}
		}
	}
}
