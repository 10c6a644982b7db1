// PlantStream - Industrial Telemetry Pipeline
//
// This is the main entry point for the PlantStream core service. It
// ingests machine telemetry and tracking events from the plant MQTT
// broker, normalizes them into time-series points, detects anomalies,
// and persists everything to InfluxDB with batched writes and an
// immediate alert path.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/plantstream/core/internal/anomaly"
	"github.com/plantstream/core/internal/catalog"
	"github.com/plantstream/core/internal/health"
	"github.com/plantstream/core/internal/infrastructure/config"
	"github.com/plantstream/core/internal/infrastructure/influxdb"
	"github.com/plantstream/core/internal/infrastructure/logging"
	"github.com/plantstream/core/internal/infrastructure/mqtt"
	"github.com/plantstream/core/internal/normalize"
	"github.com/plantstream/core/internal/pipeline"
	"github.com/plantstream/core/internal/sysmon"
	"github.com/plantstream/core/internal/writer"
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

func main() {
	// Cancel on interrupt signals for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting PlantStream",
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

	// Connect to InfluxDB. The connect performs a health probe; the
	// pipeline cannot run without a reachable store.
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
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
		"alert_bucket", cfg.InfluxDB.AlertBucket,
	)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
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

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Open the piece catalog (optional)
	var materials normalize.MaterialLookup
	if cfg.Catalog.Enabled {
		pieceCatalog, catErr := catalog.Open(cfg.Catalog.Path)
		if catErr != nil {
			return fmt.Errorf("opening piece catalog: %w", catErr)
		}
		defer func() {
			log.Info("closing piece catalog")
			if closeErr := pieceCatalog.Close(); closeErr != nil {
				log.Error("error closing catalog", "error", closeErr)
			}
		}()
		materials = pieceCatalog
		log.Info("piece catalog opened", "path", cfg.Catalog.Path)
	} else {
		// The nil catalog still answers from the piece ID heuristic.
		materials = (*catalog.Catalog)(nil)
	}

	// Pick the anomaly scorer
	var scorer anomaly.Scorer
	if cfg.Processing.ModelScoring {
		scorer = anomaly.NewModelScorer()
		log.Info("anomaly scoring enabled", "scorer", "model")
	} else {
		scorer = anomaly.NewThresholdScorer()
		log.Info("anomaly scoring enabled", "scorer", "threshold")
	}

	// Assemble the pipeline
	w := writer.New(influxClient,
		cfg.Processing.BatchSize,
		cfg.GetFlushInterval(),
		cfg.GetRetryRetention(),
		log)
	tracker := sysmon.New(log)
	normalizer := normalize.New(cfg.Thresholds, scorer, materials, cfg.Processing.WindowSize, log)

	coordinator := pipeline.New(mqttClient, normalizer, w, tracker, cfg, log)
	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}
	defer coordinator.Stop()

	// Start the health endpoint (optional)
	if cfg.Health.Enabled {
		healthServer := health.New(cfg.Health, coordinator, log)
		if err := healthServer.Start(); err != nil {
			return fmt.Errorf("starting health endpoint: %w", err)
		}
		defer func() {
			log.Info("stopping health endpoint")
			if closeErr := healthServer.Close(); closeErr != nil {
				log.Error("error closing health endpoint", "error", closeErr)
			}
		}()
	} else {
		log.Info("health endpoint disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Health endpoint (if enabled)
	// 2. Pipeline coordinator (drains queue, flushes writer)
	// 3. Piece catalog (if enabled)
	// 4. MQTT
	// 5. InfluxDB

	log.Info("PlantStream stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PLANTSTREAM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PLANTSTREAM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
