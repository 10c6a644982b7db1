package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for PlantStream.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Processing ProcessingConfig `yaml:"processing"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Health     HealthConfig     `yaml:"health"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
//
// Bucket receives batched telemetry points; AlertBucket receives
// immediate, unbuffered anomaly alert writes.
type InfluxDBConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	AlertBucket string `yaml:"alert_bucket"`
}

// ProcessingConfig contains pipeline batching and retry settings.
type ProcessingConfig struct {
	// BatchSize is the number of buffered points that triggers a flush.
	BatchSize int `yaml:"batch_size"`

	// FlushInterval is the time-based flush trigger in seconds,
	// bounding point staleness under low traffic.
	FlushInterval int `yaml:"flush_interval"`

	// RetryRetention bounds how long a point stays eligible for
	// re-buffering after a failed flush, in seconds. Points older
	// than this are dropped rather than retried indefinitely.
	RetryRetention int `yaml:"retry_retention"`

	// StatsInterval is the wall-clock cadence for periodic stats and
	// system-tracking points, in seconds.
	StatsInterval int `yaml:"stats_interval"`

	// StatsEvery emits stats after this many processed messages,
	// independent of the wall-clock cadence.
	StatsEvery int `yaml:"stats_every"`

	// ModelScoring enables the statistical model scorer. When false
	// (or while no model is fitted) anomaly detection degrades to
	// threshold-only behavior.
	ModelScoring bool `yaml:"model_scoring"`

	// WindowSize is the per-machine reading window capacity.
	WindowSize int `yaml:"window_size"`
}

// ThresholdsConfig contains per-metric anomaly thresholds.
type ThresholdsConfig struct {
	Temperature ThresholdPair `yaml:"temperature"`
	Vibration   ThresholdPair `yaml:"vibration"`
	Power       PowerLimits   `yaml:"power"`
}

// ThresholdPair holds a warning and a critical threshold for one metric.
// Critical must be strictly greater than warning.
type ThresholdPair struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// PowerLimits holds power thresholds including the suspicious-low floor.
type PowerLimits struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
	LowFloor float64 `yaml:"low_floor"`
}

// CatalogConfig contains the optional SQLite piece-material catalog settings.
type CatalogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthConfig contains the health/stats HTTP endpoint settings.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PLANTSTREAM_SECTION_KEY
// For example: PLANTSTREAM_MQTT_HOST, PLANTSTREAM_INFLUXDB_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults, matching a local
// Mosquitto broker and a local InfluxDB instance.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "plantstream-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:         "http://localhost:8086",
			Org:         "factory",
			Bucket:      "industrial_data",
			AlertBucket: "alerts",
		},
		Processing: ProcessingConfig{
			BatchSize:      10,
			FlushInterval:  5,
			RetryRetention: 300,
			StatsInterval:  300,
			StatsEvery:     100,
			ModelScoring:   true,
			WindowSize:     200,
		},
		Thresholds: ThresholdsConfig{
			Temperature: ThresholdPair{Warning: 80.0, Critical: 90.0},
			Vibration:   ThresholdPair{Warning: 2.5, Critical: 3.0},
			Power:       PowerLimits{Warning: 5.0, Critical: 8.0, LowFloor: 0.1},
		},
		Catalog: CatalogConfig{
			Enabled: false,
			Path:    "./data/catalog.db",
		},
		Health: HealthConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PLANTSTREAM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("PLANTSTREAM_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PLANTSTREAM_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("PLANTSTREAM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PLANTSTREAM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("PLANTSTREAM_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("PLANTSTREAM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("PLANTSTREAM_INFLUXDB_ORG"); v != "" {
		cfg.InfluxDB.Org = v
	}
	if v := os.Getenv("PLANTSTREAM_INFLUXDB_BUCKET"); v != "" {
		cfg.InfluxDB.Bucket = v
	}

	// Processing
	if v := os.Getenv("PLANTSTREAM_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Processing.BatchSize = n
		}
	}
	if v := os.Getenv("PLANTSTREAM_FLUSH_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Processing.FlushInterval = n
		}
	}

	// Logging
	if v := os.Getenv("PLANTSTREAM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB validation
	if c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required")
	}
	if c.InfluxDB.Org == "" {
		errs = append(errs, "influxdb.org is required")
	}
	if c.InfluxDB.Bucket == "" {
		errs = append(errs, "influxdb.bucket is required")
	}
	if c.InfluxDB.AlertBucket == "" {
		errs = append(errs, "influxdb.alert_bucket is required")
	}

	// Processing validation
	if c.Processing.BatchSize < 1 {
		errs = append(errs, "processing.batch_size must be at least 1")
	}
	if c.Processing.FlushInterval < 1 {
		errs = append(errs, "processing.flush_interval must be at least 1 second")
	}
	if c.Processing.RetryRetention < 0 {
		errs = append(errs, "processing.retry_retention must not be negative")
	}
	if c.Processing.WindowSize < 1 {
		errs = append(errs, "processing.window_size must be at least 1")
	}

	// Threshold validation: critical must sit strictly above warning.
	if c.Thresholds.Temperature.Warning <= 0 {
		errs = append(errs, "thresholds.temperature.warning must be positive")
	}
	if c.Thresholds.Temperature.Critical <= c.Thresholds.Temperature.Warning {
		errs = append(errs, "thresholds.temperature.critical must be higher than warning")
	}
	if c.Thresholds.Vibration.Critical <= c.Thresholds.Vibration.Warning {
		errs = append(errs, "thresholds.vibration.critical must be higher than warning")
	}
	if c.Thresholds.Power.Critical <= c.Thresholds.Power.Warning {
		errs = append(errs, "thresholds.power.critical must be higher than warning")
	}

	// Health endpoint validation
	if c.Health.Enabled && (c.Health.Port < 1 || c.Health.Port > 65535) {
		errs = append(errs, "health.port must be between 1 and 65535")
	}

	// Catalog validation
	if c.Catalog.Enabled && c.Catalog.Path == "" {
		errs = append(errs, "catalog.path is required when catalog is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetFlushInterval returns the writer flush interval as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.Processing.FlushInterval) * time.Second
}

// GetRetryRetention returns the failed-flush retry retention as a Duration.
func (c *Config) GetRetryRetention() time.Duration {
	return time.Duration(c.Processing.RetryRetention) * time.Second
}

// GetStatsInterval returns the periodic stats cadence as a Duration.
func (c *Config) GetStatsInterval() time.Duration {
	return time.Duration(c.Processing.StatsInterval) * time.Second
}
