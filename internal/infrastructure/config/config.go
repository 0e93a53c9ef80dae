package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Meter Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Meter    MeterConfig    `yaml:"meter"`
	History  HistoryConfig  `yaml:"history"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MeterConfig contains the HAN bridge endpoint and connection tuning.
type MeterConfig struct {
	// ID identifies this meter in MQTT topics and metric tags.
	ID string `yaml:"id"`

	// Host and Port locate the serial-to-websocket bridge on the LAN.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// RetryDelay is the fixed delay before a reconnect attempt (seconds).
	RetryDelay int `yaml:"retry_delay"`

	// ReceiveTimeout is the per-receive wait for an inbound frame (seconds).
	ReceiveTimeout int `yaml:"receive_timeout"`

	// IdleThreshold is the number of consecutive receive timeouts tolerated
	// before the connection is declared dead.
	IdleThreshold int `yaml:"idle_threshold"`

	// PingTimeout is the wait for a ping reply after an idle window (seconds).
	PingTimeout int `yaml:"ping_timeout"`

	// StrictChecksum rejects frames with a bad CRC trailer instead of
	// decoding them anyway. Serial-to-network bridges are noisy enough
	// that the default is lenient.
	StrictChecksum bool `yaml:"strict_checksum"`

	// StatusInterval is how often bridge status is published (seconds).
	StatusInterval int `yaml:"status_interval"`
}

// Endpoint returns the websocket URL of the meter bridge.
func (m MeterConfig) Endpoint() string {
	return fmt.Sprintf("ws://%s", net.JoinHostPort(m.Host, strconv.Itoa(m.Port)))
}

// GetRetryDelay returns the reconnect delay as a Duration.
func (m MeterConfig) GetRetryDelay() time.Duration {
	return time.Duration(m.RetryDelay) * time.Second
}

// GetReceiveTimeout returns the receive timeout as a Duration.
func (m MeterConfig) GetReceiveTimeout() time.Duration {
	return time.Duration(m.ReceiveTimeout) * time.Second
}

// GetPingTimeout returns the ping timeout as a Duration.
func (m MeterConfig) GetPingTimeout() time.Duration {
	return time.Duration(m.PingTimeout) * time.Second
}

// GetStatusInterval returns the status publish interval as a Duration.
func (m MeterConfig) GetStatusInterval() time.Duration {
	return time.Duration(m.StatusInterval) * time.Second
}

// HistoryConfig contains reading-history retention settings.
type HistoryConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// GetRetention returns the history retention period as a Duration.
func (h HistoryConfig) GetRetention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
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
// Environment variables follow the pattern: GRAYMETER_SECTION_KEY
// For example: GRAYMETER_METER_HOST, GRAYMETER_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

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

// defaultConfig returns a Config with sensible defaults.
//
// The meter connection defaults match the single supported bridge firmware:
// a 30 second receive window, ten idle windows before giving up (five minutes
// of total silence), a 10 second ping grace and a fixed 15 second retry delay.
func defaultConfig() *Config {
	return &Config{
		Meter: MeterConfig{
			ID:             "meter-001",
			Host:           "192.168.1.9",
			Port:           9876,
			RetryDelay:     15,
			ReceiveTimeout: 30,
			IdleThreshold:  10,
			PingTimeout:    10,
			StrictChecksum: false,
			StatusInterval: 30,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
		Database: DatabaseConfig{
			Path:        "./data/graymeter.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graymeter-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYMETER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Meter
	if v := os.Getenv("GRAYMETER_METER_HOST"); v != "" {
		cfg.Meter.Host = v
	}
	if v := os.Getenv("GRAYMETER_METER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Meter.Port = port
		}
	}

	// Database
	if v := os.Getenv("GRAYMETER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYMETER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYMETER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYMETER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYMETER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Meter validation
	if c.Meter.ID == "" {
		errs = append(errs, "meter.id is required")
	}
	if c.Meter.Host == "" {
		errs = append(errs, "meter.host is required")
	}
	if c.Meter.Port < 1 || c.Meter.Port > 65535 {
		errs = append(errs, "meter.port must be between 1 and 65535")
	}
	if c.Meter.RetryDelay < 1 {
		errs = append(errs, "meter.retry_delay must be at least 1 second")
	}
	if c.Meter.ReceiveTimeout < 1 {
		errs = append(errs, "meter.receive_timeout must be at least 1 second")
	}
	if c.Meter.IdleThreshold < 1 {
		errs = append(errs, "meter.idle_threshold must be at least 1")
	}
	if c.Meter.PingTimeout < 1 {
		errs = append(errs, "meter.ping_timeout must be at least 1 second")
	}

	// History validation
	if c.History.Enabled && c.History.RetentionDays < 1 {
		errs = append(errs, "history.retention_days must be at least 1 day")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
