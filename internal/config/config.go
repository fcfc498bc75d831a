package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Device driver names
const (
	DriverSim  = "sim"
	DriverMQTT = "mqtt"
)

// Config represents the application configuration
type Config struct {
	Server          ServerConfig      `yaml:"server"`
	Device          DeviceConfig      `yaml:"device"`
	Sequences       SequencesConfig   `yaml:"sequences"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Telemetry       TelemetryConfig   `yaml:"telemetry"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	Log             LogConfig         `yaml:"log"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// ServerConfig contains the webhook HTTP server settings
type ServerConfig struct {
	Host         string  `yaml:"host"`
	Port         int     `yaml:"port"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"` // Inbound requests per second, 0 = unlimited
	RateBurst    int     `yaml:"rate_burst"`
	MaxBodyBytes int64   `yaml:"max_body_bytes"`
}

// DeviceConfig selects and configures the robot driver
type DeviceConfig struct {
	Driver  string     `yaml:"driver"` // sim | mqtt
	RobotID string     `yaml:"robot_id"`
	Sim     SimConfig  `yaml:"sim"`
	MQTT    MQTTConfig `yaml:"mqtt"`
}

// SimConfig configures the simulated robot
type SimConfig struct {
	StepDelay        Duration `yaml:"step_delay"`
	UnavailableCubes []string `yaml:"unavailable_cubes"`
}

// MQTTConfig contains the robot bridge broker settings
type MQTTConfig struct {
	Broker            string   `yaml:"broker"` // e.g. tcp://127.0.0.1:1883
	ClientID          string   `yaml:"client_id"`
	Username          string   `yaml:"username"`
	Password          string   `yaml:"password"`
	QoS               int      `yaml:"qos"`
	ConnectTimeout    Duration `yaml:"connect_timeout"`
	ActionTimeout     Duration `yaml:"action_timeout"` // 0 = wait for the robot's own completion
	ReconnectMaxDelay Duration `yaml:"reconnect_max_delay"`
}

// SequencesConfig tunes the built-in sequences
type SequencesConfig struct {
	LightHold      Duration `yaml:"light_hold"`        // How long cubes stay lit after a build notification
	DriveDistMM    float64  `yaml:"drive_distance_mm"` // Distance for move forward/backward
	DriveSpeedMMPS float64  `yaml:"drive_speed_mmps"`
	Script         string   `yaml:"script"` // Optional Lua file defining extra sequences
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// LedgerConfig contains sequence run history settings
type LedgerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Path            string   `yaml:"path"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// TelemetryConfig contains InfluxDB settings for sequence outcome points
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// preset returns the defaults for fields where zero is a valid setting.
// They are filled before decoding so an explicit 0 in the file survives.
func preset() Config {
	var cfg Config
	cfg.Device.Sim.StepDelay = Duration(500 * time.Millisecond)
	cfg.Device.MQTT.QoS = 1
	cfg.Sequences.LightHold = Duration(10 * time.Second)
	cfg.Ledger.RetentionDays = 30
	return cfg
}

// Load reads and parses the configuration file.
// A missing file is not an error: defaults describe a simulated robot on :8080.
func Load(path string) (*Config, error) {
	cfg := preset()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateBurst <= 0 {
		cfg.Server.RateBurst = int(cfg.Server.RateLimitRPS)
		if cfg.Server.RateBurst < 1 {
			cfg.Server.RateBurst = 1
		}
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 64 << 10
	}

	// Device defaults
	if cfg.Device.Driver == "" {
		cfg.Device.Driver = DriverSim
	}
	if cfg.Device.RobotID == "" {
		cfg.Device.RobotID = "cozmo"
	}
	if cfg.Device.MQTT.Broker == "" {
		cfg.Device.MQTT.Broker = "tcp://127.0.0.1:1883"
	}
	if cfg.Device.MQTT.ClientID == "" {
		cfg.Device.MQTT.ClientID = "cubehook"
	}
	if cfg.Device.MQTT.ConnectTimeout == 0 {
		cfg.Device.MQTT.ConnectTimeout = Duration(10 * time.Second)
	}
	if cfg.Device.MQTT.ReconnectMaxDelay == 0 {
		cfg.Device.MQTT.ReconnectMaxDelay = Duration(30 * time.Second)
	}
	// ActionTimeout defaults to 0 (wait for the robot), no need to set

	// Sequence defaults
	if cfg.Sequences.DriveDistMM == 0 {
		cfg.Sequences.DriveDistMM = 150
	}
	if cfg.Sequences.DriveSpeedMMPS == 0 {
		cfg.Sequences.DriveSpeedMMPS = 50
	}

	// Ledger defaults
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "./cubehook.sqlite"
	}
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}

	// Telemetry defaults
	if cfg.Telemetry.Bucket == "" {
		cfg.Telemetry.Bucket = "cubehook"
	}
	if cfg.Telemetry.BatchSize == 0 {
		cfg.Telemetry.BatchSize = 100
	}
	if cfg.Telemetry.FlushInterval == 0 {
		cfg.Telemetry.FlushInterval = 10
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks values that have no sensible default.
func (cfg *Config) Validate() error {
	switch cfg.Device.Driver {
	case DriverSim, DriverMQTT:
	default:
		return fmt.Errorf("device.driver: unknown driver %q (want %q or %q)", cfg.Device.Driver, DriverSim, DriverMQTT)
	}
	if cfg.Device.MQTT.QoS < 0 || cfg.Device.MQTT.QoS > 2 {
		return fmt.Errorf("device.mqtt.qos: must be 0, 1 or 2, got %d", cfg.Device.MQTT.QoS)
	}
	if cfg.Device.Sim.StepDelay.Duration() < 0 {
		return fmt.Errorf("device.sim.step_delay: must not be negative")
	}
	if cfg.Sequences.LightHold.Duration() < 0 {
		return fmt.Errorf("sequences.light_hold: must not be negative")
	}
	if cfg.Ledger.CleanupInterval.Duration() <= 0 {
		return fmt.Errorf("ledger.cleanup_interval: must be positive")
	}
	if cfg.Ledger.RetentionDays < 0 {
		return fmt.Errorf("ledger.retention_days: must not be negative (0 keeps everything)")
	}
	if cfg.Telemetry.Enabled && (cfg.Telemetry.URL == "" || cfg.Telemetry.Org == "") {
		return fmt.Errorf("telemetry: url and org are required when enabled")
	}
	return nil
}

// GetShutdownTimeout returns the shutdown timeout as time.Duration
func (cfg *Config) GetShutdownTimeout() time.Duration {
	return cfg.ShutdownTimeout.Duration()
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
