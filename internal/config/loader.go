package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/weatherd/weatherd/internal/evaluator"
)

// Storage backend names
const (
	BackendInflux   = "influx"
	BackendPostgres = "postgres"
	BackendKafka    = "kafka"
	BackendMQTT     = "mqtt"
)

// Alert modes
const (
	ModeLevel = "level"
	ModeEdge  = "edge"
)

// LoadConfig reads the YAML file at path (optional when empty), applies
// .env and environment overrides, fills defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()
	applyEnv(cfg)

	applyDefaults(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadYAML loads a YAML file into a struct
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// applyEnv overlays endpoints and secrets from the environment
func applyEnv(cfg *Config) {
	cfg.Storage.Influx.URL = getEnv("WEATHERD_INFLUX_URL", cfg.Storage.Influx.URL)
	cfg.Storage.Influx.Token = getEnv("WEATHERD_INFLUX_TOKEN", cfg.Storage.Influx.Token)
	cfg.Storage.Org = getEnv("WEATHERD_INFLUX_ORG", cfg.Storage.Org)
	cfg.Storage.Bucket = getEnv("WEATHERD_INFLUX_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Postgres.DSN = getEnv("WEATHERD_POSTGRES_DSN", cfg.Storage.Postgres.DSN)
	if brokers := getEnv("WEATHERD_KAFKA_BROKERS", ""); brokers != "" {
		cfg.Storage.Kafka.Brokers = strings.Split(brokers, ",")
	}
	cfg.Storage.MQTT.Broker = getEnv("WEATHERD_MQTT_BROKER", cfg.Storage.MQTT.Broker)

	cfg.Alerts.URL = getEnv("WEATHERD_ALERT_URL", cfg.Alerts.URL)
	cfg.Alerts.APIKey = getEnv("WEATHERD_ALERT_API_KEY", cfg.Alerts.APIKey)
	cfg.Alerts.Redis.Addr = getEnv("WEATHERD_REDIS_ADDR", cfg.Alerts.Redis.Addr)
	cfg.Alerts.Redis.Password = getEnv("WEATHERD_REDIS_PASSWORD", cfg.Alerts.Redis.Password)
	cfg.Alerts.Redis.DB = getEnvAsInt("WEATHERD_REDIS_DB", cfg.Alerts.Redis.DB)

	cfg.Sampling.Interval = getEnvAsDuration("WEATHERD_SAMPLING_INTERVAL", cfg.Sampling.Interval)
	cfg.API.Port = getEnv("WEATHERD_API_PORT", cfg.API.Port)
}

func applyDefaults(cfg *Config) {
	if cfg.Sensor.Name == "" {
		cfg.Sensor.Name = "bme280"
	}
	if cfg.Sensor.Driver == "" {
		cfg.Sensor.Driver = "bme280"
	}
	if cfg.Sensor.I2CBus == "" {
		cfg.Sensor.I2CBus = "1"
	}
	if cfg.Sensor.Address == 0 {
		cfg.Sensor.Address = 0x76
	}
	if cfg.Sampling.Interval == 0 {
		cfg.Sampling.Interval = time.Second
	}

	if len(cfg.Storage.Backends) == 0 {
		cfg.Storage.Backends = []string{BackendInflux}
	}
	if cfg.Storage.Timeout == 0 {
		cfg.Storage.Timeout = 5 * time.Second
	}
	if cfg.Storage.Influx.URL == "" {
		cfg.Storage.Influx.URL = "http://localhost:8086"
	}
	if cfg.Storage.Postgres.Table == "" {
		cfg.Storage.Postgres.Table = "weather_points"
	}
	if cfg.Storage.Kafka.Topic == "" {
		cfg.Storage.Kafka.Topic = "weather.readings"
	}
	if cfg.Storage.MQTT.TopicPrefix == "" {
		cfg.Storage.MQTT.TopicPrefix = "weatherd"
	}
	if cfg.Storage.MQTT.ClientID == "" {
		cfg.Storage.MQTT.ClientID = "weatherd-" + cfg.Sensor.Name
	}

	if cfg.Alerts.Mode == "" {
		cfg.Alerts.Mode = ModeLevel
	}
	if cfg.Alerts.APIKeyHeader == "" {
		cfg.Alerts.APIKeyHeader = "X-API-Key"
	}
	if cfg.Alerts.Timeout == 0 {
		cfg.Alerts.Timeout = 10 * time.Second
	}
	if cfg.Alerts.StateStore == "" {
		cfg.Alerts.StateStore = "memory"
	}
	if cfg.Alerts.FlapThreshold > 0 && cfg.Alerts.FlapWindow == 0 {
		cfg.Alerts.FlapWindow = 5 * time.Minute
	}
	if cfg.Alerts.Redis.Addr == "" {
		cfg.Alerts.Redis.Addr = "localhost:6379"
	}
	if cfg.Alerts.Redis.Key == "" {
		cfg.Alerts.Redis.Key = "weatherd:last_state:" + cfg.Sensor.Name
	}

	if cfg.API.Port == "" {
		cfg.API.Port = "8088"
	}
}

// ClassifierThresholds builds the immutable classification bands, using the
// built-in defaults for anything the file leaves out.
func (c *Config) ClassifierThresholds() evaluator.Thresholds {
	t := evaluator.DefaultThresholds()
	tc := c.Thresholds
	override(&t.TemperatureWarning, tc.TemperatureWarning)
	override(&t.TemperatureAlarm, tc.TemperatureAlarm)
	override(&t.HumidityWarning, tc.HumidityWarning)
	override(&t.HumidityAlarm, tc.HumidityAlarm)
	override(&t.TemperatureMin, tc.TemperatureMin)
	override(&t.TemperatureMax, tc.TemperatureMax)
	override(&t.HumidityMin, tc.HumidityMin)
	override(&t.HumidityMax, tc.HumidityMax)
	return t
}

func override(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	switch cfg.Sensor.Driver {
	case "bme280", "simulated":
	default:
		return fmt.Errorf("sensor.driver must be 'bme280' or 'simulated', got %q", cfg.Sensor.Driver)
	}
	if cfg.Sensor.FaultRate < 0 || cfg.Sensor.FaultRate > 1 {
		return fmt.Errorf("sensor.fault_rate must be within [0, 1]")
	}
	if cfg.Sampling.Interval < 0 {
		return fmt.Errorf("sampling.interval must be positive")
	}

	if err := cfg.ClassifierThresholds().Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}

	if cfg.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if cfg.Storage.Org == "" {
		return fmt.Errorf("storage.org is required")
	}
	seen := make(map[string]bool, len(cfg.Storage.Backends))
	for _, b := range cfg.Storage.Backends {
		if seen[b] {
			return fmt.Errorf("storage backend %s listed twice", b)
		}
		seen[b] = true

		switch b {
		case BackendInflux:
			if cfg.Storage.Influx.URL == "" {
				return fmt.Errorf("storage.influx.url is required")
			}
		case BackendPostgres:
			if cfg.Storage.Postgres.DSN == "" {
				return fmt.Errorf("storage.postgres.dsn is required")
			}
		case BackendKafka:
			if len(cfg.Storage.Kafka.Brokers) == 0 {
				return fmt.Errorf("storage.kafka.brokers is required")
			}
		case BackendMQTT:
			if cfg.Storage.MQTT.Broker == "" {
				return fmt.Errorf("storage.mqtt.broker is required")
			}
			if cfg.Storage.MQTT.QoS > 2 {
				return fmt.Errorf("storage.mqtt.qos must be 0, 1 or 2")
			}
		default:
			return fmt.Errorf("unknown storage backend %q", b)
		}
	}

	if cfg.Alerts.Mode != ModeLevel && cfg.Alerts.Mode != ModeEdge {
		return fmt.Errorf("alerts.mode must be 'level' or 'edge'")
	}
	if cfg.Alerts.StateStore != "memory" && cfg.Alerts.StateStore != "redis" {
		return fmt.Errorf("alerts.state_store must be 'memory' or 'redis'")
	}
	if cfg.Alerts.StateStore == "redis" && cfg.Alerts.Mode != ModeEdge {
		return fmt.Errorf("alerts.state_store 'redis' only applies to edge mode")
	}
	if cfg.Alerts.FlapThreshold < 0 {
		return fmt.Errorf("alerts.flap_threshold must not be negative")
	}
	if cfg.Alerts.FlapThreshold > 0 && cfg.Alerts.Mode != ModeEdge {
		return fmt.Errorf("alerts.flap_threshold only applies to edge mode")
	}
	// Note: We don't require alerts.url; an empty URL logs instead of sending

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
