package config

import "time"

// Config represents the complete weatherd configuration
type Config struct {
	Sensor     SensorConfig    `yaml:"sensor"`
	Sampling   SamplingConfig  `yaml:"sampling"`
	Thresholds ThresholdConfig `yaml:"thresholds"`
	Storage    StorageConfig   `yaml:"storage"`
	Alerts     AlertConfig     `yaml:"alerts"`
	API        APIConfig       `yaml:"api"`
}

// SensorConfig selects and configures the reading source
type SensorConfig struct {
	Name     string `yaml:"name"`
	Driver   string `yaml:"driver"` // "bme280" or "simulated"
	I2CBus   string `yaml:"i2c_bus"`
	Address  uint16 `yaml:"address"`
	Pressure *bool  `yaml:"pressure,omitempty"`

	// Simulated driver only
	Seed      int64   `yaml:"seed,omitempty"`
	FaultRate float64 `yaml:"fault_rate,omitempty"`
}

// PressureEnabled reports whether pressure is read and persisted.
// Defaults to true when unset.
func (s SensorConfig) PressureEnabled() bool {
	return s.Pressure == nil || *s.Pressure
}

// SamplingConfig controls the tick cadence
type SamplingConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ThresholdConfig holds the classification bands. Zero values are replaced
// with the built-in defaults before validation.
type ThresholdConfig struct {
	TemperatureWarning *float64 `yaml:"temperature_warning,omitempty"`
	TemperatureAlarm   *float64 `yaml:"temperature_alarm,omitempty"`
	HumidityWarning    *float64 `yaml:"humidity_warning,omitempty"`
	HumidityAlarm      *float64 `yaml:"humidity_alarm,omitempty"`
	TemperatureMin     *float64 `yaml:"temperature_min,omitempty"`
	TemperatureMax     *float64 `yaml:"temperature_max,omitempty"`
	HumidityMin        *float64 `yaml:"humidity_min,omitempty"`
	HumidityMax        *float64 `yaml:"humidity_max,omitempty"`
}

// StorageConfig defines where readings are written
type StorageConfig struct {
	Backends []string          `yaml:"backends"`
	Bucket   string            `yaml:"bucket"`
	Org      string            `yaml:"org"`
	Tags     map[string]string `yaml:"tags,omitempty"`
	Timeout  time.Duration     `yaml:"timeout"`
	Influx   InfluxConfig      `yaml:"influx"`
	Postgres PostgresConfig    `yaml:"postgres"`
	Kafka    KafkaConfig       `yaml:"kafka"`
	MQTT     MQTTConfig        `yaml:"mqtt"`
}

// InfluxConfig points at an InfluxDB 2.x server
type InfluxConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"-"` // WEATHERD_INFLUX_TOKEN only
}

// PostgresConfig configures the SQL mirror
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// KafkaConfig configures the stream mirror
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MQTTConfig configures the MQTT mirror
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// AlertConfig defines alert dispatch behavior
type AlertConfig struct {
	Enabled       *bool         `yaml:"enabled,omitempty"`
	Mode          string        `yaml:"mode"` // "level" or "edge"
	URL           string        `yaml:"url"`
	APIKeyHeader  string        `yaml:"api_key_header"`
	APIKey        string        `yaml:"-"` // WEATHERD_ALERT_API_KEY only
	Timeout       time.Duration `yaml:"timeout"`
	FlapThreshold int           `yaml:"flap_threshold,omitempty"`
	FlapWindow    time.Duration `yaml:"flap_window,omitempty"`
	StateStore    string        `yaml:"state_store"` // "memory" or "redis"
	Redis         RedisConfig   `yaml:"redis"`
}

// IsEnabled reports whether alerts are dispatched. Defaults to true.
func (a AlertConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// RedisConfig points at the previous-state store
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"` // WEATHERD_REDIS_PASSWORD only
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// APIConfig controls the status API
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}
