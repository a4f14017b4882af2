package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/weatherd/weatherd/internal/config"
)

// Open builds the configured backends. On error every backend opened so far
// is closed again.
func Open(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (*MultiWriter, error) {
	logger = logger.With().Str("component", "storage").Logger()

	m := &MultiWriter{}
	for _, name := range cfg.Backends {
		w, err := openBackend(ctx, name, cfg)
		if err != nil {
			if cerr := m.Close(); cerr != nil {
				logger.Warn().Err(cerr).Msg("Failed to close storage backends")
			}
			return nil, fmt.Errorf("failed to open %s backend: %w", name, err)
		}
		m.Add(name, w)
		logger.Info().Str("backend", name).Msg("Storage backend ready")
	}

	if m.Len() == 0 {
		return nil, ErrNoBackends
	}
	return m, nil
}

func openBackend(ctx context.Context, name string, cfg config.StorageConfig) (Writer, error) {
	switch name {
	case config.BackendInflux:
		return NewInfluxWriter(cfg.Influx.URL, cfg.Influx.Token, cfg.Timeout), nil
	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		return NewPostgresWriter(ctx, cfg.Postgres.DSN, cfg.Postgres.Table)
	case config.BackendKafka:
		return NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
	case config.BackendMQTT:
		return NewMQTTWriter(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}
