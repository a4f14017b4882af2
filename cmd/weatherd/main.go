package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/weatherd/weatherd/internal/alerter"
	"github.com/weatherd/weatherd/internal/api"
	"github.com/weatherd/weatherd/internal/config"
	"github.com/weatherd/weatherd/internal/metrics"
	"github.com/weatherd/weatherd/internal/notifier"
	"github.com/weatherd/weatherd/internal/sampler"
	"github.com/weatherd/weatherd/internal/sensor"
	"github.com/weatherd/weatherd/internal/storage"
	"github.com/weatherd/weatherd/internal/version"
	"github.com/weatherd/weatherd/internal/webui"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration (optional)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "json", "Log format (json, console)")
	flag.Parse()

	// Captures the last 1000 log lines for the dashboard
	logBuffer := webui.NewLogBuffer(1000)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if *logFormat == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}
	logger := zerolog.New(io.MultiWriter(out, logBuffer)).With().
		Timestamp().
		Str("version", version.Version).
		Logger()

	if err := run(*configPath, logger, logBuffer); err != nil {
		logger.Error().Err(err).Msg("weatherd failed to start")
		os.Exit(1)
	}
}

func run(configPath string, logger zerolog.Logger, logBuffer *webui.LogBuffer) error {
	info := version.Get()
	logger.Info().Str("build", info.String()).Msg("Starting weatherd")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	thresholds := cfg.ClassifierThresholds()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := sensor.Open(sensor.Options{
		Driver:    cfg.Sensor.Driver,
		Bus:       cfg.Sensor.I2CBus,
		Address:   cfg.Sensor.Address,
		Pressure:  cfg.Sensor.PressureEnabled(),
		Seed:      cfg.Sensor.Seed,
		FaultRate: cfg.Sensor.FaultRate,
	})
	if err != nil {
		return fmt.Errorf("failed to open sensor %s: %w", cfg.Sensor.Name, err)
	}
	defer func() {
		if err := source.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close sensor")
		}
	}()
	logger.Info().
		Str("sensor", cfg.Sensor.Name).
		Str("driver", cfg.Sensor.Driver).
		Str("bus", cfg.Sensor.I2CBus).
		Str("address", fmt.Sprintf("0x%02x", cfg.Sensor.Address)).
		Bool("pressure", cfg.Sensor.PressureEnabled()).
		Msg("Sensor initialized")

	writers, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := writers.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}()
	sink := storage.NewSink(writers, storage.SinkOptions{
		Bucket:          cfg.Storage.Bucket,
		Org:             cfg.Storage.Org,
		SensorName:      cfg.Sensor.Name,
		Tags:            cfg.Storage.Tags,
		IncludePressure: cfg.Sensor.PressureEnabled(),
		Timeout:         cfg.Storage.Timeout,
	})

	m := metrics.New()

	transport := notifier.NewHTTPNotifier(cfg.Alerts.URL, cfg.Alerts.APIKeyHeader, cfg.Alerts.APIKey, cfg.Alerts.Timeout, logger)
	dispatcher := alerter.NewDispatcher(thresholds, transport, alerter.Options{
		Enabled:       cfg.Alerts.IsEnabled(),
		Mode:          alerter.Mode(cfg.Alerts.Mode),
		FlapThreshold: cfg.Alerts.FlapThreshold,
		FlapWindow:    cfg.Alerts.FlapWindow,
	}, m, logger)

	var store alerter.StateStore
	if cfg.Alerts.Mode == config.ModeEdge {
		store, err = openStateStore(ctx, cfg.Alerts)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	loop := sampler.New(sampler.Config{
		Source:     source,
		Thresholds: thresholds,
		Sink:       sink,
		Dispatcher: dispatcher,
		StateStore: store,
		Interval:   cfg.Sampling.Interval,
		Metrics:    m,
	}, logger)

	if cfg.API.Enabled {
		apiServer := api.NewServer(cfg, loop, m, logger)
		apiServer.SetLogBuffer(logBuffer)
		go func() {
			if err := apiServer.Run(ctx); err != nil {
				logger.Error().Err(err).Str("op", "api").Msg("API server error")
			}
		}()
		logger.Info().Str("port", cfg.API.Port).Msg("Web UI available")
	}

	logger.Info().
		Dur("interval", cfg.Sampling.Interval).
		Str("backends", strings.Join(cfg.Storage.Backends, ",")).
		Str("bucket", cfg.Storage.Bucket).
		Str("org", cfg.Storage.Org).
		Str("alert_mode", cfg.Alerts.Mode).
		Bool("alerts_enabled", cfg.Alerts.IsEnabled()).
		Msg("weatherd running, press Ctrl+C to exit")

	if err := loop.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("weatherd stopped")
	return nil
}

func openStateStore(ctx context.Context, cfg config.AlertConfig) (alerter.StateStore, error) {
	if cfg.StateStore != "redis" {
		return alerter.NewMemoryStateStore(), nil
	}
	store, err := alerter.NewRedisStateStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return store, nil
}
