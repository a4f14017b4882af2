// Package sampler runs the read → classify → persist → alert cycle.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weatherd/weatherd/internal/alerter"
	"github.com/weatherd/weatherd/internal/evaluator"
	"github.com/weatherd/weatherd/internal/metrics"
	"github.com/weatherd/weatherd/internal/sensor"
	"github.com/weatherd/weatherd/internal/storage"
)

// TickOutcome is what one tick observed and did
type TickOutcome struct {
	Seq        uint64
	At         time.Time
	Reading    *sensor.Reading
	State      evaluator.State
	Alerts     alerter.Result
	SensorErr  error
	StorageErr error
	// Abandoned is set when the context was cancelled during the read.
	Abandoned bool
}

// TickError wraps a panic recovered inside a tick
type TickError struct {
	Op    string
	Err   error
	Stack []byte
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick aborted during %s: %v", e.Op, e.Err)
}

func (e *TickError) Unwrap() error {
	return e.Err
}

// Config wires a Loop to its collaborators
type Config struct {
	Source     sensor.Source
	Thresholds evaluator.Thresholds
	Sink       *storage.Sink
	Dispatcher *alerter.Dispatcher
	// StateStore is optional; when set the previous state survives restarts.
	StateStore alerter.StateStore
	Interval   time.Duration
	Metrics    *metrics.Metrics
}

// Loop samples the sensor at a fixed interval. Ticks run strictly one
// after another on the goroutine that calls Run.
type Loop struct {
	cfg    Config
	logger zerolog.Logger
	seq    uint64

	mu   sync.RWMutex
	last *TickOutcome
}

// New creates a sampling loop
func New(cfg Config, logger zerolog.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Loop{
		cfg:    cfg,
		logger: logger.With().Str("component", "sampler").Logger(),
	}
}

// Run ticks until ctx is cancelled, then returns nil.
func (l *Loop) Run(ctx context.Context) error {
	previous := l.loadPrevious(ctx)
	l.logger.Info().
		Dur("interval", l.cfg.Interval).
		Str("previous_state", string(previous)).
		Msg("Sampling loop started")

	for {
		out, err := l.RunTick(ctx, previous)
		if err != nil {
			var te *TickError
			if errors.As(err, &te) {
				l.logger.Error().
					Err(te.Err).
					Str("op", te.Op).
					Uint64("seq", out.Seq).
					Bytes("stack", te.Stack).
					Msg("Tick panicked")
			}
			l.persistFailure(ctx)
		}
		if out.Abandoned {
			l.logger.Info().Msg("Sampling loop stopped")
			return nil
		}

		if out.State != previous {
			l.savePrevious(ctx, out.State)
		}
		previous = out.State

		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Sampling loop stopped")
			return nil
		case <-time.After(l.cfg.Interval):
		}
	}
}

// RunTick performs one read → classify → persist → dispatch pass. previous
// is the state of the prior tick ("" for none). Sensor, storage and
// transport failures are recorded in the outcome; the only error returned
// is a *TickError for a recovered panic.
func (l *Loop) RunTick(ctx context.Context, previous evaluator.State) (out TickOutcome, err error) {
	start := time.Now()
	l.seq++
	out = TickOutcome{Seq: l.seq, At: start.UTC(), State: evaluator.StateFailure}

	op := "read"
	defer func() {
		if rec := recover(); rec != nil {
			l.cfg.Metrics.IncTickPanic()
			err = &TickError{Op: op, Err: fmt.Errorf("panic: %v", rec), Stack: debug.Stack()}
			out.State = evaluator.StateFailure
			l.publish(out)
		}
	}()

	r, rerr := l.cfg.Source.Read(ctx)
	if ctx.Err() != nil {
		out.Abandoned = true
		return out, nil
	}
	if rerr != nil {
		r = nil
		out.SensorErr = rerr
		l.cfg.Metrics.IncSensorError()
		l.logger.Error().Err(rerr).Str("op", "read_sensor").Uint64("seq", out.Seq).Msg("Sensor read failed")
	}
	out.Reading = r

	op = "classify"
	state := l.cfg.Thresholds.Classify(r)
	out.State = state
	l.logReading(out)
	if state != evaluator.StateFailure {
		l.cfg.Metrics.ObserveReading(r.Temperature, r.Humidity, r.Pressure, r.HasPressure)
	}

	op = "persist"
	if perr := l.cfg.Sink.Persist(ctx, r, state, out.At); perr != nil {
		out.StorageErr = perr
		l.cfg.Metrics.IncStorageError()
		l.logger.Error().Err(perr).Str("op", "persist").Uint64("seq", out.Seq).Msg("Failed to persist reading")
	}

	// Alerts are not sent once shutdown has begun.
	op = "dispatch"
	if ctx.Err() != nil {
		l.logger.Debug().Uint64("seq", out.Seq).Msg("Shutdown during tick, alert dispatch skipped")
	} else {
		out.Alerts = l.cfg.Dispatcher.Dispatch(ctx, r, state, previous)
	}

	l.cfg.Metrics.ObserveTick(string(state), state.Severity(), time.Since(start))
	l.publish(out)
	return out, nil
}

// LastOutcome returns the most recent tick, if any
func (l *Loop) LastOutcome() (TickOutcome, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.last == nil {
		return TickOutcome{}, false
	}
	return *l.last, true
}

func (l *Loop) publish(out TickOutcome) {
	l.mu.Lock()
	l.last = &out
	l.mu.Unlock()
}

func (l *Loop) logReading(out TickOutcome) {
	ev := l.logger.Info()
	if out.State == evaluator.StateFailure {
		ev = l.logger.Warn()
	}
	ev = ev.Uint64("seq", out.Seq).Str("state", string(out.State))
	if r := out.Reading; r != nil {
		if r.HasTemperature {
			ev = ev.Float64("temperature", r.Temperature)
		}
		if r.HasHumidity {
			ev = ev.Float64("humidity", r.Humidity)
		}
		if r.HasPressure {
			ev = ev.Float64("pressure", r.Pressure)
		}
	}
	ev.Msg("Sample")
}

// persistFailure writes the failure record after a panicked tick. A second
// failure is logged and dropped.
func (l *Loop) persistFailure(ctx context.Context) {
	if err := l.cfg.Sink.Persist(ctx, nil, evaluator.StateFailure, time.Now().UTC()); err != nil {
		l.cfg.Metrics.IncStorageError()
		l.logger.Error().Err(err).Str("op", "persist_failure").Msg("Failed to write failure record")
	}
}

func (l *Loop) loadPrevious(ctx context.Context) evaluator.State {
	if l.cfg.StateStore == nil {
		return ""
	}
	state, err := l.cfg.StateStore.Load(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Str("op", "load_state").Msg("Failed to load previous state, starting fresh")
		return ""
	}
	return state
}

func (l *Loop) savePrevious(ctx context.Context, state evaluator.State) {
	if l.cfg.StateStore == nil {
		return
	}
	if err := l.cfg.StateStore.Save(ctx, state); err != nil {
		l.logger.Warn().Err(err).Str("op", "save_state").Msg("Failed to save state")
	}
}
