package alerter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/weatherd/weatherd/internal/evaluator"
	"github.com/weatherd/weatherd/internal/metrics"
	"github.com/weatherd/weatherd/internal/sensor"
	"github.com/weatherd/weatherd/internal/types"
)

// Mode selects when alerts are re-sent
type Mode string

const (
	// ModeLevel re-sends on every tick the condition holds.
	ModeLevel Mode = "level"
	// ModeEdge sends only on ticks whose state differs from the previous one.
	ModeEdge Mode = "edge"
)

const flapKey = "state"

// Transport delivers one alert. It is called at most once per message.
type Transport interface {
	Send(ctx context.Context, subject, body string) error
}

// Options configures a Dispatcher
type Options struct {
	Enabled       bool
	Mode          Mode
	FlapThreshold int           // edge mode only; 0 disables
	FlapWindow    time.Duration // edge mode only
}

// Result summarizes one Dispatch call
type Result struct {
	Sent       int
	Failed     int
	Suppressed bool
}

// Dispatcher decides which alerts a tick produces and sends them
type Dispatcher struct {
	thresholds evaluator.Thresholds
	transport  Transport
	opts       Options
	flap       *FlapDetector
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewDispatcher creates a dispatcher bound to the given thresholds
func NewDispatcher(thresholds evaluator.Thresholds, transport Transport, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	if opts.Mode == "" {
		opts.Mode = ModeLevel
	}
	logger = logger.With().Str("component", "alerter").Logger()

	d := &Dispatcher{
		thresholds: thresholds,
		transport:  transport,
		opts:       opts,
		metrics:    m,
		logger:     logger,
	}
	if opts.Mode == ModeEdge && opts.FlapThreshold > 0 {
		d.flap = NewFlapDetector(logger, opts.FlapThreshold, opts.FlapWindow)
	}
	return d
}

// Mode returns the configured trigger mode
func (d *Dispatcher) Mode() Mode {
	return d.opts.Mode
}

// band describes one monitored metric
type band struct {
	metric  string
	label   string
	unit    string
	value   float64
	warning float64
	alarm   float64
}

func (d *Dispatcher) bands(r *sensor.Reading) []band {
	return []band{
		{"temperature", "Temperature", "°C", r.Temperature, d.thresholds.TemperatureWarning, d.thresholds.TemperatureAlarm},
		{"humidity", "Humidity", "%", r.Humidity, d.thresholds.HumidityWarning, d.thresholds.HumidityAlarm},
	}
}

// Evaluate returns the level-triggered messages for a reading: per metric,
// "near alarm" when warning < value < alarm and "alarm exceeded" when
// value > alarm. A value equal to either threshold produces nothing. A
// Failure state produces nothing.
func (d *Dispatcher) Evaluate(r *sensor.Reading, state evaluator.State) []types.Message {
	if state == evaluator.StateFailure || r == nil {
		return nil
	}

	var msgs []types.Message
	now := time.Now()
	for _, b := range d.bands(r) {
		switch {
		case b.value > b.warning && b.value < b.alarm:
			msgs = append(msgs, types.Message{
				ID:      uuid.NewString(),
				Metric:  b.metric,
				Kind:    types.KindNearAlarm,
				Subject: fmt.Sprintf("%s near alarm: %.2f %s", b.label, b.value, b.unit),
				Body: fmt.Sprintf("%s is %.2f %s, above the warning threshold of %.2f %s. Alarm threshold is %.2f %s.",
					b.label, b.value, b.unit, b.warning, b.unit, b.alarm, b.unit),
				Value:     b.value,
				Threshold: b.warning,
				CreatedAt: now,
			})
		case b.value > b.alarm:
			msgs = append(msgs, types.Message{
				ID:      uuid.NewString(),
				Metric:  b.metric,
				Kind:    types.KindAlarmExceeded,
				Subject: fmt.Sprintf("%s alarm exceeded: %.2f %s", b.label, b.value, b.unit),
				Body: fmt.Sprintf("%s is %.2f %s, above the alarm threshold of %.2f %s.",
					b.label, b.value, b.unit, b.alarm, b.unit),
				Value:     b.value,
				Threshold: b.alarm,
				CreatedAt: now,
			})
		}
	}
	return msgs
}

// Dispatch sends this tick's alerts. previous is the state of the prior
// tick ("" on the first tick) and only matters in edge mode. Transport
// errors are logged and counted; they never propagate.
func (d *Dispatcher) Dispatch(ctx context.Context, r *sensor.Reading, state, previous evaluator.State) Result {
	if !d.opts.Enabled {
		return Result{}
	}

	var msgs []types.Message
	switch d.opts.Mode {
	case ModeEdge:
		var suppressed bool
		msgs, suppressed = d.edgeMessages(r, state, previous)
		if suppressed {
			return Result{Suppressed: true}
		}
	default:
		msgs = d.Evaluate(r, state)
	}

	var res Result
	for _, msg := range msgs {
		if err := d.transport.Send(ctx, msg.Subject, msg.Body); err != nil {
			res.Failed++
			d.metrics.IncAlertError()
			d.logger.Error().
				Err(err).
				Str("op", "send_alert").
				Str("alert_id", msg.ID).
				Str("metric", msg.Metric).
				Str("kind", msg.Kind).
				Msg("Failed to send alert notification")
			continue
		}
		res.Sent++
		d.metrics.IncAlertSent(msg.Metric, msg.Kind)
		d.logger.Info().
			Str("alert_id", msg.ID).
			Str("metric", msg.Metric).
			Str("kind", msg.Kind).
			Float64("value", msg.Value).
			Float64("threshold", msg.Threshold).
			Msg("Alert sent")
	}
	return res
}

// edgeMessages applies the transition rules of edge mode
func (d *Dispatcher) edgeMessages(r *sensor.Reading, state, previous evaluator.State) ([]types.Message, bool) {
	if state == previous {
		if d.flap != nil && d.flap.CheckStable(flapKey) {
			// Transitions were swallowed while flapping; announce where it settled.
			return d.Evaluate(r, state), false
		}
		return nil, false
	}

	if d.flap != nil {
		if flapping, _ := d.flap.RecordChange(flapKey); flapping {
			d.metrics.IncSuppressed()
			d.logger.Debug().
				Str("from", string(previous)).
				Str("to", string(state)).
				Msg("State flapping, transition not announced")
			return nil, true
		}
	}

	msgs := d.Evaluate(r, state)
	if len(msgs) == 0 && state == evaluator.StateNormal &&
		(previous == evaluator.StateWarning || previous == evaluator.StateAlarm) {
		msgs = append(msgs, recoveredMessage(r, previous))
	}
	return msgs, false
}

func recoveredMessage(r *sensor.Reading, previous evaluator.State) types.Message {
	return types.Message{
		ID:      uuid.NewString(),
		Kind:    types.KindRecovered,
		Subject: "Conditions back to normal",
		Body: fmt.Sprintf("Temperature %.2f °C, humidity %.2f %% (was %s).",
			r.Temperature, r.Humidity, previous),
		CreatedAt: time.Now(),
	}
}
