package evaluator

import (
	"fmt"
	"math"

	"github.com/weatherd/weatherd/internal/sensor"
)

// State is the qualitative classification of a reading
type State string

const (
	StateNormal  State = "normal"
	StateWarning State = "warning"
	StateAlarm   State = "alarm"
	StateFailure State = "failure"
)

// Severity orders states for comparisons; Failure sits outside the scale.
func (s State) Severity() int {
	switch s {
	case StateNormal:
		return 0
	case StateWarning:
		return 1
	case StateAlarm:
		return 2
	default:
		return -1
	}
}

// Thresholds holds the classification bands. Build it once at startup and
// pass it by value; it is never mutated afterwards.
type Thresholds struct {
	TemperatureWarning float64
	TemperatureAlarm   float64
	HumidityWarning    float64
	HumidityAlarm      float64

	// Sensor-plausible range, inclusive
	TemperatureMin float64
	TemperatureMax float64
	HumidityMin    float64
	HumidityMax    float64
}

// DefaultThresholds returns the stock bands for a BME280 in a storage room.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TemperatureWarning: 25.0,
		TemperatureAlarm:   27.0,
		HumidityWarning:    60.0,
		HumidityAlarm:      70.0,
		TemperatureMin:     -40.0,
		TemperatureMax:     85.0,
		HumidityMin:        0.0,
		HumidityMax:        100.0,
	}
}

// Validate checks that warning < alarm and that the physical range strictly
// contains both bands.
func (t Thresholds) Validate() error {
	if err := validateBand("temperature", t.TemperatureMin, t.TemperatureWarning, t.TemperatureAlarm, t.TemperatureMax); err != nil {
		return err
	}
	return validateBand("humidity", t.HumidityMin, t.HumidityWarning, t.HumidityAlarm, t.HumidityMax)
}

func validateBand(metric string, lo, warning, alarm, hi float64) error {
	for _, v := range []float64{lo, warning, alarm, hi} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: thresholds must be finite", metric)
		}
	}
	if warning >= alarm {
		return fmt.Errorf("%s: warning %.2f must be below alarm %.2f", metric, warning, alarm)
	}
	if lo >= warning || alarm >= hi {
		return fmt.Errorf("%s: physical range [%.2f, %.2f] must strictly contain [%.2f, %.2f]", metric, lo, hi, warning, alarm)
	}
	return nil
}

// Classify maps a reading to a State. It is pure and total: a nil reading,
// a missing value or a value outside the physical range is a Failure, and
// the alarm check runs before the warning check.
func (t Thresholds) Classify(r *sensor.Reading) State {
	if !t.plausible(r) {
		return StateFailure
	}

	if r.Temperature >= t.TemperatureAlarm || r.Humidity >= t.HumidityAlarm {
		return StateAlarm
	}
	if r.Temperature >= t.TemperatureWarning || r.Humidity >= t.HumidityWarning {
		return StateWarning
	}
	return StateNormal
}

// plausible reports whether both classified values are present and within
// the inclusive physical bounds. NaN fails every comparison, so it is
// rejected explicitly.
func (t Thresholds) plausible(r *sensor.Reading) bool {
	if r == nil || !r.HasTemperature || !r.HasHumidity {
		return false
	}
	if math.IsNaN(r.Temperature) || math.IsNaN(r.Humidity) {
		return false
	}
	return r.Temperature >= t.TemperatureMin && r.Temperature <= t.TemperatureMax &&
		r.Humidity >= t.HumidityMin && r.Humidity <= t.HumidityMax
}
