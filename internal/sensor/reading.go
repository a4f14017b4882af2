// Package sensor provides the reading source for the sampling loop: a
// BME280 on an I²C bus, or a simulated sensor for hardware-less runs.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNotOpen is returned by Read after Close.
var ErrNotOpen = errors.New("sensor not open")

// Reading is one sample. Each value carries a presence flag; a NaN value is
// never marked present.
type Reading struct {
	Temperature float64 // °C
	Humidity    float64 // % RH
	Pressure    float64 // hPa
	Time        time.Time

	HasTemperature bool
	HasHumidity    bool
	HasPressure    bool
}

// NewReading builds a reading with temperature and humidity set.
func NewReading(temperature, humidity float64) *Reading {
	return &Reading{
		Temperature:    temperature,
		Humidity:       humidity,
		Time:           time.Now(),
		HasTemperature: !math.IsNaN(temperature),
		HasHumidity:    !math.IsNaN(humidity),
	}
}

// WithPressure returns a copy of r carrying pressure p.
func (r Reading) WithPressure(p float64) *Reading {
	r.Pressure = p
	r.HasPressure = !math.IsNaN(p)
	return &r
}

// String renders the reading for log lines.
func (r *Reading) String() string {
	if r == nil {
		return "<no reading>"
	}
	s := fmt.Sprintf("temperature=%s humidity=%s", fmtValue(r.Temperature, r.HasTemperature, "%05.2f°C"), fmtValue(r.Humidity, r.HasHumidity, "%05.2f%%"))
	if r.HasPressure {
		s += fmt.Sprintf(" pressure=%05.2fhPa", r.Pressure)
	}
	return s
}

func fmtValue(v float64, ok bool, format string) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf(format, v)
}

// Source produces one reading per call. Implementations are not safe for
// concurrent use; the sampling loop calls Read from a single goroutine.
type Source interface {
	Read(ctx context.Context) (*Reading, error)
	Close() error
}

// Options configures Open.
type Options struct {
	Driver   string // "bme280" or "simulated"
	Bus      string // I²C bus name, e.g. "1" for /dev/i2c-1
	Address  uint16
	Pressure bool

	Seed      int64
	FaultRate float64
}

// Open initializes the configured driver. A failure here is a startup
// failure: the bus or device could not be opened.
func Open(opts Options) (Source, error) {
	switch opts.Driver {
	case "bme280":
		return OpenBME280(opts.Bus, opts.Address, opts.Pressure)
	case "simulated":
		return NewSimulated(opts.Seed, opts.FaultRate, opts.Pressure), nil
	default:
		return nil, fmt.Errorf("unknown sensor driver %q", opts.Driver)
	}
}
