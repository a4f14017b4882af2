package sensor

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"
)

// errSimulatedFault is returned when the simulator injects a bus error.
var errSimulatedFault = errors.New("simulated i2c read fault")

// Simulated is a random-walk sensor for development without hardware.
// With a non-zero fault rate it injects I/O errors and implausible values
// so the failure path can be exercised end to end.
type Simulated struct {
	mu        sync.Mutex
	rng       *rand.Rand
	faultRate float64
	pressure  bool
	closed    bool

	temperature float64
	humidity    float64
	hpa         float64
}

// NewSimulated creates a simulator. A zero seed picks a time-based one.
func NewSimulated(seed int64, faultRate float64, pressure bool) *Simulated {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulated{
		rng:         rand.New(rand.NewSource(seed)),
		faultRate:   faultRate,
		pressure:    pressure,
		temperature: 22.0,
		humidity:    45.0,
		hpa:         1013.25,
	}
}

// Read advances the walk by one step.
func (s *Simulated) Read(ctx context.Context) (*Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrNotOpen
	}

	if s.faultRate > 0 && s.rng.Float64() < s.faultRate {
		if s.rng.Intn(2) == 0 {
			return nil, errSimulatedFault
		}
		// BME280 reports this when the compensation math overflows
		return NewReading(-273.15, math.NaN()), nil
	}

	s.temperature = clamp(s.temperature+s.rng.NormFloat64()*0.3, 10, 35)
	s.humidity = clamp(s.humidity+s.rng.NormFloat64()*0.8, 20, 85)
	s.hpa = clamp(s.hpa+s.rng.NormFloat64()*0.2, 980, 1040)

	r := NewReading(round2(s.temperature), round2(s.humidity))
	if s.pressure {
		r = r.WithPressure(round2(s.hpa))
	}
	return r, nil
}

// Close stops the simulator; further reads return ErrNotOpen.
func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
