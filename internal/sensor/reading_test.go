package sensor

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"periph.io/x/periph/conn/physic"
)

func TestNewReadingNaNIsMissing(t *testing.T) {
	r := NewReading(math.NaN(), 50)
	if r.HasTemperature {
		t.Error("NaN temperature should not be marked present")
	}
	if !r.HasHumidity {
		t.Error("humidity should be present")
	}
	if r.HasPressure {
		t.Error("pressure should be absent until WithPressure")
	}

	p := r.WithPressure(1013.2)
	if !p.HasPressure || p.Pressure != 1013.2 {
		t.Errorf("WithPressure: got %+v", p)
	}
	if r.HasPressure {
		t.Error("WithPressure must not modify the receiver")
	}
}

func TestReadingString(t *testing.T) {
	tests := []struct {
		name string
		r    *Reading
		want []string
	}{
		{"nil", nil, []string{"<no reading>"}},
		{"plain", NewReading(21.5, 40), []string{"temperature=21.50°C", "humidity=40.00%"}},
		{"pressure", NewReading(21.5, 40).WithPressure(1001), []string{"pressure=1001.00hPa"}},
		{"missing", NewReading(math.NaN(), 40), []string{"temperature=n/a"}},
	}
	for _, tt := range tests {
		got := tt.r.String()
		for _, w := range tt.want {
			if !strings.Contains(got, w) {
				t.Errorf("%s: String() = %q, want substring %q", tt.name, got, w)
			}
		}
	}
}

func TestEnvToReading(t *testing.T) {
	env := physic.Env{
		Temperature: physic.ZeroCelsius + 23*physic.Kelvin,
		Humidity:    55 * physic.PercentRH,
		Pressure:    101325 * physic.Pascal,
	}

	r := envToReading(env, true)
	if math.Abs(r.Temperature-23) > 1e-9 {
		t.Errorf("temperature: got %f, want 23", r.Temperature)
	}
	if math.Abs(r.Humidity-55) > 1e-9 {
		t.Errorf("humidity: got %f, want 55", r.Humidity)
	}
	if !r.HasPressure || math.Abs(r.Pressure-1013.25) > 1e-9 {
		t.Errorf("pressure: got %f (has=%v), want 1013.25", r.Pressure, r.HasPressure)
	}

	r = envToReading(env, false)
	if r.HasPressure {
		t.Error("pressure should be omitted when disabled")
	}
}

func TestSimulatedRead(t *testing.T) {
	s := NewSimulated(42, 0, true)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		r, err := s.Read(ctx)
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if !r.HasTemperature || !r.HasHumidity || !r.HasPressure {
			t.Fatalf("Read %d: missing values %+v", i, r)
		}
		if r.Temperature < 10 || r.Temperature > 35 {
			t.Errorf("Read %d: temperature %f out of walk range", i, r.Temperature)
		}
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Read(ctx); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Read after Close: got %v, want ErrNotOpen", err)
	}
}

func TestSimulatedFaults(t *testing.T) {
	s := NewSimulated(7, 1, false)
	for i := 0; i < 20; i++ {
		r, err := s.Read(context.Background())
		if err == nil && r.HasHumidity {
			t.Fatalf("Read %d: expected an injected fault, got %+v", i, r)
		}
	}
}

func TestSimulatedCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSimulated(1, 0, false).Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Options{Driver: "dht22"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
