package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/devices/bmxx80"
	"periph.io/x/periph/host"
)

// BME280 reads a Bosch BME280 over I²C.
type BME280 struct {
	mu       sync.Mutex
	bus      i2c.BusCloser
	dev      *bmxx80.Dev
	pressure bool
}

// OpenBME280 initializes the host drivers, opens the I²C bus and probes the
// device at addr (0x76 or 0x77).
func OpenBME280(busName string, addr uint16, pressure bool) (*BME280, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initializing host drivers: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("opening i2c bus %q: %w", busName, err)
	}

	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("opening bme280 at 0x%02x: %w", addr, err)
	}

	return &BME280{bus: bus, dev: dev, pressure: pressure}, nil
}

// Read performs one forced measurement.
func (b *BME280) Read(ctx context.Context) (*Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev == nil {
		return nil, ErrNotOpen
	}

	var env physic.Env
	if err := b.dev.Sense(&env); err != nil {
		return nil, fmt.Errorf("bme280 sense: %w", err)
	}

	r := envToReading(env, b.pressure)
	r.Time = time.Now()
	return r, nil
}

// Close halts the device and releases the bus.
func (b *BME280) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev == nil {
		return nil
	}

	haltErr := b.dev.Halt()
	busErr := b.bus.Close()
	b.dev = nil
	b.bus = nil

	if haltErr != nil {
		return fmt.Errorf("halting bme280: %w", haltErr)
	}
	if busErr != nil {
		return fmt.Errorf("closing i2c bus: %w", busErr)
	}
	return nil
}

// envToReading converts periph's fixed-point units to °C, % RH and hPa.
func envToReading(env physic.Env, withPressure bool) *Reading {
	celsius := float64(env.Temperature-physic.ZeroCelsius) / float64(physic.Kelvin)
	humidity := float64(env.Humidity) / float64(physic.PercentRH)

	r := NewReading(celsius, humidity)
	if withPressure {
		r = r.WithPressure(float64(env.Pressure) / float64(100*physic.Pascal))
	}
	return r
}
