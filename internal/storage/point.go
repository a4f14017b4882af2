// Package storage turns classified readings into points and writes them to
// one or more time-series backends.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Measurement is the name every point is written under.
const Measurement = "weather"

// ErrNoBackends is returned when no storage backend is configured.
var ErrNoBackends = errors.New("no storage backends configured")

// Point is one row of the time series
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]float64
	Time        time.Time
}

// Writer writes a point to a bucket owned by org.
type Writer interface {
	Write(ctx context.Context, bucket, org string, p Point) error
	Close() error
}

// record is the JSON shape published on message-oriented backends
type record struct {
	Bucket      string             `json:"bucket"`
	Org         string             `json:"org"`
	Measurement string             `json:"measurement"`
	Tags        map[string]string  `json:"tags"`
	Fields      map[string]float64 `json:"fields"`
	Time        time.Time          `json:"time"`
}

func encodeRecord(bucket, org string, p Point) ([]byte, error) {
	data, err := json.Marshal(record{
		Bucket:      bucket,
		Org:         org,
		Measurement: p.Measurement,
		Tags:        p.Tags,
		Fields:      p.Fields,
		Time:        p.Time.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal point: %w", err)
	}
	return data, nil
}

type backend struct {
	name string
	w    Writer
}

// MultiWriter fans a point out to every configured backend. A failing
// backend does not stop the others; their errors are joined.
type MultiWriter struct {
	backends []backend
}

// Add registers a backend under name
func (m *MultiWriter) Add(name string, w Writer) {
	m.backends = append(m.backends, backend{name: name, w: w})
}

// Len returns the number of backends
func (m *MultiWriter) Len() int {
	return len(m.backends)
}

func (m *MultiWriter) Write(ctx context.Context, bucket, org string, p Point) error {
	if len(m.backends) == 0 {
		return ErrNoBackends
	}
	var errs []error
	for _, b := range m.backends {
		if err := b.w.Write(ctx, bucket, org, p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every backend and joins their errors
func (m *MultiWriter) Close() error {
	var errs []error
	for _, b := range m.backends {
		if err := b.w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}
