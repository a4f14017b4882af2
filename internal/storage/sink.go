package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/weatherd/weatherd/internal/evaluator"
	"github.com/weatherd/weatherd/internal/sensor"
)

// SinkOptions configures where and how a Sink writes
type SinkOptions struct {
	Bucket          string
	Org             string
	SensorName      string
	Tags            map[string]string
	IncludePressure bool
	Timeout         time.Duration
}

// Sink converts a classified reading into a point and writes it
type Sink struct {
	writer Writer
	opts   SinkOptions
}

// NewSink binds a writer to a bucket/org pair
func NewSink(w Writer, opts SinkOptions) *Sink {
	return &Sink{writer: w, opts: opts}
}

// Persist writes one point for the tick at at. A Failure state always
// produces zeroed fields, whatever the reading holds, so repeated failures
// write identical records.
func (s *Sink) Persist(ctx context.Context, r *sensor.Reading, state evaluator.State, at time.Time) error {
	p := s.Point(r, state, at)

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	if err := s.writer.Write(ctx, s.opts.Bucket, s.opts.Org, p); err != nil {
		return fmt.Errorf("failed to write %s point: %w", state, err)
	}
	return nil
}

// Point builds the point Persist would write
func (s *Sink) Point(r *sensor.Reading, state evaluator.State, at time.Time) Point {
	tags := make(map[string]string, len(s.opts.Tags)+2)
	for k, v := range s.opts.Tags {
		tags[k] = v
	}
	tags["sensor"] = s.opts.SensorName
	tags["state"] = string(state)

	var fields map[string]float64
	if state == evaluator.StateFailure || r == nil {
		tags["state"] = string(evaluator.StateFailure)
		fields = map[string]float64{
			"temperature": 0.0,
			"humidity":    0.0,
			"pressure":    0.0,
		}
	} else {
		fields = map[string]float64{
			"temperature": r.Temperature,
			"humidity":    r.Humidity,
		}
		if s.opts.IncludePressure && r.HasPressure {
			fields["pressure"] = r.Pressure
		}
	}

	return Point{
		Measurement: Measurement,
		Tags:        tags,
		Fields:      fields,
		Time:        at,
	}
}
