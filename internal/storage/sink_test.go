package storage

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/weatherd/weatherd/internal/evaluator"
	"github.com/weatherd/weatherd/internal/sensor"
)

type written struct {
	bucket, org string
	point       Point
	deadline    bool
}

type fakeWriter struct {
	writes []written
	err    error
	closed bool
}

func (f *fakeWriter) Write(ctx context.Context, bucket, org string, p Point) error {
	_, ok := ctx.Deadline()
	f.writes = append(f.writes, written{bucket, org, p, ok})
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var at = time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)

func testSink(w Writer, pressure bool) *Sink {
	return NewSink(w, SinkOptions{
		Bucket:          "home",
		Org:             "lab",
		SensorName:      "bme280",
		Tags:            map[string]string{"location": "attic"},
		IncludePressure: pressure,
		Timeout:         time.Second,
	})
}

func TestPersistNormal(t *testing.T) {
	w := &fakeWriter{}
	s := testSink(w, false)

	r := sensor.NewReading(21.5, 48).WithPressure(1012.3)
	if err := s.Persist(context.Background(), r, evaluator.StateNormal, at); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(w.writes) != 1 {
		t.Fatalf("got %d writes, want 1", len(w.writes))
	}

	got := w.writes[0]
	if got.bucket != "home" || got.org != "lab" {
		t.Errorf("bucket/org = %s/%s", got.bucket, got.org)
	}
	if !got.deadline {
		t.Error("write context should carry the storage timeout")
	}
	want := Point{
		Measurement: "weather",
		Tags:        map[string]string{"location": "attic", "sensor": "bme280", "state": "normal"},
		Fields:      map[string]float64{"temperature": 21.5, "humidity": 48},
		Time:        at,
	}
	if !reflect.DeepEqual(got.point, want) {
		t.Errorf("point = %+v\nwant %+v", got.point, want)
	}
}

func TestPersistPressure(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		reading *sensor.Reading
		want    bool
	}{
		{"enabled and present", true, sensor.NewReading(21, 40).WithPressure(1000), true},
		{"enabled but missing", true, sensor.NewReading(21, 40), false},
		{"disabled", false, sensor.NewReading(21, 40).WithPressure(1000), false},
	}

	for _, tt := range tests {
		s := testSink(&fakeWriter{}, tt.enabled)
		p := s.Point(tt.reading, evaluator.StateNormal, at)
		if _, ok := p.Fields["pressure"]; ok != tt.want {
			t.Errorf("%s: pressure field present = %v, want %v", tt.name, ok, tt.want)
		}
	}
}

func TestPersistFailureZeroed(t *testing.T) {
	w := &fakeWriter{}
	s := testSink(w, true)

	invalid := []*sensor.Reading{
		nil,
		sensor.NewReading(-273.15, math.NaN()),
		sensor.NewReading(150, 120).WithPressure(5),
	}
	for _, r := range invalid {
		if err := s.Persist(context.Background(), r, evaluator.StateFailure, at); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}

	want := map[string]float64{"temperature": 0, "humidity": 0, "pressure": 0}
	for i, wr := range w.writes {
		if wr.point.Tags["state"] != "failure" {
			t.Errorf("write %d: state tag %q", i, wr.point.Tags["state"])
		}
		if !reflect.DeepEqual(wr.point.Fields, want) {
			t.Errorf("write %d: fields %v", i, wr.point.Fields)
		}
		if !reflect.DeepEqual(wr.point, w.writes[0].point) {
			t.Errorf("write %d differs from the first failure record", i)
		}
	}
}

func TestPersistDoesNotMutateTags(t *testing.T) {
	tags := map[string]string{"location": "attic"}
	s := NewSink(&fakeWriter{}, SinkOptions{Bucket: "b", Org: "o", SensorName: "x", Tags: tags})

	s.Point(sensor.NewReading(20, 40), evaluator.StateWarning, at)
	if len(tags) != 1 {
		t.Errorf("configured tags were modified: %v", tags)
	}
}

func TestPersistWrapsError(t *testing.T) {
	boom := errors.New("boom")
	s := testSink(&fakeWriter{err: boom}, false)

	err := s.Persist(context.Background(), sensor.NewReading(20, 40), evaluator.StateNormal, at)
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want wrapped boom", err)
	}
}
