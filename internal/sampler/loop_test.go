package sampler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/weatherd/weatherd/internal/alerter"
	"github.com/weatherd/weatherd/internal/evaluator"
	"github.com/weatherd/weatherd/internal/metrics"
	"github.com/weatherd/weatherd/internal/sensor"
	"github.com/weatherd/weatherd/internal/storage"
)

type step struct {
	reading *sensor.Reading
	err     error
	panic   bool
	cancel  bool
}

// scriptedSource replays steps in order and repeats the last one.
type scriptedSource struct {
	steps  []step
	reads  int
	cancel context.CancelFunc
}

func (s *scriptedSource) Read(ctx context.Context) (*sensor.Reading, error) {
	i := s.reads
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.reads++

	st := s.steps[i]
	if st.cancel {
		s.cancel()
		return nil, ctx.Err()
	}
	if st.panic {
		panic("bus exploded")
	}
	return st.reading, st.err
}

func (s *scriptedSource) Close() error { return nil }

type fakeWriter struct {
	points []storage.Point
	err    error
	// cancel, when set, is called after the point is recorded.
	cancel context.CancelFunc
}

func (f *fakeWriter) Write(_ context.Context, _, _ string, p storage.Point) error {
	f.points = append(f.points, p)
	if f.cancel != nil {
		f.cancel()
	}
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

type fakeTransport struct {
	subjects []string
	err      error
}

func (f *fakeTransport) Send(_ context.Context, subject, _ string) error {
	f.subjects = append(f.subjects, subject)
	return f.err
}

type harness struct {
	loop      *Loop
	source    *scriptedSource
	writer    *fakeWriter
	transport *fakeTransport
	metrics   *metrics.Metrics
	store     *alerter.MemoryStateStore
}

func newHarness(steps []step, mode alerter.Mode) *harness {
	h := &harness{
		source:    &scriptedSource{steps: steps},
		writer:    &fakeWriter{},
		transport: &fakeTransport{},
		metrics:   metrics.New(),
		store:     alerter.NewMemoryStateStore(),
	}
	th := evaluator.DefaultThresholds()
	h.loop = New(Config{
		Source:     h.source,
		Thresholds: th,
		Sink:       storage.NewSink(h.writer, storage.SinkOptions{Bucket: "home", Org: "lab", SensorName: "test"}),
		Dispatcher: alerter.NewDispatcher(th, h.transport, alerter.Options{Enabled: true, Mode: mode}, h.metrics, zerolog.Nop()),
		StateStore: h.store,
		Interval:   time.Millisecond,
		Metrics:    h.metrics,
	}, zerolog.Nop())
	return h
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestFourTickScenario(t *testing.T) {
	h := newHarness([]step{
		{reading: sensor.NewReading(24, 50)},
		{reading: sensor.NewReading(26, 50)},
		{reading: sensor.NewReading(28, 50)},
		{reading: sensor.NewReading(20, 50)},
	}, alerter.ModeLevel)

	wantStates := []evaluator.State{evaluator.StateNormal, evaluator.StateWarning, evaluator.StateAlarm, evaluator.StateNormal}
	wantSent := []int{0, 1, 1, 0}

	var previous evaluator.State
	for i := range wantStates {
		out, err := h.loop.RunTick(context.Background(), previous)
		if err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
		if out.State != wantStates[i] {
			t.Errorf("tick %d: state %s, want %s", i+1, out.State, wantStates[i])
		}
		if out.Alerts.Sent != wantSent[i] {
			t.Errorf("tick %d: sent %d alerts, want %d", i+1, out.Alerts.Sent, wantSent[i])
		}
		if out.Seq != uint64(i+1) {
			t.Errorf("tick %d: seq %d", i+1, out.Seq)
		}
		previous = out.State
	}

	if len(h.writer.points) != 4 {
		t.Fatalf("got %d points, want 4", len(h.writer.points))
	}
	for i, p := range h.writer.points {
		if p.Tags["state"] == string(evaluator.StateFailure) {
			t.Errorf("point %d is a failure record", i)
		}
	}
	if len(h.transport.subjects) != 2 {
		t.Fatalf("got %d alerts, want 2: %v", len(h.transport.subjects), h.transport.subjects)
	}
	if h.transport.subjects[0] != "Temperature near alarm: 26.00 °C" {
		t.Errorf("tick 2 alert: %q", h.transport.subjects[0])
	}
	if h.transport.subjects[1] != "Temperature alarm exceeded: 28.00 °C" {
		t.Errorf("tick 3 alert: %q", h.transport.subjects[1])
	}

	last, ok := h.loop.LastOutcome()
	if !ok || last.Seq != 4 || last.State != evaluator.StateNormal {
		t.Errorf("last outcome = %+v, %v", last, ok)
	}
}

func TestStorageAlwaysFailing(t *testing.T) {
	const n = 5
	h := newHarness([]step{{reading: sensor.NewReading(26, 50)}}, alerter.ModeLevel)
	h.writer.err = errors.New("influx down")

	for i := 0; i < n; i++ {
		out, err := h.loop.RunTick(context.Background(), "")
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if out.StorageErr == nil {
			t.Errorf("tick %d: storage error not recorded", i)
		}
	}

	if h.source.reads != n {
		t.Errorf("reads = %d, want %d", h.source.reads, n)
	}
	if len(h.transport.subjects) != n {
		t.Errorf("dispatches = %d, want %d", len(h.transport.subjects), n)
	}
	if got := counterValue(t, h.metrics.Registry(), "weatherd_storage_write_errors_total"); got != n {
		t.Errorf("storage errors = %v, want %d", got, n)
	}
}

func TestTransportAlwaysFailing(t *testing.T) {
	const n = 4
	h := newHarness([]step{{reading: sensor.NewReading(28, 50)}}, alerter.ModeLevel)
	h.transport.err = errors.New("503")

	for i := 0; i < n; i++ {
		out, err := h.loop.RunTick(context.Background(), "")
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if out.StorageErr != nil {
			t.Errorf("tick %d: persistence failed: %v", i, out.StorageErr)
		}
		if out.Alerts.Failed != 1 {
			t.Errorf("tick %d: alerts %+v", i, out.Alerts)
		}
	}
	if len(h.writer.points) != n {
		t.Errorf("points = %d, want %d", len(h.writer.points), n)
	}
}

func TestSensorErrorIsFailureTick(t *testing.T) {
	h := newHarness([]step{{err: errors.New("i2c: nack")}}, alerter.ModeLevel)

	out, err := h.loop.RunTick(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if out.State != evaluator.StateFailure || out.SensorErr == nil {
		t.Errorf("outcome = %+v", out)
	}
	if len(h.writer.points) != 1 {
		t.Fatalf("got %d points", len(h.writer.points))
	}
	p := h.writer.points[0]
	if p.Tags["state"] != "failure" || p.Fields["temperature"] != 0 || p.Fields["humidity"] != 0 || p.Fields["pressure"] != 0 {
		t.Errorf("failure point = %+v", p)
	}
	if len(h.transport.subjects) != 0 {
		t.Error("failure tick must not alert")
	}
}

func TestRunTickRecoversPanic(t *testing.T) {
	h := newHarness([]step{{panic: true}}, alerter.ModeLevel)

	_, err := h.loop.RunTick(context.Background(), "")
	var te *TickError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want *TickError", err)
	}
	if te.Op != "read" {
		t.Errorf("op = %q, want read", te.Op)
	}
	if got := counterValue(t, h.metrics.Registry(), "weatherd_tick_panics_total"); got != 1 {
		t.Errorf("tick panics = %v, want 1", got)
	}
}

func TestRunWritesFailureRecordAfterPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness([]step{{panic: true}, {cancel: true}}, alerter.ModeLevel)
	h.source.cancel = cancel

	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	if len(h.writer.points) != 1 || h.writer.points[0].Tags["state"] != "failure" {
		t.Fatalf("points = %+v, want one failure record", h.writer.points)
	}
	state, _ := h.store.Load(context.Background())
	if state != evaluator.StateFailure {
		t.Errorf("stored state = %q, want failure", state)
	}
}

func TestRunThreadsPreviousState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness([]step{
		{reading: sensor.NewReading(26, 50)},
		{reading: sensor.NewReading(26.2, 50)},
		{reading: sensor.NewReading(26.4, 50)},
		{cancel: true},
	}, alerter.ModeEdge)
	h.source.cancel = cancel

	if err := h.loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.transport.subjects) != 1 {
		t.Errorf("edge mode sent %d alerts for one transition: %v", len(h.transport.subjects), h.transport.subjects)
	}
	if len(h.writer.points) != 3 {
		t.Errorf("points = %d, want 3", len(h.writer.points))
	}
	state, _ := h.store.Load(context.Background())
	if state != evaluator.StateWarning {
		t.Errorf("stored state = %q, want warning", state)
	}
}

func TestRunResumesFromStoredState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness([]step{
		{reading: sensor.NewReading(26, 50)},
		{cancel: true},
	}, alerter.ModeEdge)
	h.source.cancel = cancel
	if err := h.store.Save(ctx, evaluator.StateWarning); err != nil {
		t.Fatal(err)
	}

	if err := h.loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.transport.subjects) != 0 {
		t.Errorf("unchanged state after restart was re-announced: %v", h.transport.subjects)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := newHarness([]step{{reading: sensor.NewReading(20, 50)}}, alerter.ModeLevel)
	if err := h.loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.writer.points) != 0 {
		t.Errorf("abandoned tick wrote %d points", len(h.writer.points))
	}
}

func TestRunTickSkipsDispatchAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness([]step{{reading: sensor.NewReading(28, 75)}}, alerter.ModeLevel)
	h.writer.cancel = cancel

	out, err := h.loop.RunTick(ctx, "")
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if out.Abandoned || out.State != evaluator.StateAlarm {
		t.Errorf("tick should complete as alarm: %+v", out)
	}
	if len(h.writer.points) != 1 {
		t.Errorf("reading should still be persisted, got %d points", len(h.writer.points))
	}
	if len(h.transport.subjects) != 0 || out.Alerts != (alerter.Result{}) {
		t.Errorf("alerts dispatched after shutdown: %v", h.transport.subjects)
	}
	if got := counterValue(t, h.metrics.Registry(), "weatherd_alert_send_errors_total"); got != 0 {
		t.Errorf("alert_send_errors_total = %v, want 0", got)
	}
}

func TestLogReadingFields(t *testing.T) {
	tests := []struct {
		name    string
		reading *sensor.Reading
		want    map[string]float64
		absent  []string
	}{
		{
			name:    "without pressure",
			reading: sensor.NewReading(24.5, 51),
			want:    map[string]float64{"temperature": 24.5, "humidity": 51},
			absent:  []string{"pressure"},
		},
		{
			name:    "with pressure",
			reading: sensor.NewReading(24.5, 51).WithPressure(1013.25),
			want:    map[string]float64{"temperature": 24.5, "humidity": 51, "pressure": 1013.25},
		},
		{
			name:   "no reading",
			absent: []string{"temperature", "humidity", "pressure"},
		},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		l := New(Config{}, zerolog.New(&buf))
		l.logReading(TickOutcome{Seq: 7, Reading: tt.reading, State: evaluator.StateNormal})

		var entry map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("%s: decode log line %q: %v", tt.name, buf.String(), err)
		}
		if _, ok := entry["reading"]; ok {
			t.Errorf("%s: reading logged as a preformatted string", tt.name)
		}
		for k, v := range tt.want {
			if got, ok := entry[k].(float64); !ok || got != v {
				t.Errorf("%s: %s = %v, want %v", tt.name, k, entry[k], v)
			}
		}
		for _, k := range tt.absent {
			if _, ok := entry[k]; ok {
				t.Errorf("%s: unexpected field %s", tt.name, k)
			}
		}
	}
}
