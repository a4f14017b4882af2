package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "weatherd"

// Metrics holds the agent's collectors on a private registry, so several
// instances (tests) never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	ticks            *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	tickPanics       prometheus.Counter
	sensorErrors     prometheus.Counter
	storageErrors    prometheus.Counter
	alertsSent       *prometheus.CounterVec
	alertErrors      prometheus.Counter
	alertsSuppressed prometheus.Counter
	temperature      prometheus.Gauge
	humidity         prometheus.Gauge
	pressure         prometheus.Gauge
	state            prometheus.Gauge
}

// New registers all collectors plus the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Sampling ticks completed, by classified state.",
		}, []string{"state"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one tick, excluding the sleep.",
			Buckets:   prometheus.DefBuckets,
		}),
		tickPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_panics_total",
			Help:      "Ticks aborted by a recovered panic.",
		}),
		sensorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_read_errors_total",
			Help:      "Sensor reads that returned an I/O error.",
		}),
		storageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_write_errors_total",
			Help:      "Point writes that failed.",
		}),
		alertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "Alert messages accepted by the transport, by metric and kind.",
		}, []string{"metric", "kind"}),
		alertErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_send_errors_total",
			Help:      "Alert messages the transport failed to deliver.",
		}),
		alertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "State transitions not announced because the state is flapping.",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last plausible temperature reading.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Last plausible relative humidity reading.",
		}),
		pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pressure_hpa",
			Help:      "Last plausible pressure reading.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current state (0 normal, 1 warning, 2 alarm, -1 failure).",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks,
		m.tickDuration,
		m.tickPanics,
		m.sensorErrors,
		m.storageErrors,
		m.alertsSent,
		m.alertErrors,
		m.alertsSuppressed,
		m.temperature,
		m.humidity,
		m.pressure,
		m.state,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry (for tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The recording methods below are no-ops on a nil *Metrics.

func (m *Metrics) ObserveTick(state string, severity int, d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(state).Inc()
	m.tickDuration.Observe(d.Seconds())
	m.state.Set(float64(severity))
}

func (m *Metrics) ObserveReading(temperature, humidity, pressure float64, hasPressure bool) {
	if m == nil {
		return
	}
	m.temperature.Set(temperature)
	m.humidity.Set(humidity)
	if hasPressure {
		m.pressure.Set(pressure)
	}
}

func (m *Metrics) IncAlertSent(metric, kind string) {
	if m == nil {
		return
	}
	m.alertsSent.WithLabelValues(metric, kind).Inc()
}

func (m *Metrics) IncTickPanic() {
	if m != nil {
		m.tickPanics.Inc()
	}
}

func (m *Metrics) IncSensorError() {
	if m != nil {
		m.sensorErrors.Inc()
	}
}

func (m *Metrics) IncStorageError() {
	if m != nil {
		m.storageErrors.Inc()
	}
}

func (m *Metrics) IncAlertError() {
	if m != nil {
		m.alertErrors.Inc()
	}
}

func (m *Metrics) IncSuppressed() {
	if m != nil {
		m.alertsSuppressed.Inc()
	}
}
