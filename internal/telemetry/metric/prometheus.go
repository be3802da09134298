package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/tidekv/internal/core/domain"
)

const namespace = "tidekv"

// Metrics holds all application metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Command metrics
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	commandErrors   *prometheus.CounterVec

	// Connection metrics
	connsActive   prometheus.Gauge
	connsTotal    prometheus.Counter
	connsRejected *prometheus.CounterVec
	netBytes      *prometheus.CounterVec
	protocolErrs  prometheus.Counter
	rateLimited   prometheus.Counter

	// Expiry metrics
	sweepRuns    prometheus.Counter
	sweepSampled prometheus.Counter
	sweepRemoved prometheus.Counter

	// Persistence metrics
	snapshots        *prometheus.CounterVec
	snapshotDuration prometheus.Histogram
	snapshotBytes    prometheus.Gauge

	// Config metrics
	configReloads *prometheus.CounterVec
}

// New creates the metrics and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_total",
			Help: "Commands executed, by command and result.",
		}, []string{"command", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "command_duration_seconds",
			Help:    "Command execution latency.",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"command"}),
		commandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "command_errors_total",
			Help: "Command errors, by error kind.",
		}, []string{"kind"}),

		connsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connected_clients",
			Help: "Currently open client connections.",
		}),
		connsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_total",
			Help: "Accepted client connections.",
		}),
		connsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_rejected_total",
			Help: "Refused client connections, by reason.",
		}, []string{"reason"}),
		netBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "net_bytes_total",
			Help: "Bytes read from and written to clients.",
		}, []string{"direction"}),
		protocolErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "protocol_errors_total",
			Help: "Connections closed for malformed input.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limited_commands_total",
			Help: "Commands rejected by the per-client rate limit.",
		}),

		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "expiry", Name: "sweeps_total",
			Help: "Active expiry sweep ticks.",
		}),
		sweepSampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "expiry", Name: "sampled_keys_total",
			Help: "Volatile keys inspected by the active sweep.",
		}),
		sweepRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "expiry", Name: "removed_keys_total",
			Help: "Expired keys removed by the active sweep.",
		}),

		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "persistence", Name: "snapshots_total",
			Help: "Snapshot attempts, by result.",
		}, []string{"result"}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "persistence", Name: "snapshot_duration_seconds",
			Help:    "Time to write a snapshot.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		snapshotBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "persistence", Name: "last_snapshot_bytes",
			Help: "Size of the newest snapshot.",
		}),

		configReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "config_reloads_total",
			Help: "Configuration hot reloads, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commandsTotal, m.commandDuration, m.commandErrors,
		m.connsActive, m.connsTotal, m.connsRejected, m.netBytes, m.protocolErrs, m.rateLimited,
		m.sweepRuns, m.sweepSampled, m.sweepRemoved,
		m.snapshots, m.snapshotDuration, m.snapshotBytes,
		m.configReloads,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister adds extra collectors, such as the badger store gauges.
func (m *Metrics) MustRegister(cs ...prometheus.Collector) {
	if m == nil {
		return
	}
	m.registry.MustRegister(cs...)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCommand records one executed command. Its signature matches
// command.Observer.
func (m *Metrics) ObserveCommand(name string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		m.commandErrors.WithLabelValues(domain.KindOf(err).String()).Inc()
	}
	m.commandsTotal.WithLabelValues(name, result).Inc()
	if elapsed > 0 {
		m.commandDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

// ConnOpened records an accepted connection.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connsTotal.Inc()
	m.connsActive.Inc()
}

// ConnClosed records a closed connection.
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.connsActive.Dec()
}

// ConnRejected records a refused connection.
func (m *Metrics) ConnRejected(reason string) {
	if m == nil {
		return
	}
	m.connsRejected.WithLabelValues(reason).Inc()
}

// BytesRead records inbound traffic.
func (m *Metrics) BytesRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.netBytes.WithLabelValues("in").Add(float64(n))
}

// BytesWritten records outbound traffic.
func (m *Metrics) BytesWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.netBytes.WithLabelValues("out").Add(float64(n))
}

// ProtocolError records a connection closed for malformed input.
func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrs.Inc()
}

// RateLimited records a rejected command.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// ObserveSweep records one active expiry tick.
func (m *Metrics) ObserveSweep(sampled, removed int) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepSampled.Add(float64(sampled))
	m.sweepRemoved.Add(float64(removed))
}

// ObserveSnapshot records one snapshot attempt.
func (m *Metrics) ObserveSnapshot(elapsed time.Duration, size int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.snapshots.WithLabelValues("error").Inc()
		return
	}
	m.snapshots.WithLabelValues("ok").Inc()
	m.snapshotDuration.Observe(elapsed.Seconds())
	m.snapshotBytes.Set(float64(size))
}

// ConfigReloaded records a configuration reload.
func (m *Metrics) ConfigReloaded(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.configReloads.WithLabelValues("error").Inc()
		return
	}
	m.configReloads.WithLabelValues("ok").Inc()
}
