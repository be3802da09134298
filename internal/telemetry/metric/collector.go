package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// KeyspaceStats is what the keyspace collector reads at scrape time.
type KeyspaceStats struct {
	Keys     int
	Volatile int
	Expired  uint64
}

// KeyspaceSource supplies keyspace counters.
type KeyspaceSource func() KeyspaceStats

// KeyspaceCollector exports keyspace size without a background poller.
type KeyspaceCollector struct {
	source   KeyspaceSource
	keys     *prometheus.Desc
	volatile *prometheus.Desc
	expired  *prometheus.Desc
}

// NewKeyspaceCollector creates a collector reading from source.
func NewKeyspaceCollector(source KeyspaceSource) *KeyspaceCollector {
	return &KeyspaceCollector{
		source: source,
		keys: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "keyspace", "keys"),
			"Live keys, including expired keys not yet removed.", nil, nil),
		volatile: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "keyspace", "volatile_keys"),
			"Keys carrying an expiry.", nil, nil),
		expired: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "keyspace", "expired_keys_total"),
			"Keys removed because they expired, lazily or by the sweep.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *KeyspaceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keys
	ch <- c.volatile
	ch <- c.expired
}

// Collect implements prometheus.Collector.
func (c *KeyspaceCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.source()
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(st.Keys))
	ch <- prometheus.MustNewConstMetric(c.volatile, prometheus.GaugeValue, float64(st.Volatile))
	ch <- prometheus.MustNewConstMetric(c.expired, prometheus.CounterValue, float64(st.Expired))
}
