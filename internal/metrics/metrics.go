// Package metrics provides Prometheus metrics for radio-relay.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "radio_relay"
)

// Metrics contains all Prometheus metrics for the relay.
type Metrics struct {
	// Channel lifecycle metrics
	ChannelsActive prometheus.Gauge
	ChannelsBroken prometheus.Gauge
	ChannelStarts  *prometheus.CounterVec

	// Traffic metrics
	DatagramsForwarded *prometheus.CounterVec
	BytesForwarded     *prometheus.CounterVec
	DatagramBytes      *prometheus.HistogramVec

	// Drop and error metrics
	DatagramsDropped *prometheus.CounterVec
	SendErrors       *prometheus.CounterVec
	LoopErrors       *prometheus.CounterVec

	// Return path metrics
	SourceChanges *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// Channel lifecycle metrics
		ChannelsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels_active",
			Help:      "Number of currently running relay channels",
		}),
		ChannelsBroken: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels_broken",
			Help:      "Number of channels whose forwarding loops died on a fatal error",
		}),
		ChannelStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_starts_total",
			Help:      "Total channel starts by channel name",
		}, []string{"channel"}),

		// Traffic metrics
		DatagramsForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_forwarded_total",
			Help:      "Total datagrams forwarded by channel and direction",
		}, []string{"channel", "direction"}),
		BytesForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_forwarded_total",
			Help:      "Total bytes forwarded by channel and direction",
		}, []string{"channel", "direction"}),
		DatagramBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "datagram_bytes",
			Help:      "Histogram of relayed datagram sizes in bytes",
			Buckets:   []float64{64, 256, 512, 1024, 1500, 3000, 4500, 6000, 9000},
		}, []string{"channel", "direction"}),

		// Drop and error metrics
		DatagramsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_dropped_total",
			Help:      "Total datagrams dropped by channel and reason",
		}, []string{"channel", "reason"}),
		SendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Total transient send errors by channel and direction",
		}, []string{"channel", "direction"}),
		LoopErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_errors_total",
			Help:      "Total fatal forwarding loop errors by channel and direction",
		}, []string{"channel", "direction"}),

		// Return path metrics
		SourceChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_changes_total",
			Help:      "Times the return path moved to a different host endpoint",
		}, []string{"channel"}),
	}

	return m
}

// RecordChannelStart records a relay channel entering service.
func (m *Metrics) RecordChannelStart(channel string) {
	m.ChannelsActive.Inc()
	m.ChannelStarts.WithLabelValues(channel).Inc()
}

// RecordChannelStop records a relay channel leaving service.
func (m *Metrics) RecordChannelStop() {
	m.ChannelsActive.Dec()
}

// RecordForward records one datagram relayed in the given direction.
func (m *Metrics) RecordForward(channel, direction string, bytes int) {
	m.DatagramsForwarded.WithLabelValues(channel, direction).Inc()
	m.BytesForwarded.WithLabelValues(channel, direction).Add(float64(bytes))
	m.DatagramBytes.WithLabelValues(channel, direction).Observe(float64(bytes))
}

// RecordDrop records a datagram dropped before forwarding.
func (m *Metrics) RecordDrop(channel, reason string) {
	m.DatagramsDropped.WithLabelValues(channel, reason).Inc()
}

// RecordSendError records a transient send failure.
func (m *Metrics) RecordSendError(channel, direction string) {
	m.SendErrors.WithLabelValues(channel, direction).Inc()
}

// RecordLoopError records a fatal loop error that broke the channel.
func (m *Metrics) RecordLoopError(channel, direction string) {
	m.ChannelsBroken.Inc()
	m.LoopErrors.WithLabelValues(channel, direction).Inc()
}

// RecordSourceChange records the return path moving to a new host endpoint.
func (m *Metrics) RecordSourceChange(channel string) {
	m.SourceChanges.WithLabelValues(channel).Inc()
}
