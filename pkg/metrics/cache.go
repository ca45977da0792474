package metrics

import (
	"time"

	"github.com/marmos91/dittoots/pkg/store/content/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// cacheMetrics is the Prometheus implementation of cache.Metrics.
type cacheMetrics struct {
	writes        prometheus.Counter
	writeBytes    prometheus.Counter
	writeDuration prometheus.Histogram
	flushes       *prometheus.CounterVec
	flushBytes    prometheus.Counter
	flushDuration prometheus.Histogram
	buffers       prometheus.Gauge
}

// NewCacheMetrics creates Prometheus-backed write buffer metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes the buffered store to use its no-op implementation.
func NewCacheMetrics() cache.Metrics {
	if !IsEnabled() {
		return nil
	}
	return NewCacheMetricsWith(GetRegistry())
}

// NewCacheMetricsWith registers the write buffer metrics on reg.
func NewCacheMetricsWith(reg prometheus.Registerer) cache.Metrics {
	return &cacheMetrics{
		writes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoots_write_buffer_writes_total",
				Help: "Total number of chunk writes absorbed by the write buffer",
			},
		),
		writeBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoots_write_buffer_write_bytes_total",
				Help: "Total bytes written into the write buffer",
			},
		),
		writeDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "dittoots_write_buffer_write_duration_seconds",
				Help: "Duration of write buffer writes in seconds",
				Buckets: []float64{
					0.00001, // 10µs
					0.0001,  // 100µs
					0.001,   // 1ms
					0.01,    // 10ms
					0.1,     // 100ms
				},
			},
		),
		flushes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoots_write_buffer_flushes_total",
				Help: "Total number of write buffer flushes by status",
			},
			[]string{"status"},
		),
		flushBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoots_write_buffer_flush_bytes_total",
				Help: "Total bytes flushed to the backing content store",
			},
		),
		flushDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittoots_write_buffer_flush_duration_seconds",
				Help:    "Duration of write buffer flushes in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms .. ~16s
			},
		),
		buffers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoots_write_buffer_objects",
				Help: "Number of objects with unflushed writes",
			},
		),
	}
}

func (m *cacheMetrics) ObserveWrite(bytes int64, duration time.Duration) {
	m.writes.Inc()
	m.writeBytes.Add(float64(bytes))
	m.writeDuration.Observe(duration.Seconds())
}

func (m *cacheMetrics) ObserveFlush(bytes int64, duration time.Duration, err error) {
	m.flushDuration.Observe(duration.Seconds())
	if err != nil {
		m.flushes.WithLabelValues("error").Inc()
		return
	}
	m.flushes.WithLabelValues("success").Inc()
	m.flushBytes.Add(float64(bytes))
}

func (m *cacheMetrics) RecordBufferCount(count int) {
	m.buffers.Set(float64(count))
}
