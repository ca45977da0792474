package metrics

import (
	"time"

	"github.com/marmos91/dittoots/pkg/ots/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// otsMetrics is the Prometheus implementation of engine.Metrics.
//
// It tracks:
//   - Control point procedures by opcode and result
//   - Procedure latency
//   - Bytes streamed over transfer channels and aborted transfers
//   - Connected sessions and stored objects
//   - Indications sent to clients
type otsMetrics struct {
	proceduresTotal   *prometheus.CounterVec
	procedureDuration *prometheus.HistogramVec
	transferBytes     *prometheus.CounterVec
	transfersAborted  *prometheus.CounterVec
	sessions          prometheus.Gauge
	objects           prometheus.Gauge
	indications       *prometheus.CounterVec
}

// NewOTSMetrics creates a Prometheus-backed engine.Metrics instance.
//
// Returns nil if metrics are not enabled, which makes the engine fall back
// to its no-op implementation.
func NewOTSMetrics() engine.Metrics {
	if !IsEnabled() {
		return nil
	}
	return NewOTSMetricsWith(GetRegistry())
}

// NewOTSMetricsWith registers the engine metrics on reg.
func NewOTSMetricsWith(reg prometheus.Registerer) engine.Metrics {
	return &otsMetrics{
		proceduresTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoots_procedures_total",
				Help: "Total number of control point procedures by control point, opcode and result",
			},
			[]string{"control_point", "opcode", "result"},
		),
		procedureDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoots_procedure_duration_seconds",
				Help: "Time spent running control point procedures",
				Buckets: []float64{
					0.00001, // 10µs
					0.0001,  // 100µs
					0.001,   // 1ms
					0.01,    // 10ms
					0.1,     // 100ms
					1.0,     // 1s
				},
			},
			[]string{"control_point", "opcode"},
		),
		transferBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoots_transfer_bytes_total",
				Help: "Bytes moved over object transfer channels",
			},
			[]string{"direction"},
		),
		transfersAborted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoots_transfers_aborted_total",
				Help: "Transfers that ended before their last byte",
			},
			[]string{"direction", "reason"},
		),
		sessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoots_sessions",
				Help: "Number of connected OTS sessions",
			},
		),
		objects: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoots_objects",
				Help: "Number of objects in the store, including the directory listing",
			},
		),
		indications: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoots_indications_total",
				Help: "Indications sent to clients by characteristic",
			},
			[]string{"characteristic"},
		),
	}
}

func (m *otsMetrics) RecordProcedure(controlPoint, opcode, result string, duration time.Duration) {
	m.proceduresTotal.WithLabelValues(controlPoint, opcode, result).Inc()
	m.procedureDuration.WithLabelValues(controlPoint, opcode).Observe(duration.Seconds())
}

func (m *otsMetrics) RecordTransfer(direction string, bytes int64) {
	if bytes > 0 {
		m.transferBytes.WithLabelValues(direction).Add(float64(bytes))
	}
}

func (m *otsMetrics) RecordTransferAborted(direction, reason string) {
	m.transfersAborted.WithLabelValues(direction, reason).Inc()
}

func (m *otsMetrics) SetSessions(n int) {
	m.sessions.Set(float64(n))
}

func (m *otsMetrics) SetObjects(n int) {
	m.objects.Set(float64(n))
}

func (m *otsMetrics) RecordIndication(kind string) {
	m.indications.WithLabelValues(kind).Inc()
}
