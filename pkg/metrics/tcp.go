package metrics

import (
	"github.com/marmos91/dittoots/pkg/adapter/tcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// tcpMetrics is the Prometheus implementation of tcp.Metrics.
type tcpMetrics struct {
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   prometheus.Counter
	frames              *prometheus.CounterVec
	bytes               *prometheus.CounterVec
}

// NewTCPMetrics creates Prometheus-backed adapter metrics, or nil when
// metrics are disabled.
func NewTCPMetrics() tcp.Metrics {
	if !IsEnabled() {
		return nil
	}
	return NewTCPMetricsWith(GetRegistry())
}

// NewTCPMetricsWith registers the adapter metrics on reg.
func NewTCPMetricsWith(reg prometheus.Registerer) tcp.Metrics {
	return &tcpMetrics{
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoots_tcp_active_connections",
				Help: "Current number of open client connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoots_tcp_connections_accepted_total",
				Help: "Total number of accepted client connections",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoots_tcp_connections_closed_total",
				Help: "Total number of closed client connections",
			},
		),
		frames: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoots_tcp_frames_total",
				Help: "Frames exchanged with clients by direction and kind",
			},
			[]string{"direction", "kind"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoots_tcp_channel_bytes_total",
				Help: "Transfer channel payload bytes by direction",
			},
			[]string{"direction"},
		),
	}
}

func (m *tcpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *tcpMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *tcpMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *tcpMetrics) RecordFrame(direction string, kind tcp.FrameKind) {
	m.frames.WithLabelValues(direction, kind.String()).Inc()
}

func (m *tcpMetrics) RecordBytes(direction string, bytes int64) {
	m.bytes.WithLabelValues(direction).Add(float64(bytes))
}
