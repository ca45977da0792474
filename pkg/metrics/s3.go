package metrics

import (
	"time"

	"github.com/marmos91/dittoots/pkg/store/content/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// s3Metrics is the Prometheus implementation of the s3.S3Metrics
// interface.
type s3Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
}

// NewS3Metrics creates a Prometheus-backed S3Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes the S3 content store to use its built-in no-op implementation.
func NewS3Metrics() s3.S3Metrics {
	if !IsEnabled() {
		return nil
	}
	return NewS3MetricsWith(GetRegistry())
}

// NewS3MetricsWith registers the S3 metrics on reg.
func NewS3MetricsWith(reg prometheus.Registerer) s3.S3Metrics {
	return &s3Metrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoots_s3_operations_total",
				Help: "Total number of S3 operations by operation type and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoots_s3_operation_duration_seconds",
				Help: "Duration of S3 operations in seconds",
				Buckets: []float64{
					0.01,  // 10ms
					0.025, // 25ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
					10.0,  // 10s
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoots_s3_bytes_transferred_total",
				Help: "Total bytes transferred in S3 operations",
			},
			[]string{"operation"}, // read or write
		),
		errorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoots_s3_errors_total",
				Help: "Total number of S3 operation errors by operation type",
			},
			[]string{"operation"},
		),
	}
}

// ObserveOperation implements s3.S3Metrics.ObserveOperation
func (m *s3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.errorsTotal.WithLabelValues(operation).Inc()
	}

	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBytes implements s3.S3Metrics.RecordBytes
func (m *s3Metrics) RecordBytes(operation string, bytes int64) {
	m.bytesTransferred.WithLabelValues(operation).Add(float64(bytes))
}
