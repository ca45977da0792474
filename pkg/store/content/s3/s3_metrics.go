package s3

import "time"

// S3Metrics provides observability for S3 operations. It is optional; when
// not provided, metrics collection is skipped.
type S3Metrics interface {
	// ObserveOperation records an S3 API call with its duration and outcome
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes transferred by "read" or "write"
	RecordBytes(operation string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}

func (noopMetrics) RecordBytes(string, int64) {}
