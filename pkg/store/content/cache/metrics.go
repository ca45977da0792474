package cache

import "time"

// Metrics observes the write buffer.
type Metrics interface {
	// ObserveWrite records one buffered write.
	ObserveWrite(bytes int64, duration time.Duration)

	// ObserveFlush records one window written to the backing store.
	ObserveFlush(bytes int64, duration time.Duration, err error)

	// RecordBufferCount sets the number of objects with pending writes.
	RecordBufferCount(count int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveWrite(int64, time.Duration)        {}
func (noopMetrics) ObserveFlush(int64, time.Duration, error) {}
func (noopMetrics) RecordBufferCount(int)                    {}
