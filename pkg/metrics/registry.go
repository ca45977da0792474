// Package metrics provides Prometheus metrics collection for DittoOTS
// components.
//
// All metrics are optional - if not initialized, components use no-op
// implementations. This allows the server to run with or without metrics
// collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	otsMetrics := metrics.NewOTSMetrics()
//	s3Metrics := metrics.NewS3Metrics()
//
//	// Or pass nil for no-op behavior
//	eng, _ := engine.New(cfg, contentStore, engine.WithMetrics(nil))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is the global Prometheus registry for all DittoOTS metrics.
	// Protected by registryOnce for write-once, read-many access.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It's safe to
// call multiple times - subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry, or nil when
// InitRegistry has not been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if metrics collection is enabled.
func IsEnabled() bool {
	return GetRegistry() != nil
}
