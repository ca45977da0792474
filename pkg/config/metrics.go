package config

import (
	"github.com/marmos91/dittoots/pkg/adapter/tcp"
	"github.com/marmos91/dittoots/pkg/metrics"
	"github.com/marmos91/dittoots/pkg/ots/engine"
	"github.com/marmos91/dittoots/pkg/store/content/cache"
	"github.com/marmos91/dittoots/pkg/store/content/s3"
)

// MetricsResult contains all metrics-related components created from
// configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// OTS is passed to the engine (nil if disabled)
	OTS engine.Metrics

	// S3 is passed to the S3 content store (nil if disabled)
	S3 s3.S3Metrics

	// TCP is passed to the TCP adapter (nil if disabled)
	TCP tcp.Metrics

	// Cache is passed to the content write buffer (nil if disabled)
	Cache cache.Metrics
}

// InitializeMetrics creates the metrics components described by cfg.
//
// When metrics are disabled every field is nil and each consumer falls
// back to its own no-op implementation.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Server.Metrics.Port,
		}),
		OTS:   metrics.NewOTSMetrics(),
		S3:    metrics.NewS3Metrics(),
		TCP:   metrics.NewTCPMetrics(),
		Cache: metrics.NewCacheMetrics(),
	}
}
