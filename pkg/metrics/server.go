package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the Prometheus registry over HTTP:
//   - GET /metrics: metrics in text or OpenMetrics format
//   - GET /: index page
type Server struct {
	server       *http.Server
	port         int
	shutdownOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on. Default: 9090
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

func (c *ServerConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 9090
	}
}

// NewServer creates a metrics HTTP server in a stopped state. Call Start
// to serve requests.
func NewServer(config ServerConfig) *Server {
	config.applyDefaults()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      newHandler(config.Port),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		server: server,
		port:   config.Port,
	}
}

// newHandler serves /metrics from the global registry, or a 503 when
// metrics are disabled, plus a small index page.
func newHandler(port int) http.Handler {
	mux := http.NewServeMux()

	if reg := GetRegistry(); reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
		logger.Debug("Metrics endpoint registered at /metrics")
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "Metrics collection is disabled\n")
		})
		logger.Debug("Metrics collection disabled")
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>DittoOTS Metrics</title></head>
<body>
    <h1>DittoOTS</h1>
    <p>Object Transfer Service metrics: <a href="/metrics">/metrics</a></p>
    <p>Scrape <code>http://&lt;host&gt;:%d/metrics</code> from Prometheus.</p>
</body>
</html>`, port)
	})

	return mux
}

// Start serves metrics until ctx is cancelled, then shuts down with a
// five second grace period.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener fails or shutdown does not complete
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening on port %d", s.port)
		logger.Debug("Metrics endpoint available at http://localhost:%d/metrics", s.port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Metrics server shutdown signal received")
		// ctx is already done; shut down on a fresh deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Safe to call more than once and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("Metrics server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
			logger.Error("Metrics server shutdown error: %v", err)
		} else {
			logger.Info("Metrics server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is listening on.
func (s *Server) Port() int {
	return s.port
}
