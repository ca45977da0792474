package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots/engine"
)

// DefaultPort is the port the TCP adapter listens on when none is
// configured.
const DefaultPort = 6925

// ErrNoEngine is returned by Serve when SetEngine was never called.
var ErrNoEngine = errors.New("tcp adapter: no engine configured")

// TCPAdapter exposes an OTS engine over TCP.
//
// Each accepted connection becomes one OTS session. The connection carries
// attribute reads and writes, indications, and the session's transfer
// channel, multiplexed as XDR frames (see Frame).
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (in-flight frames abort)
//  4. Wait for active connections to finish (up to ShutdownTimeout)
//  5. Force-close whatever is left
type TCPAdapter struct {
	config  TCPConfig
	engine  *engine.Engine
	metrics Metrics

	listener net.Listener

	// activeConns tracks live connections for graceful shutdown.
	activeConns sync.WaitGroup

	shutdownOnce sync.Once
	shutdown     chan struct{}

	connCount atomic.Int32

	// connSemaphore limits concurrent connections; nil means unlimited.
	connSemaphore chan struct{}

	// shutdownCtx is handed to every connection and cancelled on shutdown.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps remote address to net.Conn for forced closure.
	activeConnections sync.Map
}

// TCPConfig holds configuration for the TCP adapter.
//
// Default values (applied by New if zero):
//   - Port: 6925
//   - MaxConnections: 0 (unlimited)
//   - ReadTimeout: 5m
//   - WriteTimeout: 30s
//   - IdleTimeout: 5m
//   - ShutdownTimeout: 30s
//   - ChannelCredits: 8
type TCPConfig struct {
	// Enabled controls whether the TCP adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BindAddress is the interface to listen on. Empty means all.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// MaxConnections limits concurrent client connections. 0 means
	// unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// ReadTimeout bounds reading one frame once its record mark arrived.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing one frame.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`

	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout is how long Serve waits for connections to finish
	// after shutdown starts.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// ChannelCredits is the number of chunks a client may send on its
	// transfer channel before the server acknowledges any. Every chunk
	// the server consumes is granted back.
	ChannelCredits int `mapstructure:"channel_credits" yaml:"channel_credits" validate:"min=0"`

	// RateLimit throttles attribute requests per connection.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// MetricsLogInterval logs connection counts periodically. 0 disables.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`
}

// RateLimitConfig configures the per-connection request limiter.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. 0 disables limiting.
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`

	// Burst is the number of requests allowed at once.
	Burst uint `mapstructure:"burst" yaml:"burst"`
}

func (c *TCPConfig) applyDefaults() {
	// Enabled is defaulted in pkg/config so an explicit false survives.
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Minute
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.ChannelCredits == 0 {
		c.ChannelCredits = 8
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.RequestsPerSecond * 2
	}
}

func (c *TCPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.ChannelCredits < 0 {
		return fmt.Errorf("invalid ChannelCredits %d: must be >= 0", c.ChannelCredits)
	}
	return nil
}

// New creates a TCP adapter. A nil metrics disables collection.
//
// Returns an error when the configuration is invalid after defaults are
// applied.
func New(config TCPConfig, m Metrics) (*TCPAdapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid TCP config: %w", err)
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("TCP connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("TCP connection limit: unlimited")
	}

	if m == nil {
		m = noopMetrics{}
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &TCPAdapter{
		config:         config,
		metrics:        m,
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}, nil
}

// SetEngine injects the engine every connection talks to. It must be
// called before Serve.
func (s *TCPAdapter) SetEngine(e *engine.Engine) {
	s.engine = e
}

// Serve listens on the configured address and serves connections until
// ctx is cancelled or Stop is called.
func (s *TCPAdapter) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.BindAddress, fmt.Sprintf("%d", s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create TCP listener on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves connections accepted from listener. The adapter
// owns the listener and closes it on shutdown.
func (s *TCPAdapter) ServeListener(ctx context.Context, listener net.Listener) error {
	if s.engine == nil {
		_ = listener.Close()
		return ErrNoEngine
	}

	s.listener = listener
	logger.Info("OTS TCP server listening on %s", listener.Addr())
	logger.Debug("TCP config: max_connections=%d read_timeout=%v write_timeout=%v idle_timeout=%v credits=%d",
		s.config.MaxConnections, s.config.ReadTimeout, s.config.WriteTimeout, s.config.IdleTimeout,
		s.config.ChannelCredits)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("TCP shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting TCP connection: %v", err)
				continue
			}
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		s.metrics.RecordConnectionAccepted()
		current := s.connCount.Load()
		s.metrics.SetActiveConnections(current)
		logger.Debug("TCP connection accepted from %s (active: %d)", connAddr, current)

		conn := newConnection(s, tcpConn)
		go func(addr string) {
			defer func() {
				s.activeConnections.Delete(addr)
				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed()
				current := s.connCount.Load()
				s.metrics.SetActiveConnections(current)
				logger.Debug("TCP connection closed from %s (active: %d)", addr, current)
			}()

			conn.Serve(s.shutdownCtx)
		}(connAddr)
	}
}

func (s *TCPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("TCP shutdown initiated")
		close(s.shutdown)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing TCP listener: %v", err)
			}
		}
		s.cancelRequests()
	})
}

func (s *TCPAdapter) gracefulShutdown() error {
	logger.Info("TCP graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		s.connCount.Load(), s.config.ShutdownTimeout)

	select {
	case <-s.connectionsDone():
		logger.Info("TCP graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("TCP shutdown timeout exceeded: %d connection(s) still active after %v, forcing closure",
			remaining, s.config.ShutdownTimeout)
		s.forceCloseConnections()
		return fmt.Errorf("TCP shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *TCPAdapter) connectionsDone() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()
	return done
}

func (s *TCPAdapter) forceCloseConnections() {
	closed := 0
	s.activeConnections.Range(func(key, value any) bool {
		if err := value.(net.Conn).Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", key, err)
		} else {
			closed++
		}
		return true
	})
	if closed > 0 {
		logger.Info("Force-closed %d connection(s)", closed)
	}
}

// Stop starts shutdown and waits for connections until ctx is done.
// Cancelling the shutdown context already makes every connection close
// after its current frame.
func (s *TCPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	select {
	case <-s.connectionsDone():
		return nil
	case <-ctx.Done():
		logger.Warn("TCP stop: %d connection(s) still active: %v", s.connCount.Load(), ctx.Err())
		return ctx.Err()
	}
}

func (s *TCPAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			logger.Info("TCP metrics: active_connections=%d sessions=%d",
				s.connCount.Load(), len(s.engine.Sessions()))
		}
	}
}

// ActiveConnections returns the number of open connections.
func (s *TCPAdapter) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the configured port.
func (s *TCPAdapter) Port() int {
	return s.config.Port
}

// Protocol returns "OTS-TCP".
func (s *TCPAdapter) Protocol() string {
	return "OTS-TCP"
}
