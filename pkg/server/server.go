// Package server runs a DittoOTS instance: one shared engine, the protocol
// adapters that expose it, and the background services around it (metrics
// endpoint, garbage collector, inbox importer).
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/adapter"
	"github.com/marmos91/dittoots/pkg/ots/engine"
	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds the graceful stop of every adapter.
const DefaultShutdownTimeout = 30 * time.Second

// Service is a background task that runs until its context is cancelled.
// The garbage collector and the inbox importer implement it.
type Service interface {
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc func(ctx context.Context) error

func (f ServiceFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type namedService struct {
	name string
	svc  Service
}

// DittoServer coordinates the adapters and services of one engine.
//
// Lifecycle:
//  1. New() with the engine
//  2. AddAdapter() / AddService() for each component
//  3. Serve() blocks until the context is cancelled or a component fails
//
// A failure of any adapter or service cancels every other component.
type DittoServer struct {
	engine          *engine.Engine
	shutdownTimeout time.Duration

	mu       sync.Mutex
	adapters []adapter.Adapter
	services []namedService
	served   bool
}

// Option customizes a DittoServer.
type Option func(*DittoServer)

// WithShutdownTimeout bounds how long Serve waits for adapters to stop.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *DittoServer) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// New creates a server around e.
func New(e *engine.Engine, opts ...Option) *DittoServer {
	if e == nil {
		panic("engine cannot be nil")
	}

	s := &DittoServer{
		engine:          e,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the shared engine.
func (s *DittoServer) Engine() *engine.Engine {
	return s.engine
}

// AddAdapter registers a protocol adapter and injects the engine into it.
//
// Returns an error if another adapter already serves the same protocol or
// port, or if Serve has been called.
func (s *DittoServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		return errors.New("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return errors.New("cannot add adapter after Serve() has been called")
	}

	for _, existing := range s.adapters {
		if existing.Protocol() == a.Protocol() {
			return fmt.Errorf("adapter for protocol %s already registered", a.Protocol())
		}
		if existing.Port() == a.Port() {
			return fmt.Errorf("port %d already in use by %s adapter", a.Port(), existing.Protocol())
		}
	}

	a.SetEngine(s.engine)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", a.Protocol(), a.Port())
	return nil
}

// AddService registers a background service under a name used in logs.
func (s *DittoServer) AddService(name string, svc Service) error {
	if svc == nil {
		return fmt.Errorf("service %s cannot be nil", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return errors.New("cannot add service after Serve() has been called")
	}
	s.services = append(s.services, namedService{name: name, svc: svc})
	return nil
}

// Adapters returns the registered adapters in registration order.
func (s *DittoServer) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]adapter.Adapter(nil), s.adapters...)
}

// Serve starts every adapter and service and blocks until ctx is cancelled
// or one of them fails. Adapters are then stopped in reverse registration
// order.
//
// Returns:
//   - nil after a graceful shutdown triggered by ctx
//   - the first component error otherwise
func (s *DittoServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return errors.New("Serve() has already been called on this server instance")
	}
	s.served = true
	adapters := append([]adapter.Adapter(nil), s.adapters...)
	services := append([]namedService(nil), s.services...)
	s.mu.Unlock()

	if len(adapters) == 0 {
		return errors.New("no adapters registered; call AddAdapter() before Serve()")
	}

	logger.Info("Starting DittoOTS with %d adapter(s) and %d service(s)", len(adapters), len(services))

	g, gctx := errgroup.WithContext(ctx)

	for _, a := range adapters {
		g.Go(func() error {
			logger.Info("Starting %s adapter on port %d", a.Protocol(), a.Port())
			err := a.Serve(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("%s adapter failed: %v", a.Protocol(), err)
				return fmt.Errorf("%s adapter error: %w", a.Protocol(), err)
			}
			logger.Info("%s adapter stopped", a.Protocol())
			return nil
		})
	}

	for _, ns := range services {
		g.Go(func() error {
			logger.Debug("Starting %s service", ns.name)
			if err := ns.svc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("%s service failed: %v", ns.name, err)
				return fmt.Errorf("%s service error: %w", ns.name, err)
			}
			logger.Debug("%s service stopped", ns.name)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		} else {
			logger.Warn("Component failure, shutting down every adapter")
		}
		s.stopAdapters(adapters)
		return nil
	})

	err := g.Wait()

	for _, sess := range s.engine.Sessions() {
		_ = s.engine.Disconnect(sess)
	}

	if err != nil {
		return err
	}
	logger.Info("DittoOTS stopped gracefully")
	return nil
}

func (s *DittoServer) stopAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", a.Protocol(), err)
		}
	}
}
