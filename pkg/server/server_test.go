package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittoots/pkg/ots/engine"
	"github.com/marmos91/dittoots/pkg/store/content/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

// fakeAdapter serves until its context ends or fail is closed.
type fakeAdapter struct {
	protocol string
	port     int
	fail     chan struct{}

	mu      sync.Mutex
	engine  *engine.Engine
	stopped int
	started chan struct{}
}

func newFakeAdapter(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, fail: make(chan struct{}), started: make(chan struct{})}
}

func (a *fakeAdapter) Serve(ctx context.Context) error {
	close(a.started)
	select {
	case <-ctx.Done():
		return nil
	case <-a.fail:
		return errors.New("listener broke")
	}
}

func (a *fakeAdapter) SetEngine(e *engine.Engine) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.engine = e
}

func (a *fakeAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped++
	return nil
}

func (a *fakeAdapter) Protocol() string { return a.protocol }
func (a *fakeAdapter) Port() int        { return a.port }

func (a *fakeAdapter) stopCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

func newServer(t *testing.T) *DittoServer {
	t.Helper()
	cs, err := memory.NewMemoryContentStore(context.Background())
	require.NoError(t, err)
	e, err := engine.New(engine.Config{}, cs)
	require.NoError(t, err)
	return New(e, WithShutdownTimeout(time.Second))
}

func serve(s *DittoServer, ctx context.Context) chan error {
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx) }()
	return errc
}

func result(t *testing.T, errc chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(waitFor):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestAddAdapterInjectsEngine(t *testing.T) {
	s := newServer(t)
	a := newFakeAdapter("OTS-TCP", 6925)

	require.NoError(t, s.AddAdapter(a))
	assert.Same(t, s.Engine(), a.engine)
	assert.Len(t, s.Adapters(), 1)
}

func TestAddAdapterRejectsConflicts(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.AddAdapter(newFakeAdapter("OTS-TCP", 6925)))

	assert.Error(t, s.AddAdapter(newFakeAdapter("OTS-TCP", 7000)))
	assert.Error(t, s.AddAdapter(newFakeAdapter("OTHER", 6925)))
	assert.Error(t, s.AddAdapter(nil))
}

func TestServeWithoutAdapters(t *testing.T) {
	s := newServer(t)
	assert.Error(t, s.Serve(context.Background()))
}

func TestCancellationStopsEverything(t *testing.T) {
	s := newServer(t)
	a := newFakeAdapter("OTS-TCP", 6925)
	require.NoError(t, s.AddAdapter(a))

	var serviceStopped atomic.Bool
	require.NoError(t, s.AddService("probe", ServiceFunc(func(ctx context.Context) error {
		<-ctx.Done()
		serviceStopped.Store(true)
		return ctx.Err()
	})))

	ctx, cancel := context.WithCancel(context.Background())
	errc := serve(s, ctx)
	<-a.started
	cancel()

	assert.NoError(t, result(t, errc))
	assert.Equal(t, 1, a.stopCount())
	assert.True(t, serviceStopped.Load())
}

func TestAdapterFailureStopsOthers(t *testing.T) {
	s := newServer(t)
	healthy := newFakeAdapter("A", 1)
	broken := newFakeAdapter("B", 2)
	require.NoError(t, s.AddAdapter(healthy))
	require.NoError(t, s.AddAdapter(broken))

	errc := serve(s, context.Background())
	<-healthy.started
	<-broken.started
	close(broken.fail)

	err := result(t, errc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "B adapter error")
	assert.Equal(t, 1, healthy.stopCount())
}

func TestServiceFailureStopsAdapters(t *testing.T) {
	s := newServer(t)
	a := newFakeAdapter("OTS-TCP", 6925)
	require.NoError(t, s.AddAdapter(a))
	require.NoError(t, s.AddService("gc", ServiceFunc(func(ctx context.Context) error {
		return errors.New("bad schedule")
	})))

	err := result(t, serve(s, context.Background()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gc service error")
	assert.Equal(t, 1, a.stopCount())
}

func TestServeOnlyOnce(t *testing.T) {
	s := newServer(t)
	a := newFakeAdapter("OTS-TCP", 6925)
	require.NoError(t, s.AddAdapter(a))

	ctx, cancel := context.WithCancel(context.Background())
	errc := serve(s, ctx)
	<-a.started

	assert.Error(t, s.Serve(ctx))
	assert.Error(t, s.AddAdapter(newFakeAdapter("LATE", 1)))

	cancel()
	assert.NoError(t, result(t, errc))
}
