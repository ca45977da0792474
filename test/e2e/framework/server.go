// Package framework boots a complete DittoOTS server for end-to-end tests
// and drives it through the TCP client.
package framework

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/config"
	"github.com/marmos91/dittoots/pkg/ots/engine"
	"github.com/marmos91/dittoots/pkg/server"
	"github.com/marmos91/dittoots/pkg/store/catalog"
	"github.com/marmos91/dittoots/pkg/store/content"
	"github.com/marmos91/dittoots/pkg/store/content/cache"
)

// StoreType represents the content backend of a test server.
type StoreType string

const (
	StoreTypeMemory     StoreType = "memory"
	StoreTypeFilesystem StoreType = "filesystem"
)

// TestServerConfig holds configuration for the test server.
type TestServerConfig struct {
	Port         int
	ContentStore StoreType

	// Catalog is memory, badger or leveldb (default badger)
	Catalog string

	// WriteBuffer puts the write-back buffer in front of the content store
	WriteBuffer bool

	// MaxChunkSize bounds transfer chunks; small values force many chunks
	MaxChunkSize int

	LogLevel       string
	StartupTimeout time.Duration
}

// TestServer wraps a DittoOTS server for testing. Its data directory
// survives Stop, so Start after Stop restarts over the same state.
type TestServer struct {
	t       testing.TB
	config  TestServerConfig
	dataDir string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	errc    chan error

	engine  *engine.Engine
	content content.Store
	catalog catalog.Catalog
}

// NewTestServer creates a test server with a private data directory. The
// directory is removed when the test ends.
func NewTestServer(t testing.TB, cfg TestServerConfig) *TestServer {
	t.Helper()

	if cfg.Port == 0 {
		cfg.Port = findFreePort(t)
	}
	if cfg.ContentStore == "" {
		cfg.ContentStore = StoreTypeFilesystem
	}
	if cfg.Catalog == "" {
		cfg.Catalog = "badger"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "ERROR" // Keep tests quiet by default
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 10 * time.Second
	}

	dataDir, err := os.MkdirTemp("", "dittoots-e2e-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}

	ts := &TestServer{t: t, config: cfg, dataDir: dataDir}
	t.Cleanup(func() {
		if err := ts.Stop(); err != nil {
			t.Logf("Warning: stop failed: %v", err)
		}
		if err := os.RemoveAll(dataDir); err != nil {
			t.Logf("Warning: failed to remove temp directory %s: %v", dataDir, err)
		}
	})
	return ts
}

// appConfig builds the application configuration the server runs with.
func (ts *TestServer) appConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = ts.config.LogLevel

	cfg.Content.Type = string(ts.config.ContentStore)
	cfg.Content.Filesystem["path"] = filepath.Join(ts.dataDir, "content")
	cfg.Content.WriteBuffer.Enabled = ts.config.WriteBuffer

	cfg.Catalog.Type = ts.config.Catalog
	cfg.Catalog.Badger["db_path"] = filepath.Join(ts.dataDir, "catalog")
	cfg.Catalog.LevelDB["path"] = filepath.Join(ts.dataDir, "catalog.ldb")

	if ts.config.MaxChunkSize > 0 {
		cfg.OTS.MaxChunkSize = ts.config.MaxChunkSize
	}

	cfg.GC.Enabled = false
	cfg.Importer.Enabled = false
	cfg.Server.ShutdownTimeout = 5 * time.Second

	cfg.Adapters.TCP.BindAddress = "127.0.0.1"
	cfg.Adapters.TCP.Port = ts.config.Port
	return cfg
}

// Start builds every component from configuration and serves in the
// background.
func (ts *TestServer) Start() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return fmt.Errorf("server already started")
	}

	logger.SetLevel(ts.config.LogLevel)

	cfg := ts.appConfig()
	ctx, cancel := context.WithCancel(context.Background())

	cs, err := config.CreateContentStore(ctx, &cfg.Content, nil)
	if err != nil {
		cancel()
		return err
	}
	cat, err := config.CreateCatalog(ctx, &cfg.Catalog)
	if err != nil {
		cancel()
		return err
	}
	e, err := config.CreateEngine(ctx, cfg, cs, cat, nil)
	if err != nil {
		cancel()
		_ = cat.Close()
		return err
	}

	srv := server.New(e, server.WithShutdownTimeout(cfg.Server.ShutdownTimeout))
	adapters, err := config.CreateAdapters(cfg, nil)
	if err != nil {
		cancel()
		_ = cat.Close()
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			cancel()
			_ = cat.Close()
			return err
		}
	}

	ts.cancel = cancel
	ts.errc = make(chan error, 1)
	ts.engine, ts.content, ts.catalog = e, cs, cat

	go func() { ts.errc <- srv.Serve(ctx) }()

	if err := ts.waitForServer(); err != nil {
		ts.shutdown()
		return fmt.Errorf("server failed to start: %w", err)
	}

	ts.started = true
	ts.t.Logf("Server started on %s (content=%s, catalog=%s)", ts.Addr(), cfg.Content.Type, cfg.Catalog.Type)
	return nil
}

// Stop shuts the server down, flushes buffered writes and closes the
// catalog. It is a no-op on a stopped server.
func (ts *TestServer) Stop() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.started {
		return nil
	}
	ts.started = false
	return ts.shutdown()
}

func (ts *TestServer) shutdown() error {
	ts.cancel()

	var first error
	select {
	case err := <-ts.errc:
		first = err
	case <-time.After(10 * time.Second):
		first = fmt.Errorf("server did not stop in time")
	}

	if bs, ok := ts.content.(*cache.BufferedStore); ok {
		if err := bs.Close(context.Background()); err != nil && first == nil {
			first = err
		}
	}
	if err := ts.catalog.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Restart stops the server and starts it again over the same data.
func (ts *TestServer) Restart() error {
	if err := ts.Stop(); err != nil {
		return err
	}
	return ts.Start()
}

// Addr returns the host:port the TCP adapter listens on.
func (ts *TestServer) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", ts.config.Port)
}

// Engine returns the running engine.
func (ts *TestServer) Engine() *engine.Engine {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.engine
}

// ContentStore returns the running content store.
func (ts *TestServer) ContentStore() content.Store {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.content
}

// waitForServer waits for the server to be ready by attempting to connect
func (ts *TestServer) waitForServer() error {
	deadline := time.Now().Add(ts.config.StartupTimeout)
	for time.Now().Before(deadline) {
		select {
		case err := <-ts.errc:
			ts.errc <- err
			return fmt.Errorf("server exited: %v", err)
		default:
		}

		conn, err := net.DialTimeout("tcp", ts.Addr(), 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for server to start")
}

// findFreePort finds an available TCP port
func findFreePort(t testing.TB) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}
