package adapter

import (
	"context"

	"github.com/marmos91/dittoots/pkg/ots/engine"
)

// Adapter is a transport that exposes the OTS engine to remote clients.
//
// Every adapter shares the same engine, so all clients see one object
// store regardless of how they connect.
//
// Lifecycle:
//  1. Creation: adapter built from its configuration section
//  2. Engine injection: SetEngine() before Serve()
//  3. Startup: Serve() blocks until shutdown
//  4. Shutdown: Stop() drains connections within the context deadline
type Adapter interface {
	// Serve starts accepting clients and blocks until ctx is cancelled or
	// a fatal error occurs. A return before cancellation is treated as
	// fatal by the server, which then stops every other adapter.
	Serve(ctx context.Context) error

	// SetEngine injects the shared engine. Called once, before Serve.
	SetEngine(e *engine.Engine)

	// Stop initiates graceful shutdown. It must be idempotent and safe to
	// call concurrently with Serve.
	Stop(ctx context.Context) error

	// Protocol returns a short name for logs and metrics.
	Protocol() string

	// Port returns the port the adapter listens on.
	Port() int
}
