// Package engine implements the server side of the Object Transfer
// Service: the attribute read and write handlers, the two control point
// state machines, change notification and the per-session transfer
// channel.
//
// The engine owns one object store shared by every connected session.
// Each session gets its own filtered list view over that store, its own
// descriptor configuration and its own transfer state.
//
// Threading Model:
// Every exported method takes the engine mutex, so inbound events from any
// number of transports are applied one at a time in arrival order. Peer
// callbacks (Indicate, RequestDisconnect) are invoked with the mutex held
// and must not call back into the engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/ots/store"
	"github.com/marmos91/dittoots/pkg/ots/view"
	"github.com/marmos91/dittoots/pkg/store/catalog"
	"github.com/marmos91/dittoots/pkg/store/content"
)

// ErrUnknownSession is returned for events naming a session that is not
// connected.
var ErrUnknownSession = errors.New("unknown session")

// Peer is the engine's handle on one connected client.
type Peer interface {
	// Indicate delivers a value indication (control point response or
	// Object Changed) to the client.
	Indicate(h ots.HandleType, value []byte) error

	// RequestDisconnect asks the transport to drop the client after a
	// protocol violation.
	RequestDisconnect(reason error)
}

// Executor runs the OACP Execute procedure for an object.
type Executor interface {
	Execute(ctx context.Context, obj store.Object, params []byte) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, obj store.Object, params []byte) error

func (f ExecutorFunc) Execute(ctx context.Context, obj store.Object, params []byte) error {
	return f(ctx, obj, params)
}

// Metrics receives engine observations. Implementations live in
// pkg/metrics; nil disables collection.
type Metrics interface {
	// RecordProcedure counts one control point procedure.
	RecordProcedure(controlPoint, opcode, result string, duration time.Duration)

	// RecordTransfer counts bytes moved over a transfer channel.
	RecordTransfer(direction string, bytes int64)

	// RecordTransferAborted counts transfers that ended early.
	RecordTransferAborted(direction, reason string)

	// SetSessions reports the number of connected sessions.
	SetSessions(n int)

	// SetObjects reports the number of objects in the store.
	SetObjects(n int)

	// RecordIndication counts indications sent to clients.
	RecordIndication(kind string)
}

type noopMetrics struct{}

func (noopMetrics) RecordProcedure(string, string, string, time.Duration) {}
func (noopMetrics) RecordTransfer(string, int64)                          {}
func (noopMetrics) RecordTransferAborted(string, string)                  {}
func (noopMetrics) SetSessions(int)                                       {}
func (noopMetrics) SetObjects(int)                                        {}
func (noopMetrics) RecordIndication(string)                               {}

// Option customizes an Engine.
type Option func(*Engine)

// WithCatalog persists object metadata to c.
func WithCatalog(c catalog.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithMetrics enables metrics collection.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithExecutor installs the handler for OACP Execute.
func WithExecutor(x Executor) Option {
	return func(e *Engine) { e.executor = x }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is an OTS server.
type Engine struct {
	mu sync.Mutex

	cfg      Config
	store    *store.Store
	content  content.WritableContentStore
	catalog  catalog.Catalog
	metrics  Metrics
	executor Executor
	now      func() time.Time

	sessions map[string]*Session

	// bonded keeps the list views of disconnected bonded clients
	bonded map[string]*view.View

	// listing is the last generated directory listing
	listing []byte
}

// New creates an engine storing object content in cs.
//
// Parameters:
//   - cfg: Engine behavior; zero fields take defaults
//   - cs: Content store holding object bytes
//   - opts: Optional catalog, metrics, executor and clock
//
// Returns:
//   - *Engine: Ready to accept sessions. Call Restore to load a catalog.
//   - error: Invalid configuration
func New(cfg Config, cs content.WritableContentStore, opts ...Option) (*Engine, error) {
	if cs == nil {
		return nil, errors.New("engine requires a content store")
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		store:    store.New(cfg.Capacity),
		content:  cs,
		metrics:  noopMetrics{},
		now:      time.Now,
		sessions: make(map[string]*Session),
		bonded:   make(map[string]*view.View),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.refreshListing()
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// ============================================================================
// Sessions
// ============================================================================

// ConnectOptions describe a new session.
type ConnectOptions struct {
	// BondKey identifies a bonded client. A bonded client gets back the
	// list view it had when it last disconnected, with filters reset.
	BondKey string
}

// Connect registers a new client and returns its session ID.
func (e *Engine) Connect(peer Peer, opts ConnectOptions) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := newSession(uuid.NewString(), peer, opts.BondKey)

	if v, ok := e.bonded[opts.BondKey]; ok && opts.BondKey != "" {
		delete(e.bonded, opts.BondKey)
		v.Rebuild()
		s.view = v
	} else {
		s.view = view.New(e.store)
	}

	e.sessions[s.id] = s
	e.metrics.SetSessions(len(e.sessions))

	logger.Info("OTS session %s connected (bonded=%v)", s.id, s.bondKey != "")
	return s.id
}

// Disconnect tears a session down. Any transfer in progress is aborted,
// partial writes stay in place and every lock the session held is
// released.
func (e *Engine) Disconnect(sid string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sid]
	if !ok {
		return fmt.Errorf("disconnect %s: %w", sid, ErrUnknownSession)
	}

	if s.xfer.Busy() {
		e.abortTransfer(s, "disconnect")
	}
	s.xfer.Disconnect()
	s.channel = nil
	e.store.UnlockAll(s.id)

	delete(e.sessions, sid)
	e.metrics.SetSessions(len(e.sessions))

	if s.bondKey != "" {
		e.keepBondedView(s)
	}

	logger.Info("OTS session %s disconnected", sid)
	return nil
}

// keepBondedView saves the view of a bonded client, evicting nothing when
// the table is full.
func (e *Engine) keepBondedView(s *Session) {
	if _, exists := e.bonded[s.bondKey]; !exists && len(e.bonded) >= e.cfg.MaxBondedSessions {
		logger.Warn("Bonded view table full (%d), not keeping view of %s", len(e.bonded), s.id)
		return
	}
	s.view.ResetFilters()
	s.view.Rebuild()
	e.bonded[s.bondKey] = s.view
}

// Sessions returns the IDs of connected sessions.
func (e *Engine) Sessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) session(sid string) (*Session, error) {
	s, ok := e.sessions[sid]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sid, ErrUnknownSession)
	}
	return s, nil
}

// ============================================================================
// Shared helpers (mutex held)
// ============================================================================

// rebuildViews re-evaluates every live and bonded view after a change to
// the store or to object metadata.
func (e *Engine) rebuildViews() {
	for _, s := range e.sessions {
		s.view.Rebuild()
	}
	for _, v := range e.bonded {
		v.Rebuild()
	}
	e.metrics.SetObjects(e.store.Len())
}

// refreshListing regenerates the directory listing and updates the size
// of the directory object to match.
func (e *Engine) refreshListing() []byte {
	e.listing = codec.EncodeDirectoryListing(e.store.Objects())
	e.store.SetDirectorySize(uint32(len(e.listing)))
	return e.listing
}

// stamp returns the current time as an OTS timestamp.
func (e *Engine) stamp() ots.DateTime {
	return ots.FromTime(e.now())
}

// persist saves the object's metadata. Catalog failures are logged and do
// not fail the procedure; the in-memory store stays authoritative.
func (e *Engine) persist(ctx context.Context, id ots.ObjectID) {
	if e.catalog == nil || id == ots.DirectoryListingID {
		return
	}
	obj, ok := e.store.Find(id)
	if !ok {
		return
	}
	if err := e.catalog.Put(ctx, catalog.RecordFromObject(obj)); err != nil {
		logger.Error("Failed to persist object %s: %v", id, err)
	}
}

// persistNextID saves the allocator position.
func (e *Engine) persistNextID(ctx context.Context) {
	if e.catalog == nil {
		return
	}
	if err := e.catalog.SetNextID(ctx, e.store.NextID()); err != nil {
		logger.Error("Failed to persist next object ID: %v", err)
	}
}

// forget removes the object's record and content.
func (e *Engine) forget(ctx context.Context, id ots.ObjectID) {
	if e.catalog != nil {
		if err := e.catalog.Delete(ctx, id); err != nil {
			logger.Error("Failed to remove object %s from catalog: %v", id, err)
		}
	}
	if err := e.content.Delete(ctx, content.IDForObject(id)); err != nil && !errors.Is(err, content.ErrContentNotFound) {
		logger.Warn("Failed to delete content of object %s: %v", id, err)
	}
}

// notifyChanged sends Object Changed to every session other than origin
// that enabled indications on the Object Changed descriptor. origin is nil
// for server-side changes.
func (e *Engine) notifyChanged(origin *Session, flags ots.ChangeFlags, id ots.ObjectID) {
	if origin != nil {
		flags |= ots.ChangeSourceClient
	}
	value := codec.EncodeObjectChanged(codec.ObjectChanged{Flags: flags, ID: id})

	for _, s := range e.sessions {
		if s == origin || s.changedCCCD&ots.CCCDIndicate == 0 {
			continue
		}
		e.indicate(s, ots.HandleObjectChanged, value)
	}
}

// indicate sends one indication, logging delivery failures.
func (e *Engine) indicate(s *Session, h ots.HandleType, value []byte) {
	e.metrics.RecordIndication(h.String())
	if err := s.peer.Indicate(h, value); err != nil {
		logger.Warn("Session %s: indication on %s failed: %v", s.id, h, err)
	}
}

// readWindow returns length bytes of the object starting at offset.
// Bytes past the object's current size read as zeros, as does content
// that was never written.
func (e *Engine) readWindow(ctx context.Context, obj *store.Object, offset, length uint32) ([]byte, error) {
	buf := make([]byte, length)

	if obj.IsDirectory() {
		listing := e.refreshListing()
		if int(offset) < len(listing) {
			copy(buf, listing[offset:])
		}
		return buf, nil
	}

	if length == 0 || offset >= obj.CurrentSize {
		return buf, nil
	}

	err := e.content.ReadAt(ctx, content.IDForObject(obj.ID), buf, int64(offset))
	if err != nil && !errors.Is(err, content.ErrContentNotFound) {
		return nil, err
	}
	if end := uint64(offset) + uint64(length); end > uint64(obj.CurrentSize) {
		clear(buf[obj.CurrentSize-offset:])
	}
	return buf, nil
}
