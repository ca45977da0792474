// Package client implements the client role of the Object Transfer
// Service.
//
// The client is event driven. Requests go out through a Transport and the
// transport feeds responses, indications and channel events back through
// the Handle* methods. Nothing in this package blocks waiting for the
// server: every operation takes a completion callback, and callbacks are
// always invoked after the client's internal lock is released, so a
// callback may start the next operation directly.
//
// Attribute requests are serialized: at most one read or write is
// outstanding at a time, the rest wait in a queue. At most one control
// point procedure (OACP or OLCP) runs at a time.
package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/ots/store"
	"github.com/marmos91/dittoots/pkg/ots/transfer"
)

var (
	// ErrProcedureInProgress is returned when a control point procedure is
	// started while another one is still waiting for its response.
	ErrProcedureInProgress = errors.New("control point procedure already in progress")

	// ErrTransferInProgress is returned when an object read or write is
	// started while another transfer is running.
	ErrTransferInProgress = errors.New("object transfer already in progress")

	// ErrNoTransfer is returned by Abort when no read is running.
	ErrNoTransfer = errors.New("no object read in progress")

	// ErrAborted completes a read that was cancelled with Abort.
	ErrAborted = errors.New("object read aborted")

	// ErrChannelClosed completes a transfer whose channel went away.
	ErrChannelClosed = errors.New("transfer channel closed")

	// ErrOverrun completes a read when the server sends more bytes than
	// requested.
	ErrOverrun = errors.New("server sent more data than requested")

	// ErrUnexpectedResponse is returned when a control point response does
	// not match the request that is in flight.
	ErrUnexpectedResponse = errors.New("unexpected control point response")
)

// Transport carries client requests to the server.
//
// Implementations must not call back into the Client from these methods;
// responses are delivered later through the Handle* methods.
type Transport interface {
	// ReadRequest asks the server for the value of h.
	ReadRequest(h ots.HandleType) error

	// WriteRequest writes value to h.
	WriteRequest(h ots.HandleType, value []byte) error

	// SendData sends one chunk on the transfer channel. It returns
	// transfer.ErrWouldBlock while the server has granted no credits.
	SendData(chunk []byte) error

	// Disconnect drops the connection after a protocol violation. The
	// transport reports the loss later through HandleDisconnect.
	Disconnect(reason error)
}

// transportChannel sends transfer chunks through the Transport.
type transportChannel struct {
	t Transport
}

func (ch transportChannel) ID() uint16 { return 0 }

func (ch transportChannel) Send(chunk []byte) error { return ch.t.SendData(chunk) }

// Close is a no-op, the transport owns the channel.
func (ch transportChannel) Close() error { return nil }

// OACPError is a completed OACP procedure with a result other than
// Success.
type OACPError struct {
	Opcode ots.OACPOpcode
	Result ots.OACPResult
}

func (e *OACPError) Error() string {
	return fmt.Sprintf("oacp %s: %s", e.Opcode, e.Result)
}

// OLCPError is a completed OLCP procedure with a result other than
// Success.
type OLCPError struct {
	Opcode ots.OLCPOpcode
	Result ots.OLCPResult
}

func (e *OLCPError) Error() string {
	return fmt.Sprintf("olcp %s: %s", e.Opcode, e.Result)
}

// Option configures a Client.
type Option func(*Client)

// WithMaxChunk sets the largest chunk sent on the transfer channel.
func WithMaxChunk(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxChunk = n
		}
	}
}

// WithObjectChanged installs a handler for Object Changed indications.
func WithObjectChanged(fn func(codec.ObjectChanged)) Option {
	return func(c *Client) {
		c.onChanged = fn
	}
}

// Client drives one remote Object Transfer Server.
type Client struct {
	mu sync.Mutex
	t  Transport

	maxChunk  int
	onChanged func(codec.ObjectChanged)

	// att holds queued attribute requests; att[0] is on the wire when
	// inflight is set.
	att      []*attOp
	inflight bool

	proc *procedure
	xfer *transferOp

	// xs tracks the offsets of the transfer in progress on the channel.
	xs *transfer.State
	ch transfer.Channel

	current    store.Object
	hasCurrent bool

	// pending are user callbacks collected under mu and run by unlock.
	pending []func()
}

type attOp struct {
	write bool
	h     ots.HandleType
	value []byte
	done  func(value []byte, err error)
}

type procedure struct {
	h    ots.HandleType
	done func(value []byte, err error)
}

// New creates a client sending its requests through t.
func New(t Transport, opts ...Option) *Client {
	c := &Client{
		t:        t,
		maxChunk: transfer.DefaultMaxChunk,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ch = transportChannel{t: t}
	c.xs = transfer.NewState()
	c.xs.Connect(0, c.maxChunk)
	return c
}

// unlock releases mu and then runs the user callbacks queued meanwhile.
func (c *Client) unlock() {
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// later schedules fn to run once mu is released.
func (c *Client) later(fn func()) {
	c.pending = append(c.pending, fn)
}

// Current returns the metadata of the current object as last read by
// RefreshMetadata.
func (c *Client) Current() (store.Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.hasCurrent
}

// Busy reports whether a procedure or transfer is running.
func (c *Client) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proc != nil || c.xfer != nil
}

// ============================================================================
// Attribute queue
// ============================================================================

func (c *Client) enqueue(op *attOp) {
	c.att = append(c.att, op)
	c.pumpATT()
}

// pumpATT puts the head of the queue on the wire unless a request is
// already outstanding. Requests the transport refuses fail immediately.
func (c *Client) pumpATT() {
	for !c.inflight && len(c.att) > 0 {
		op := c.att[0]

		var err error
		if op.write {
			err = c.t.WriteRequest(op.h, op.value)
		} else {
			err = c.t.ReadRequest(op.h)
		}
		if err == nil {
			c.inflight = true
			return
		}

		c.att = c.att[1:]
		op.done(nil, fmt.Errorf("%s request: %w", op.h, err))
	}
}

func (c *Client) completeATT(write bool, h ots.HandleType, value []byte, status ots.ATTError) {
	if !c.inflight || c.att[0].write != write || c.att[0].h != h {
		logger.Warn("OTS client: unsolicited %s response on %s", kind(write), h)
		return
	}

	op := c.att[0]
	c.att = c.att[1:]
	c.inflight = false

	var err error
	if status != ots.ATTSuccess {
		err = status
	}
	op.done(value, err)
	c.pumpATT()
}

func kind(write bool) string {
	if write {
		return "write"
	}
	return "read"
}

// Read queues a read of h.
func (c *Client) Read(h ots.HandleType, done func(value []byte, err error)) {
	c.mu.Lock()
	defer c.unlock()

	c.enqueue(&attOp{h: h, done: func(value []byte, err error) {
		c.later(func() { done(value, err) })
	}})
}

// Write queues a write of value to h. Control points must go through
// OACP and OLCP instead.
func (c *Client) Write(h ots.HandleType, value []byte, done func(err error)) {
	c.mu.Lock()
	defer c.unlock()

	c.enqueue(&attOp{write: true, h: h, value: value, done: func(_ []byte, err error) {
		c.later(func() { done(err) })
	}})
}

// ============================================================================
// Inbound events
// ============================================================================

// HandleReadResponse delivers the server's answer to a ReadRequest.
func (c *Client) HandleReadResponse(h ots.HandleType, value []byte, status ots.ATTError) {
	c.mu.Lock()
	defer c.unlock()
	c.completeATT(false, h, value, status)
}

// HandleWriteResponse delivers the server's answer to a WriteRequest.
func (c *Client) HandleWriteResponse(h ots.HandleType, status ots.ATTError) {
	c.mu.Lock()
	defer c.unlock()
	c.completeATT(true, h, nil, status)
}

// HandleIndication delivers a control point response or an Object
// Changed indication.
func (c *Client) HandleIndication(h ots.HandleType, value []byte) {
	c.mu.Lock()
	defer c.unlock()

	switch h {
	case ots.HandleOACP, ots.HandleOLCP:
		if c.proc == nil || c.proc.h != h {
			logger.Warn("OTS client: unsolicited %s indication", h)
			return
		}
		c.finishProcedure(value, nil)

	case ots.HandleObjectChanged:
		oc, err := codec.DecodeObjectChanged(value)
		if err != nil {
			logger.Warn("OTS client: bad object changed indication: %v", err)
			return
		}
		logger.Debug("OTS client: object %s changed (flags 0x%02X)", oc.ID, uint8(oc.Flags))
		if c.onChanged != nil {
			fn := c.onChanged
			c.later(func() { fn(oc) })
		}

	default:
		logger.Debug("OTS client: ignoring indication on %s", h)
	}
}

// HandleChannelData delivers one chunk received on the transfer channel.
func (c *Client) HandleChannelData(data []byte) {
	c.mu.Lock()
	defer c.unlock()

	x := c.xfer
	if x == nil || !x.read {
		logger.Warn("OTS client: dropping %d unexpected bytes on transfer channel", len(data))
		return
	}
	c.receive(x, data)
}

// HandleChannelOpened marks the transfer channel usable again after
// HandleChannelClosed or HandleDisconnect.
func (c *Client) HandleChannelOpened() {
	c.mu.Lock()
	defer c.unlock()

	c.xs.Connect(0, 0)
}

// HandleBufferDrained resumes a write suspended on missing credits.
func (c *Client) HandleBufferDrained() {
	c.mu.Lock()
	defer c.unlock()

	if x := c.xfer; x != nil && !x.read && x.accepted {
		c.pumpWrite()
	}
}

// HandleChannelClosed fails the transfer in progress, if any. Reads and
// writes fail with transfer.ErrNoChannel until HandleChannelOpened.
func (c *Client) HandleChannelClosed() {
	c.mu.Lock()
	defer c.unlock()

	if c.xfer != nil {
		c.endTransfer(ErrChannelClosed)
	}
	c.xs.Disconnect()
}

// HandleDisconnect fails everything in flight. The client may be reused
// on a new connection once it reports HandleChannelOpened.
func (c *Client) HandleDisconnect(reason error) {
	c.mu.Lock()
	defer c.unlock()

	if reason == nil {
		reason = ErrChannelClosed
	}

	queued := c.att
	c.att = nil
	c.inflight = false
	for _, op := range queued {
		op.done(nil, reason)
	}
	if c.proc != nil {
		c.finishProcedure(nil, reason)
	}
	if c.xfer != nil {
		c.endTransfer(reason)
	}
	c.xs.Disconnect()
	c.hasCurrent = false
}
