package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/marmos91/dittoots/internal/logger"
	"github.com/marmos91/dittoots/internal/ratelimiter"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/engine"
	"github.com/marmos91/dittoots/pkg/ots/transfer"
)

var (
	// errProtocol marks a frame the server cannot accept in the current
	// connection state. The connection is dropped.
	errProtocol = errors.New("protocol violation")

	errChannelClosed = errors.New("transfer channel closed")
)

// channelID is the identifier reported for every connection's transfer
// channel; there is one per connection.
const channelID = 0x0040

// Connection serves one client. It is the engine's Peer for the session
// and the session's transfer channel.
//
// A reader goroutine (Serve) decodes frames and calls into the engine; a
// writer goroutine drains the outbox. The engine calls Indicate, Send and
// Close while holding its own lock, so those only queue frames.
type Connection struct {
	server  *TCPAdapter
	conn    net.Conn
	limiter *ratelimiter.RateLimiter

	sid string

	mu sync.Mutex
	// outbox is drained by writeLoop.
	outbox []*Frame
	// holding defers outbound frames while a write request is in the
	// engine, so its response goes out first.
	holding bool
	held    []*Frame
	// credits are the chunks the client allows us to send.
	credits  int
	chanOpen bool
	// closing is set once a Disconnect frame is queued; the writer
	// closes the socket after flushing it.
	closing bool

	wake chan struct{}
	done chan struct{}
}

func newConnection(server *TCPAdapter, conn net.Conn) *Connection {
	rl := server.config.RateLimit
	return &Connection{
		server:  server,
		conn:    conn,
		limiter: ratelimiter.New(rl.RequestsPerSecond, rl.Burst),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Serve processes frames until the client goes away, the server shuts
// down or the client breaks the protocol.
func (c *Connection) Serve(ctx context.Context) {
	clientAddr := c.conn.RemoteAddr().String()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler from %s: %v", clientAddr, r)
		}
		if c.sid != "" {
			if err := c.server.engine.Disconnect(c.sid); err != nil {
				logger.Debug("Disconnect %s: %v", c.sid, err)
			}
		}
		close(c.done)
		<-writerDone
		_ = c.conn.Close()
	}()

	// Unblock the reader when the server shuts down.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		if ctx.Err() != nil {
			logger.Debug("Connection from %s closed due to server shutdown", clientAddr)
			return
		}
		if err := c.setIdleDeadline(); err != nil {
			logger.Warn("Failed to set deadline for %s: %v", clientAddr, err)
		}

		f, err := ReadFrame(c.conn)
		if err != nil {
			c.logReadError(ctx, clientAddr, err)
			return
		}
		c.server.metrics.RecordFrame("in", f.Kind)

		if err := c.handleFrame(ctx, f); err != nil {
			logger.Debug("Dropping connection from %s: %v", clientAddr, err)
			return
		}
	}
}

func (c *Connection) setIdleDeadline() error {
	if c.server.config.IdleTimeout <= 0 {
		return nil
	}
	return c.conn.SetReadDeadline(time.Now().Add(c.server.config.IdleTimeout))
}

func (c *Connection) logReadError(ctx context.Context, addr string, err error) {
	var netErr net.Error
	switch {
	case ctx.Err() != nil:
		logger.Debug("Connection from %s closed due to server shutdown", addr)
	case errors.Is(err, io.EOF):
		logger.Debug("Connection from %s closed by client", addr)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("Connection from %s timed out: %v", addr, err)
	default:
		logger.Debug("Error reading frame from %s: %v", addr, err)
	}
}

func (c *Connection) handleFrame(ctx context.Context, f *Frame) error {
	if c.sid == "" && f.Kind != FrameHello {
		return fmt.Errorf("%w: %s before hello", errProtocol, f.Kind)
	}

	e := c.server.engine

	switch f.Kind {
	case FrameHello:
		if c.sid != "" {
			return fmt.Errorf("%w: second hello", errProtocol)
		}
		c.sid = e.Connect(c, engine.ConnectOptions{BondKey: string(f.Value)})
		c.enqueue(&Frame{Kind: FrameWelcome, Value: []byte(c.sid)})

	case FrameRead:
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		value, status := e.ReadAttribute(ctx, c.sid, ots.HandleType(f.Handle))
		c.enqueue(&Frame{Kind: FrameReadResponse, Handle: f.Handle, Status: uint32(status), Value: value})

	case FrameWrite:
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		c.hold()
		status := e.WriteAttribute(ctx, c.sid, ots.HandleType(f.Handle), f.Value)
		c.release(&Frame{Kind: FrameWriteResponse, Handle: f.Handle, Status: uint32(status)})

	case FrameChannelOpen:
		return c.openChannel(f)

	case FrameChannelData:
		c.server.metrics.RecordBytes("in", int64(len(f.Value)))
		if err := e.ChannelData(ctx, c.sid, f.Value); err != nil {
			return err
		}
		c.enqueue(&Frame{Kind: FrameCredits, Count: 1})

	case FrameCredits:
		c.mu.Lock()
		c.credits += int(f.Count)
		c.mu.Unlock()
		return e.BufferDrained(ctx, c.sid)

	case FrameChannelClose:
		c.mu.Lock()
		c.chanOpen = false
		c.credits = 0
		c.mu.Unlock()
		return e.ChannelClosed(c.sid)

	default:
		return fmt.Errorf("%w: unexpected %s", errProtocol, f.Kind)
	}
	return nil
}

func (c *Connection) openChannel(f *Frame) error {
	c.mu.Lock()
	open := c.chanOpen
	c.mu.Unlock()

	maxChunk := int(f.Count)
	if limit := c.server.engine.Config().MaxChunkSize; maxChunk <= 0 || maxChunk > limit {
		maxChunk = limit
	}

	if open {
		c.enqueue(&Frame{Kind: FrameChannelOpened, Status: 1})
		return nil
	}

	c.mu.Lock()
	c.chanOpen = true
	c.credits = 0
	c.mu.Unlock()

	if err := c.server.engine.ChannelOpened(c.sid, c, maxChunk); err != nil {
		c.mu.Lock()
		c.chanOpen = false
		c.mu.Unlock()
		logger.Debug("Session %s: channel refused: %v", c.sid, err)
		c.enqueue(&Frame{Kind: FrameChannelOpened, Status: 1})
		return nil
	}

	c.enqueue(&Frame{Kind: FrameChannelOpened, Count: uint32(maxChunk)})
	c.enqueue(&Frame{Kind: FrameCredits, Count: uint32(c.server.config.ChannelCredits)})
	return nil
}

// ============================================================================
// Outbox
// ============================================================================

func (c *Connection) enqueue(f *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqueueLocked(f)
}

func (c *Connection) enqueueLocked(f *Frame) {
	if c.closing {
		return
	}
	if c.holding {
		c.held = append(c.held, f)
		return
	}
	c.outbox = append(c.outbox, f)
	c.signal()
}

func (c *Connection) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Connection) hold() {
	c.mu.Lock()
	c.holding = true
	c.mu.Unlock()
}

// release queues the write response followed by everything held back.
func (c *Connection) release(resp *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.holding = false
	held := c.held
	c.held = nil

	c.enqueueLocked(resp)
	for _, f := range held {
		c.enqueueLocked(f)
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.wake:
		case <-c.done:
			return
		}

		c.mu.Lock()
		frames := c.outbox
		c.outbox = nil
		closing := c.closing
		c.mu.Unlock()

		for _, f := range frames {
			if err := c.write(f); err != nil {
				logger.Debug("Write to %s failed: %v", c.conn.RemoteAddr(), err)
				_ = c.conn.Close()
				return
			}
		}

		if closing {
			c.mu.Lock()
			flushed := len(c.outbox) == 0
			c.mu.Unlock()
			if flushed {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *Connection) write(f *Frame) error {
	if c.server.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
			return err
		}
	}
	if err := WriteFrame(c.conn, f); err != nil {
		return err
	}
	c.server.metrics.RecordFrame("out", f.Kind)
	return nil
}

// ============================================================================
// engine.Peer
// ============================================================================

// Indicate queues an indication frame.
func (c *Connection) Indicate(h ots.HandleType, value []byte) error {
	c.enqueue(&Frame{Kind: FrameIndication, Handle: uint32(h), Value: append([]byte(nil), value...)})
	return nil
}

// RequestDisconnect queues a Disconnect frame; the socket closes once it
// is written.
func (c *Connection) RequestDisconnect(reason error) {
	msg := "disconnected"
	if reason != nil {
		msg = reason.Error()
	}
	logger.Info("Session %s: disconnecting client: %s", c.sid, msg)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.holding = false
	c.outbox = append(c.outbox, c.held...)
	c.held = nil
	c.enqueueLocked(&Frame{Kind: FrameDisconnect, Value: []byte(msg)})
	c.closing = true
	c.signal()
}

// ============================================================================
// transfer.Channel
// ============================================================================

// ID identifies the connection's transfer channel.
func (c *Connection) ID() uint16 { return channelID }

// Send queues one chunk if the client has granted a credit.
func (c *Connection) Send(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.chanOpen || c.closing {
		return errChannelClosed
	}
	if c.credits == 0 {
		return transfer.ErrWouldBlock
	}
	c.credits--
	c.enqueueLocked(&Frame{Kind: FrameChannelData, Value: append([]byte(nil), chunk...)})
	c.server.metrics.RecordBytes("out", int64(len(chunk)))
	return nil
}

// Close tells the client the channel is gone.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.chanOpen {
		return nil
	}
	c.chanOpen = false
	c.credits = 0
	c.enqueueLocked(&Frame{Kind: FrameChannelClose})
	return nil
}
