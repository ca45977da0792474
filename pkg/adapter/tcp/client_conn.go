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
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/client"
	"github.com/marmos91/dittoots/pkg/ots/transfer"
)

// ErrRemoteDisconnect is the reason a ClientConn ends with when the server
// sent a Disconnect frame.
var ErrRemoteDisconnect = errors.New("server closed the session")

// DialConfig configures a client connection.
type DialConfig struct {
	// BondKey, when set, asks the server to restore the list view of an
	// earlier session with the same key.
	BondKey string

	// MaxChunk is the largest transfer chunk requested. 0 uses the
	// server's maximum.
	MaxChunk int

	// Credits is the number of chunks the server may send before it
	// waits for acknowledgement. Every chunk received is granted back.
	// 0 means 8.
	Credits int

	// HandshakeTimeout bounds the hello exchange. 0 means 10s.
	HandshakeTimeout time.Duration

	// ClientOptions are passed to client.New.
	ClientOptions []client.Option
}

// ClientConn is the client side of the TCP transport. It owns a
// client.Client and feeds it every frame the server sends.
type ClientConn struct {
	conn   net.Conn
	client *client.Client
	sid    string

	// wmu serializes frame writes.
	wmu sync.Mutex

	mu       sync.Mutex
	credits  int
	maxChunk int
	// dropped is why the client asked to drop the connection
	dropped error

	done chan struct{}
	err  error
}

// Dial connects to an OTS TCP server, opens a session and its transfer
// channel.
func Dial(ctx context.Context, addr string, cfg DialConfig) (*ClientConn, error) {
	if cfg.Credits <= 0 {
		cfg.Credits = 8
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	cc := &ClientConn{conn: conn, done: make(chan struct{})}
	if err := cc.handshake(cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	opts := cfg.ClientOptions
	if cfg.MaxChunk > 0 {
		opts = append([]client.Option{client.WithMaxChunk(cfg.MaxChunk)}, opts...)
	}
	cc.client = client.New(cc, opts...)

	if err := cc.writeFrame(&Frame{Kind: FrameChannelOpen, Count: uint32(max(cfg.MaxChunk, 0))}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := cc.writeFrame(&Frame{Kind: FrameCredits, Count: uint32(cfg.Credits)}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("grant credits: %w", err)
	}

	go cc.readLoop()

	logger.Debug("OTS client connected to %s as session %s", addr, cc.sid)
	return cc, nil
}

func (cc *ClientConn) handshake(cfg DialConfig) error {
	if err := cc.conn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout)); err != nil {
		return err
	}
	defer func() { _ = cc.conn.SetDeadline(time.Time{}) }()

	if err := cc.writeFrame(&Frame{Kind: FrameHello, Value: []byte(cfg.BondKey)}); err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	f, err := ReadFrame(cc.conn)
	if err != nil {
		return fmt.Errorf("welcome: %w", err)
	}
	if f.Kind != FrameWelcome {
		return fmt.Errorf("welcome: unexpected %s", f.Kind)
	}
	cc.sid = string(f.Value)
	return nil
}

// Client returns the protocol client driven by this connection.
func (cc *ClientConn) Client() *client.Client { return cc.client }

// SessionID returns the server-side session ID.
func (cc *ClientConn) SessionID() string { return cc.sid }

// MaxChunk returns the chunk size the server applied to the transfer
// channel, or 0 before it answered.
func (cc *ClientConn) MaxChunk() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.maxChunk
}

// Done is closed once the connection is gone.
func (cc *ClientConn) Done() <-chan struct{} { return cc.done }

// Err returns why the connection ended, after Done is closed.
func (cc *ClientConn) Err() error {
	<-cc.done
	return cc.err
}

// Close drops the connection. Everything in flight fails.
func (cc *ClientConn) Close() error {
	err := cc.conn.Close()
	<-cc.done
	return err
}

func (cc *ClientConn) writeFrame(f *Frame) error {
	cc.wmu.Lock()
	defer cc.wmu.Unlock()
	return WriteFrame(cc.conn, f)
}

func (cc *ClientConn) readLoop() {
	var reason error
	defer func() {
		_ = cc.conn.Close()
		cc.mu.Lock()
		if cc.dropped != nil {
			reason = cc.dropped
		}
		cc.mu.Unlock()
		cc.client.HandleDisconnect(reason)
		cc.err = reason
		close(cc.done)
	}()

	for {
		f, err := ReadFrame(cc.conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = io.EOF
			}
			reason = err
			return
		}

		switch f.Kind {
		case FrameReadResponse:
			cc.client.HandleReadResponse(ots.HandleType(f.Handle), f.Value, ots.ATTError(f.Status))
		case FrameWriteResponse:
			cc.client.HandleWriteResponse(ots.HandleType(f.Handle), ots.ATTError(f.Status))
		case FrameIndication:
			cc.client.HandleIndication(ots.HandleType(f.Handle), f.Value)
		case FrameChannelOpened:
			if f.Status != 0 {
				logger.Warn("OTS client: server refused the transfer channel")
				continue
			}
			cc.mu.Lock()
			cc.maxChunk = int(f.Count)
			cc.mu.Unlock()
			cc.client.HandleChannelOpened()
		case FrameChannelData:
			cc.client.HandleChannelData(f.Value)
			if err := cc.writeFrame(&Frame{Kind: FrameCredits, Count: 1}); err != nil {
				reason = err
				return
			}
		case FrameCredits:
			cc.mu.Lock()
			cc.credits += int(f.Count)
			cc.mu.Unlock()
			cc.client.HandleBufferDrained()
		case FrameChannelClose:
			cc.client.HandleChannelClosed()
		case FrameDisconnect:
			reason = fmt.Errorf("%w: %s", ErrRemoteDisconnect, f.Value)
			return
		default:
			logger.Debug("OTS client: ignoring %s frame", f.Kind)
		}
	}
}

// ============================================================================
// client.Transport
// ============================================================================

// ReadRequest sends a Read frame.
func (cc *ClientConn) ReadRequest(h ots.HandleType) error {
	return cc.writeFrame(&Frame{Kind: FrameRead, Handle: uint32(h)})
}

// WriteRequest sends a Write frame.
func (cc *ClientConn) WriteRequest(h ots.HandleType, value []byte) error {
	return cc.writeFrame(&Frame{Kind: FrameWrite, Handle: uint32(h), Value: value})
}

// SendData sends one chunk if the server has granted a credit.
func (cc *ClientConn) SendData(chunk []byte) error {
	cc.mu.Lock()
	if cc.credits == 0 {
		cc.mu.Unlock()
		return transfer.ErrWouldBlock
	}
	cc.credits--
	cc.mu.Unlock()

	return cc.writeFrame(&Frame{Kind: FrameChannelData, Value: chunk})
}

// Disconnect closes the connection on behalf of the client. The read loop
// then reports reason through HandleDisconnect.
func (cc *ClientConn) Disconnect(reason error) {
	cc.mu.Lock()
	if cc.dropped == nil {
		cc.dropped = reason
	}
	cc.mu.Unlock()

	logger.Debug("OTS client: closing connection of session %s: %v", cc.sid, reason)
	_ = cc.conn.Close()
}
