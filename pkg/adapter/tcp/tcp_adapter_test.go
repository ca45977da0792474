package tcp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/client"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/ots/engine"
	"github.com/marmos91/dittoots/pkg/store/content/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

type server struct {
	e       *engine.Engine
	adapter *TCPAdapter
	addr    string
	cancel  context.CancelFunc
	errc    chan error
}

func startServer(t *testing.T, cfg TCPConfig) *server {
	t.Helper()

	cs, err := memory.NewMemoryContentStore(context.Background())
	require.NoError(t, err)
	e, err := engine.New(engine.Config{MaxChunkSize: 8}, cs)
	require.NoError(t, err)

	a, err := New(cfg, nil)
	require.NoError(t, err)
	a.SetEngine(e)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s := &server{e: e, adapter: a, addr: l.Addr().String(), cancel: cancel, errc: make(chan error, 1)}
	go func() { s.errc <- a.ServeListener(ctx, l) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-s.errc:
		case <-time.After(testTimeout):
			t.Error("Serve did not return after cancellation")
		}
	})
	return s
}

func dial(t *testing.T, s *server, cfg DialConfig) *ClientConn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	cc, err := Dial(ctx, s.addr, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })

	require.NoError(t, waitErr(t, func(done func(error)) error {
		cc.Client().EnableIndications(done)
		return nil
	}))
	return cc
}

func wait[T any](t *testing.T, start func(done func(T, error)) error) (T, error) {
	t.Helper()
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	require.NoError(t, start(func(v T, err error) { ch <- result{v, err} }))

	select {
	case r := <-ch:
		return r.v, r.err
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for completion")
	}
	var zero T
	return zero, nil
}

func waitErr(t *testing.T, start func(done func(error)) error) error {
	t.Helper()
	_, err := wait(t, func(done func(struct{}, error)) error {
		return start(func(err error) { done(struct{}{}, err) })
	})
	return err
}

func TestEndToEndTransfer(t *testing.T) {
	s := startServer(t, TCPConfig{ChannelCredits: 2})
	cc := dial(t, s, DialConfig{MaxChunk: 8, Credits: 2})
	c := cc.Client()

	resp, err := wait(t, func(done func(codec.OACPResponse, error)) error {
		return c.OACP(codec.OACPRequest{Opcode: ots.OACPCreate, Size: 256, Type: ots.UnspecifiedType}, done)
	})
	require.NoError(t, err)
	require.Equal(t, ots.OACPSuccess, resp.Result)

	payload := bytes.Repeat([]byte("0123456789"), 10)
	require.NoError(t, waitErr(t, func(done func(error)) error {
		return c.WriteObject(0, payload, ots.WriteModeNone, done)
	}))

	obj, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, uint32(len(payload)), obj.CurrentSize)

	stored, err := s.e.ReadContent(context.Background(), obj.ID)
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	sink := client.NewMemorySink(len(payload))
	require.NoError(t, waitErr(t, func(done func(error)) error {
		return c.ReadObject(0, uint32(len(payload)), sink, done)
	}))
	assert.Equal(t, payload, sink.Bytes())
	assert.Equal(t, 8, cc.MaxChunk())
}

func TestObjectChangedReachesOtherClients(t *testing.T) {
	s := startServer(t, TCPConfig{})

	changes := make(chan codec.ObjectChanged, 4)
	watcher := dial(t, s, DialConfig{ClientOptions: []client.Option{
		client.WithObjectChanged(func(oc codec.ObjectChanged) { changes <- oc }),
	}})
	_ = watcher

	actor := dial(t, s, DialConfig{})
	resp, err := wait(t, func(done func(codec.OACPResponse, error)) error {
		return actor.Client().OACP(codec.OACPRequest{Opcode: ots.OACPCreate, Size: 10, Type: ots.UnspecifiedType}, done)
	})
	require.NoError(t, err)
	require.Equal(t, ots.OACPSuccess, resp.Result)

	select {
	case oc := <-changes:
		assert.Equal(t, ots.ChangeSourceClient|ots.ChangeCreation, oc.Flags)
		assert.Equal(t, ots.FirstObjectID, oc.ID)
	case <-time.After(testTimeout):
		t.Fatal("no object changed indication")
	}
}

func TestFetchDirectoryOverTCP(t *testing.T) {
	s := startServer(t, TCPConfig{})
	ctx := context.Background()
	for _, name := range []string{"a.txt", "b.txt"} {
		_, err := s.e.Import(ctx, name, ots.UnspecifiedType, []byte(name))
		require.NoError(t, err)
	}

	cc := dial(t, s, DialConfig{})
	v, err := wait(t, cc.Client().FetchDirectory)
	require.NoError(t, err)

	var names []string
	for _, obj := range v.Objects() {
		if !obj.IsDirectory() {
			names = append(names, obj.Name)
		}
	}
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
}

func TestDisconnectReleasesSession(t *testing.T) {
	s := startServer(t, TCPConfig{})
	cc := dial(t, s, DialConfig{})
	require.Len(t, s.e.Sessions(), 1)

	require.NoError(t, cc.Close())
	require.Eventually(t, func() bool { return len(s.e.Sessions()) == 0 }, testTimeout, 10*time.Millisecond)
	require.Eventually(t, func() bool { return s.adapter.ActiveConnections() == 0 }, testTimeout, 10*time.Millisecond)
}

func TestFrameBeforeHelloDropsConnection(t *testing.T) {
	s := startServer(t, TCPConfig{})

	conn, err := net.Dial("tcp", s.addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, WriteFrame(conn, &Frame{Kind: FrameRead, Handle: uint32(ots.HandleFeature)}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))
	_, err = ReadFrame(conn)
	assert.ErrorIs(t, err, io.EOF)
	assert.Empty(t, s.e.Sessions())
}

func TestStopClosesConnections(t *testing.T) {
	s := startServer(t, TCPConfig{ShutdownTimeout: 2 * time.Second})
	cc := dial(t, s, DialConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, s.adapter.Stop(ctx))

	select {
	case <-cc.Done():
	case <-time.After(testTimeout):
		t.Fatal("client not disconnected by shutdown")
	}
	assert.Empty(t, s.e.Sessions())

	select {
	case err := <-s.errc:
		assert.NoError(t, err)
		s.errc <- err
	case <-time.After(testTimeout):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestServeWithoutEngine(t *testing.T) {
	a, err := New(TCPConfig{}, nil)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.True(t, errors.Is(a.ServeListener(context.Background(), l), ErrNoEngine))
}

func TestConfigDefaults(t *testing.T) {
	a, err := New(TCPConfig{RateLimit: RateLimitConfig{RequestsPerSecond: 50}}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, a.Port())
	assert.Equal(t, "OTS-TCP", a.Protocol())
	assert.Equal(t, uint(100), a.config.RateLimit.Burst)
	assert.Equal(t, 8, a.config.ChannelCredits)

	_, err = New(TCPConfig{Port: 70000}, nil)
	assert.Error(t, err)
}
