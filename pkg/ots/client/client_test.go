package client

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/ots/engine"
	"github.com/marmos91/dittoots/pkg/ots/filter"
	"github.com/marmos91/dittoots/pkg/ots/store"
	"github.com/marmos91/dittoots/pkg/ots/transfer"
	"github.com/marmos91/dittoots/pkg/ots/view"
	"github.com/marmos91/dittoots/pkg/store/content/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// link connects a Client to an in-process engine. Requests and events are
// queued and delivered by run, one at a time, in order.
type link struct {
	t   *testing.T
	e   *engine.Engine
	c   *Client
	sid string

	requests []func()
	events   []func()

	// holding collects indications raised while a write is being handled
	// so that they reach the client after the write response.
	holding bool
	held    []func()

	// serverCredits is how many chunks the engine may still send; -1 is
	// unlimited.
	serverCredits int
	// clientCredits is how many chunks the client may still send.
	clientCredits int

	disconnects []error
	// dropped collects the reasons the client asked to disconnect.
	dropped []error
}

func newLink(t *testing.T, e *engine.Engine, opts ...Option) *link {
	t.Helper()
	l := &link{t: t, e: e, serverCredits: -1, clientCredits: -1}
	l.c = New(l, opts...)
	l.sid = e.Connect(l, engine.ConnectOptions{})
	require.NoError(t, e.ChannelOpened(l.sid, l, 0))
	return l
}

// Transport

func (l *link) ReadRequest(h ots.HandleType) error {
	l.requests = append(l.requests, func() {
		value, status := l.e.ReadAttribute(context.Background(), l.sid, h)
		l.events = append(l.events, func() { l.c.HandleReadResponse(h, value, status) })
	})
	return nil
}

func (l *link) WriteRequest(h ots.HandleType, value []byte) error {
	l.requests = append(l.requests, func() {
		l.holding = true
		status := l.e.WriteAttribute(context.Background(), l.sid, h, value)
		l.holding = false

		l.events = append(l.events, func() { l.c.HandleWriteResponse(h, status) })
		l.events = append(l.events, l.held...)
		l.held = nil
	})
	return nil
}

func (l *link) SendData(chunk []byte) error {
	if l.clientCredits == 0 {
		return transfer.ErrWouldBlock
	}
	if l.clientCredits > 0 {
		l.clientCredits--
	}
	data := append([]byte(nil), chunk...)
	l.requests = append(l.requests, func() {
		require.NoError(l.t, l.e.ChannelData(context.Background(), l.sid, data))
	})
	return nil
}

func (l *link) Disconnect(reason error) {
	l.dropped = append(l.dropped, reason)
	l.requests = append(l.requests, func() { require.NoError(l.t, l.e.Disconnect(l.sid)) })
	l.events = append(l.events, func() { l.c.HandleDisconnect(reason) })
}

// engine.Peer

func (l *link) Indicate(h ots.HandleType, value []byte) error {
	ev := func() { l.c.HandleIndication(h, value) }
	if l.holding {
		l.held = append(l.held, ev)
	} else {
		l.events = append(l.events, ev)
	}
	return nil
}

func (l *link) RequestDisconnect(reason error) {
	l.disconnects = append(l.disconnects, reason)
}

// transfer.Channel

func (l *link) ID() uint16 { return 0x40 }

func (l *link) Send(chunk []byte) error {
	if l.serverCredits == 0 {
		return transfer.ErrWouldBlock
	}
	if l.serverCredits > 0 {
		l.serverCredits--
	}
	data := append([]byte(nil), chunk...)
	l.events = append(l.events, func() { l.c.HandleChannelData(data) })
	return nil
}

func (l *link) Close() error { return nil }

// run delivers queued traffic until both directions are quiet.
func (l *link) run() {
	for len(l.events) > 0 || len(l.requests) > 0 {
		if len(l.events) > 0 {
			ev := l.events[0]
			l.events = l.events[1:]
			ev()
			continue
		}
		req := l.requests[0]
		l.requests = l.requests[1:]
		req()
	}
}

// grantServer gives the engine n more chunks and wakes it up.
func (l *link) grantServer(n int) {
	l.serverCredits += n
	require.NoError(l.t, l.e.BufferDrained(context.Background(), l.sid))
	l.run()
}

// grantClient gives the client n more chunks and wakes it up.
func (l *link) grantClient(n int) {
	l.clientCredits += n
	l.c.HandleBufferDrained()
	l.run()
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cs, err := memory.NewMemoryContentStore(context.Background())
	require.NoError(t, err)
	e, err := engine.New(engine.Config{MaxChunkSize: 4}, cs)
	require.NoError(t, err)
	return e
}

func enable(t *testing.T, l *link) {
	t.Helper()
	var got error = errors.New("not called")
	l.c.EnableIndications(func(err error) { got = err })
	l.run()
	require.NoError(t, got)
}

func createObject(t *testing.T, l *link, size uint32) {
	t.Helper()
	var resp codec.OACPResponse
	require.NoError(t, l.c.OACP(codec.OACPRequest{Opcode: ots.OACPCreate, Size: size, Type: ots.UnspecifiedType},
		func(r codec.OACPResponse, err error) {
			require.NoError(t, err)
			resp = r
		}))
	l.run()
	require.Equal(t, ots.OACPSuccess, resp.Result)
}

func TestWriteThenReadObject(t *testing.T) {
	e := newEngine(t)
	l := newLink(t, e, WithMaxChunk(4))
	enable(t, l)
	createObject(t, l, 64)

	var writeErr error = errors.New("not called")
	require.NoError(t, l.c.WriteObject(0, []byte("hello, object"), ots.WriteModeNone, func(err error) { writeErr = err }))
	l.run()
	require.NoError(t, writeErr)

	obj, ok := l.c.Current()
	require.True(t, ok, "metadata re-read after the write")
	assert.Equal(t, uint32(13), obj.CurrentSize)
	assert.Equal(t, uint32(64), obj.AllocatedSize)
	assert.Equal(t, engine.DefaultObjectName+" "+obj.ID.String(), obj.Name)

	sink := NewMemorySink(0)
	var readErr error = errors.New("not called")
	require.NoError(t, l.c.ReadObject(7, 6, sink, func(err error) { readErr = err }))
	l.run()
	require.NoError(t, readErr)
	assert.Equal(t, []byte("object"), sink.Bytes()[7:])
	assert.False(t, l.c.Busy())
}

func TestReadSuspendsOnCredits(t *testing.T) {
	e := newEngine(t)
	_, err := e.Import(context.Background(), "data.bin", ots.UnspecifiedType, []byte("0123456789ab"))
	require.NoError(t, err)

	l := newLink(t, e)
	enable(t, l)

	var olcpErr error
	require.NoError(t, l.c.OLCP(codec.OLCPRequest{Opcode: ots.OLCPFirst}, func(r codec.OLCPResponse, err error) {
		olcpErr = err
		assert.Equal(t, ots.OLCPSuccess, r.Result)
	}))
	l.run()
	require.NoError(t, olcpErr)

	// First is the directory listing object in ID order; step to the data.
	require.NoError(t, l.c.OLCP(codec.OLCPRequest{Opcode: ots.OLCPNext}, func(r codec.OLCPResponse, err error) {
		require.NoError(t, err)
		require.Equal(t, ots.OLCPSuccess, r.Result)
	}))
	l.run()

	l.serverCredits = 1
	sink := NewMemorySink(12)
	done := false
	require.NoError(t, l.c.ReadObject(0, 12, sink, func(err error) {
		require.NoError(t, err)
		done = true
	}))
	l.run()
	assert.False(t, done, "one chunk of three delivered")
	assert.Equal(t, []byte("0123"), sink.Bytes())

	l.grantServer(5)
	assert.True(t, done)
	assert.Equal(t, []byte("0123456789ab"), sink.Bytes())
}

func TestWriteSuspendsOnCredits(t *testing.T) {
	e := newEngine(t)
	l := newLink(t, e, WithMaxChunk(4))
	enable(t, l)
	createObject(t, l, 16)

	l.clientCredits = 0
	done := false
	require.NoError(t, l.c.WriteObject(0, []byte("abcdefgh"), ots.WriteModeNone, func(err error) {
		require.NoError(t, err)
		done = true
	}))
	l.run()
	assert.False(t, done)
	assert.True(t, l.c.Busy())

	l.grantClient(1)
	assert.False(t, done)
	l.grantClient(1)
	assert.True(t, done)

	obj, ok := l.c.Current()
	require.True(t, ok)
	assert.Equal(t, uint32(8), obj.CurrentSize)
}

func TestWriteTracksChannelState(t *testing.T) {
	e := newEngine(t)
	l := newLink(t, e, WithMaxChunk(4))
	enable(t, l)
	createObject(t, l, 16)

	l.clientCredits = 1
	require.NoError(t, l.c.WriteObject(0, []byte("abcdefgh"), ots.WriteModeNone, func(err error) { require.NoError(t, err) }))
	assert.True(t, l.c.xs.Flags().Has(transfer.FlagWriteInProgress|transfer.FlagResponsePending))
	assert.Equal(t, uint32(0), l.c.xs.CurrentOffset())
	assert.Equal(t, uint32(8), l.c.xs.EndingOffset())

	l.run()
	assert.False(t, l.c.xs.Flags().Has(transfer.FlagResponsePending))
	assert.Equal(t, uint32(4), l.c.xs.CurrentOffset(), "one chunk sent")
	assert.ErrorIs(t, l.c.WriteObject(0, []byte("x"), ots.WriteModeNone, func(error) {}), ErrTransferInProgress)

	l.grantClient(1)
	assert.False(t, l.c.Busy())
	assert.False(t, l.c.xs.Busy())
	assert.Equal(t, uint32(0), l.c.xs.EndingOffset(), "state cleaned up")
}

func TestReadOverrunDropsConnection(t *testing.T) {
	e := newEngine(t)
	id, err := e.Import(context.Background(), "data.bin", ots.UnspecifiedType, []byte("0123456789ab"))
	require.NoError(t, err)

	l := newLink(t, e)
	enable(t, l)
	require.NoError(t, l.c.OLCP(codec.OLCPRequest{Opcode: ots.OLCPGoTo, ID: id}, func(codec.OLCPResponse, error) {}))
	l.run()

	l.serverCredits = 1
	var readErr error
	require.NoError(t, l.c.ReadObject(0, 12, NewMemorySink(12), func(err error) { readErr = err }))
	l.run()
	require.NoError(t, readErr, "waiting for credits")
	require.Equal(t, uint32(4), l.c.xs.CurrentOffset())

	obj, ok := e.Object(id)
	require.True(t, ok)
	require.True(t, obj.Locked())

	// 4 bytes in, 8 left: a 9 byte chunk goes past the window.
	l.c.HandleChannelData(make([]byte, 9))
	assert.ErrorIs(t, readErr, ErrOverrun)
	assert.ErrorIs(t, readErr, transfer.ErrOverrun)
	assert.False(t, l.c.Busy())
	assert.False(t, l.c.xs.Flags().Has(transfer.FlagReceiveArmed))
	require.Len(t, l.dropped, 1)
	assert.ErrorIs(t, l.dropped[0], ErrOverrun)

	l.run()
	assert.NotContains(t, e.Sessions(), l.sid)
	obj, ok = e.Object(id)
	require.True(t, ok)
	assert.False(t, obj.Locked(), "server released the object")

	assert.ErrorIs(t, l.c.ReadObject(0, 1, NewMemorySink(1), func(error) {}), transfer.ErrNoChannel)
	l.c.HandleChannelOpened()
	assert.False(t, l.c.xs.Busy())
	assert.True(t, l.c.xs.Idle())
}

func TestOneProcedureAtATime(t *testing.T) {
	e := newEngine(t)
	l := newLink(t, e)
	enable(t, l)

	require.NoError(t, l.c.OLCP(codec.OLCPRequest{Opcode: ots.OLCPFirst}, func(codec.OLCPResponse, error) {}))
	err := l.c.OACP(codec.OACPRequest{Opcode: ots.OACPCreate, Size: 1, Type: ots.UnspecifiedType}, func(codec.OACPResponse, error) {})
	assert.ErrorIs(t, err, ErrProcedureInProgress)

	l.run()
	assert.False(t, l.c.Busy())
}

func TestProcedureFailsWithoutIndications(t *testing.T) {
	e := newEngine(t)
	l := newLink(t, e)

	var got error
	require.NoError(t, l.c.OLCP(codec.OLCPRequest{Opcode: ots.OLCPFirst}, func(_ codec.OLCPResponse, err error) {
		got = err
	}))
	l.run()
	assert.ErrorIs(t, got, ots.ATTCCCDImproperlyConfigured)
	assert.False(t, l.c.Busy())
}

func TestRefreshWithoutCurrentObject(t *testing.T) {
	e := newEngine(t)
	l := newLink(t, e)

	var got error
	l.c.RefreshMetadata(func(_ store.Object, err error) { got = err })
	l.run()
	assert.ErrorIs(t, got, ots.ATTObjectNotSelected)

	_, ok := l.c.Current()
	assert.False(t, ok)
}

func TestReadErrorsAreTyped(t *testing.T) {
	e := newEngine(t)
	l := newLink(t, e)
	enable(t, l)
	createObject(t, l, 8)

	var got error
	require.NoError(t, l.c.ReadObject(0, 4, NewMemorySink(4), func(err error) { got = err }))
	l.run()

	var oe *OACPError
	require.ErrorAs(t, got, &oe)
	assert.Equal(t, ots.OACPInvalidParameter, oe.Result, "nothing written yet")
	assert.False(t, l.c.Busy())
}

func TestAbortRead(t *testing.T) {
	e := newEngine(t)
	id, err := e.Import(context.Background(), "big", ots.UnspecifiedType, make([]byte, 40))
	require.NoError(t, err)

	l := newLink(t, e)
	enable(t, l)
	require.NoError(t, l.c.OLCP(codec.OLCPRequest{Opcode: ots.OLCPGoTo, ID: id}, func(codec.OLCPResponse, error) {}))
	l.run()

	l.serverCredits = 2
	var readErr error
	require.NoError(t, l.c.ReadObject(0, 40, NewMemorySink(40), func(err error) { readErr = err }))
	l.run()
	require.NoError(t, readErr, "still waiting for credits")

	var abortErr error = errors.New("not called")
	require.NoError(t, l.c.Abort(func(err error) { abortErr = err }))
	l.run()
	require.NoError(t, abortErr)
	assert.ErrorIs(t, readErr, ErrAborted)

	obj, ok := e.Object(id)
	require.True(t, ok)
	assert.False(t, obj.Locked())

	assert.ErrorIs(t, l.c.Abort(func(error) {}), ErrNoTransfer)
}

func TestFetchDirectory(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.Import(ctx, "a.txt", ots.UnspecifiedType, make([]byte, 50))
	require.NoError(t, err)
	_, err = e.Import(ctx, "b.txt", ots.UnspecifiedType, make([]byte, 50))
	require.NoError(t, err)
	_, err = e.Import(ctx, "c.log", ots.UnspecifiedType, make([]byte, 500))
	require.NoError(t, err)

	l := newLink(t, e)
	enable(t, l)

	var v *view.View
	require.NoError(t, l.c.FetchDirectory(func(got *view.View, err error) {
		require.NoError(t, err)
		v = got
	}))
	l.run()
	require.NotNil(t, v)

	// the local store also holds its own directory object
	assert.Equal(t, 4, v.Len())

	require.NoError(t, v.ApplyFilter(0, filter.NameStartsWith("a")))
	require.NoError(t, v.ApplyFilter(1, filter.CurrentSizeBetween(0, 100)))
	objs := v.Objects()
	require.Len(t, objs, 1)
	assert.Equal(t, "a.txt", objs[0].Name)
}

func TestObjectChangedCallback(t *testing.T) {
	e := newEngine(t)

	var changes []codec.ObjectChanged
	l := newLink(t, e, WithObjectChanged(func(oc codec.ObjectChanged) { changes = append(changes, oc) }))
	enable(t, l)

	id, err := e.Import(context.Background(), "new", ots.UnspecifiedType, []byte("x"))
	require.NoError(t, err)
	l.run()

	require.Len(t, changes, 1)
	assert.Equal(t, id, changes[0].ID)
	assert.Equal(t, ots.ChangeCreation, changes[0].Flags)
}

func TestDisconnectFailsEverything(t *testing.T) {
	e := newEngine(t)
	l := newLink(t, e)
	enable(t, l)

	var procErr, readErr error
	require.NoError(t, l.c.OLCP(codec.OLCPRequest{Opcode: ots.OLCPFirst}, func(_ codec.OLCPResponse, err error) { procErr = err }))
	l.c.Read(ots.HandleFeature, func(_ []byte, err error) { readErr = err })

	reason := errors.New("link lost")
	l.c.HandleDisconnect(reason)
	assert.ErrorIs(t, procErr, reason)
	assert.ErrorIs(t, readErr, reason)
	assert.False(t, l.c.Busy())
}

func TestMemorySink(t *testing.T) {
	m := NewMemorySink(0)
	_, err := m.WriteAt([]byte("cd"), 2)
	require.NoError(t, err)
	_, err = m.WriteAt([]byte("ab"), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), m.Bytes())

	_, err = m.WriteAt([]byte("x"), -1)
	assert.Error(t, err)
}
