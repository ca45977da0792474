package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/ots/transfer"
	catalogmemory "github.com/marmos91/dittoots/pkg/store/catalog/memory"
	"github.com/marmos91/dittoots/pkg/store/content/memory"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

type indication struct {
	h     ots.HandleType
	value []byte
}

type fakePeer struct {
	indications []indication
	disconnects []error
}

func (p *fakePeer) Indicate(h ots.HandleType, value []byte) error {
	p.indications = append(p.indications, indication{h: h, value: append([]byte(nil), value...)})
	return nil
}

func (p *fakePeer) RequestDisconnect(reason error) {
	p.disconnects = append(p.disconnects, reason)
}

// on returns every indication delivered on h, oldest first.
func (p *fakePeer) on(h ots.HandleType) [][]byte {
	var out [][]byte
	for _, ind := range p.indications {
		if ind.h == h {
			out = append(out, ind.value)
		}
	}
	return out
}

// fakeChannel accepts credits chunks before blocking; -1 never blocks.
type fakeChannel struct {
	id      uint16
	credits int
	sent    [][]byte
	closed  bool
}

func (c *fakeChannel) ID() uint16 { return c.id }

func (c *fakeChannel) Send(chunk []byte) error {
	if c.credits == 0 {
		return transfer.ErrWouldBlock
	}
	if c.credits > 0 {
		c.credits--
	}
	c.sent = append(c.sent, append([]byte(nil), chunk...))
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func (c *fakeChannel) data() []byte {
	return bytes.Join(c.sent, nil)
}

type harness struct {
	t       *testing.T
	e       *Engine
	content *memory.MemoryContentStore
	catalog *catalogmemory.MemoryCatalog
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	cs, err := memory.NewMemoryContentStore(context.Background())
	require.NoError(t, err)
	cat := catalogmemory.NewMemoryCatalog()

	opts = append([]Option{WithCatalog(cat), WithClock(func() time.Time { return testNow })}, opts...)
	e, err := New(cfg, cs, opts...)
	require.NoError(t, err)
	return &harness{t: t, e: e, content: cs, catalog: cat}
}

type client struct {
	t    *testing.T
	e    *Engine
	sid  string
	peer *fakePeer
	ch   *fakeChannel
}

// connect opens a session with every descriptor configured for
// indications and an unthrottled transfer channel.
func (h *harness) connect() *client {
	c := h.connectBare(ConnectOptions{})
	c.enableIndications()
	c.openChannel(0)
	return c
}

func (h *harness) connectBare(opts ConnectOptions) *client {
	peer := &fakePeer{}
	sid := h.e.Connect(peer, opts)
	return &client{t: h.t, e: h.e, sid: sid, peer: peer}
}

func (c *client) enableIndications() {
	for _, h := range []ots.HandleType{ots.HandleOACPCCCD, ots.HandleOLCPCCCD, ots.HandleObjectChangedCCCD} {
		require.Equal(c.t, ots.ATTSuccess, c.write(h, codec.EncodeCCCD(ots.CCCDIndicate)))
	}
}

func (c *client) openChannel(maxChunk int) {
	c.ch = &fakeChannel{id: 0x40, credits: -1}
	require.NoError(c.t, c.e.ChannelOpened(c.sid, c.ch, maxChunk))
}

func (c *client) write(h ots.HandleType, payload []byte) ots.ATTError {
	return c.e.WriteAttribute(context.Background(), c.sid, h, payload)
}

func (c *client) read(h ots.HandleType) ([]byte, ots.ATTError) {
	return c.e.ReadAttribute(context.Background(), c.sid, h)
}

func (c *client) mustRead(h ots.HandleType) []byte {
	value, status := c.read(h)
	require.Equal(c.t, ots.ATTSuccess, status, "read %s", h)
	return value
}

func (c *client) oacp(req codec.OACPRequest) codec.OACPResponse {
	c.t.Helper()
	before := len(c.peer.on(ots.HandleOACP))
	require.Equal(c.t, ots.ATTSuccess, c.write(ots.HandleOACP, codec.EncodeOACPRequest(req)))

	got := c.peer.on(ots.HandleOACP)
	require.Len(c.t, got, before+1, "one OACP response per request")
	resp, err := codec.DecodeOACPResponse(got[len(got)-1])
	require.NoError(c.t, err)
	require.Equal(c.t, req.Opcode, resp.RequestOpcode)
	return resp
}

func (c *client) olcp(req codec.OLCPRequest) codec.OLCPResponse {
	c.t.Helper()
	before := len(c.peer.on(ots.HandleOLCP))
	require.Equal(c.t, ots.ATTSuccess, c.write(ots.HandleOLCP, codec.EncodeOLCPRequest(req)))

	got := c.peer.on(ots.HandleOLCP)
	require.Len(c.t, got, before+1, "one OLCP response per request")
	resp, err := codec.DecodeOLCPResponse(got[len(got)-1])
	require.NoError(c.t, err)
	return resp
}

func (c *client) goTo(id ots.ObjectID) {
	c.t.Helper()
	resp := c.olcp(codec.OLCPRequest{Opcode: ots.OLCPGoTo, ID: id})
	require.Equal(c.t, ots.OLCPSuccess, resp.Result)
}

func (c *client) send(data []byte) {
	require.NoError(c.t, c.e.ChannelData(context.Background(), c.sid, data))
}

func (c *client) size() codec.Size {
	s, err := codec.DecodeSize(c.mustRead(ots.HandleObjectSize))
	require.NoError(c.t, err)
	return s
}

func (c *client) currentID() ots.ObjectID {
	id, err := codec.DecodeID(c.mustRead(ots.HandleObjectID))
	require.NoError(c.t, err)
	return id
}

// changes decodes every Object Changed indication the client received.
func (c *client) changes() []codec.ObjectChanged {
	var out []codec.ObjectChanged
	for _, v := range c.peer.on(ots.HandleObjectChanged) {
		oc, err := codec.DecodeObjectChanged(v)
		require.NoError(c.t, err)
		out = append(out, oc)
	}
	return out
}

func (h *harness) importObject(name string, data []byte) ots.ObjectID {
	h.t.Helper()
	id, err := h.e.Import(context.Background(), name, ots.UnspecifiedType, data)
	require.NoError(h.t, err)
	return id
}
