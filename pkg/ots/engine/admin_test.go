package engine

import (
	"context"
	"testing"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/ots/filter"
	"github.com/marmos91/dittoots/pkg/ots/store"
	"github.com/marmos91/dittoots/pkg/store/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportAndRemove(t *testing.T) {
	h := newHarness(t, Config{MaxObjectSize: 8})
	ctx := context.Background()

	id := h.importObject("fw.bin", []byte("firmware"))
	obj, ok := h.e.Object(id)
	require.True(t, ok)
	assert.Equal(t, uint32(8), obj.CurrentSize)
	assert.Equal(t, ots.FromTime(testNow), obj.FirstCreated)
	assert.Equal(t, DefaultProperties, obj.Properties)

	_, err := h.e.Import(ctx, "fw.bin", ots.UnspecifiedType, nil)
	assert.True(t, store.IsNameExists(err))

	_, err = h.e.Import(ctx, "big", ots.UnspecifiedType, make([]byte, 9))
	assert.ErrorIs(t, err, content.ErrTooLarge)

	require.NoError(t, h.e.Remove(ctx, id))
	_, ok = h.e.Object(id)
	assert.False(t, ok)

	exists, err := h.content.ContentExists(ctx, content.IDForObject(id))
	require.NoError(t, err)
	assert.False(t, exists)

	recs, err := h.catalog.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	assert.True(t, store.IsReserved(h.e.Remove(ctx, ots.DirectoryListingID)))
	assert.True(t, store.IsNotFound(h.e.Remove(ctx, id)))
}

func TestRestoreFromCatalog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	first := h.importObject("kept", []byte("data"))
	h.importObject("gone", nil)
	require.NoError(t, h.e.Remove(ctx, first+1))

	e2, err := New(Config{}, h.content, WithCatalog(h.catalog))
	require.NoError(t, err)

	n, err := e2.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	obj, ok := e2.Object(first)
	require.True(t, ok)
	assert.Equal(t, "kept", obj.Name)

	data, err := e2.ReadContent(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)

	// Removed IDs are never handed out again.
	next, err := e2.Import(ctx, "new", ots.UnspecifiedType, nil)
	require.NoError(t, err)
	assert.Equal(t, first+2, next)
}

func TestRestoreWithoutCatalog(t *testing.T) {
	h := newHarness(t, Config{})
	e, err := New(Config{}, h.content)
	require.NoError(t, err)

	n, err := e.Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBondedSessionKeepsView(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.importObject("a", nil)
	h.importObject("b", nil)

	peer := h.connectBare(ConnectOptions{BondKey: "AA:BB"})
	peer.enableIndications()
	require.Equal(t, ots.ATTSuccess, peer.write(ots.HandleListFilter1, codec.EncodeFilter(filter.NameContains("a"))))
	peer.goTo(a)
	require.NoError(t, h.e.Disconnect(peer.sid))

	back := h.connectBare(ConnectOptions{BondKey: "AA:BB"})
	assert.Equal(t, a, back.currentID(), "current object survives the reconnect")

	f, err := codec.DecodeFilter(back.mustRead(ots.HandleListFilter1))
	require.NoError(t, err)
	assert.True(t, f.IsNone(), "filters are reset")

	stranger := h.connectBare(ConnectOptions{BondKey: "CC:DD"})
	_, status := stranger.read(ots.HandleObjectID)
	assert.Equal(t, ots.ATTObjectNotSelected, status)
}

func TestContentIDs(t *testing.T) {
	h := newHarness(t, Config{})
	a := h.importObject("a", []byte("x"))
	b := h.importObject("b", nil)

	ids := h.e.ContentIDs()
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, content.IDForObject(a))
	assert.Contains(t, ids, content.IDForObject(b))
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	h := newHarness(t, Config{})
	_, err = New(Config{CreatableTypes: []ots.ObjectType{ots.DirectoryListingType}}, h.content)
	assert.Error(t, err)

	_, err = New(Config{Features: ots.Features{OACP: 0x8000}}, h.content)
	assert.Error(t, err)
}
