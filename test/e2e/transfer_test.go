//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/codec"
	"github.com/marmos91/dittoots/pkg/store/content"
	"github.com/marmos91/dittoots/test/e2e/framework"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: go test -tags=e2e ./test/e2e/...

func startServer(t *testing.T, cfg framework.TestServerConfig) *framework.TestServer {
	t.Helper()
	ts := framework.NewTestServer(t, cfg)
	require.NoError(t, ts.Start())
	return ts
}

func payload(n int) []byte {
	return bytes.Repeat([]byte("0123456789abcdef"), n/16+1)[:n]
}

func TestTransfer_RoundTrip(t *testing.T) {
	tests := []struct {
		store       framework.StoreType
		writeBuffer bool
	}{
		{framework.StoreTypeMemory, false},
		{framework.StoreTypeMemory, true},
		{framework.StoreTypeFilesystem, false},
		{framework.StoreTypeFilesystem, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/buffer=%v", tt.store, tt.writeBuffer), func(t *testing.T) {
			ts := startServer(t, framework.TestServerConfig{
				ContentStore: tt.store,
				WriteBuffer:  tt.writeBuffer,
				MaxChunkSize: 64,
			})
			c := framework.Connect(t, ts, "")

			data := payload(1000)
			obj := c.Put("notes.txt", data)
			assert.Equal(t, "notes.txt", obj.Name)
			assert.Equal(t, uint32(len(data)), obj.CurrentSize)

			assert.Equal(t, data, c.Get())

			stored, err := ts.Engine().ReadContent(context.Background(), obj.ID)
			require.NoError(t, err)
			assert.Equal(t, data, stored)
		})
	}
}

func TestTransfer_AppendAndTruncate(t *testing.T) {
	ts := startServer(t, framework.TestServerConfig{WriteBuffer: true, MaxChunkSize: 32})
	c := framework.Connect(t, ts, "")

	obj := c.Put("log", payload(100))
	assert.Equal(t, uint32(100), obj.AllocatedSize)

	// Writing past the allocation appends
	require.NoError(t, c.Write(100, payload(50), ots.WriteModeNone))
	assert.Equal(t, uint32(150), c.Metadata().CurrentSize)

	require.NoError(t, c.Write(0, []byte("head"), ots.WriteModeTruncate))
	assert.Equal(t, uint32(4), c.Metadata().CurrentSize)
	assert.Equal(t, []byte("head"), c.Get())
}

func TestDelete_RemovesContent(t *testing.T) {
	ts := startServer(t, framework.TestServerConfig{WriteBuffer: true})
	c := framework.Connect(t, ts, "")

	obj := c.Put("doomed", payload(64))

	resp := c.OACP(codec.OACPRequest{Opcode: ots.OACPDelete})
	require.Equal(t, ots.OACPSuccess, resp.Result)

	_, ok := ts.Engine().Object(obj.ID)
	assert.False(t, ok)

	exists, err := ts.ContentStore().ContentExists(context.Background(), content.IDForObject(obj.ID))
	require.NoError(t, err)
	assert.False(t, exists)

	_, found := c.Directory().Store().FindByName("doomed")
	assert.False(t, found)
}

func TestDirectory_ListsEveryObject(t *testing.T) {
	ts := startServer(t, framework.TestServerConfig{ContentStore: framework.StoreTypeMemory})
	c := framework.Connect(t, ts, "")

	names := []string{"a.txt", "b.txt", "c.txt"}
	for i, name := range names {
		c.Put(name, payload(10*(i+1)))
	}

	v := c.Directory()
	for i, name := range names {
		obj, ok := v.Store().FindByName(name)
		require.True(t, ok, name)
		assert.Equal(t, uint32(10*(i+1)), obj.CurrentSize)
	}
}

func TestObjectChanged_ReachesOtherClient(t *testing.T) {
	ts := startServer(t, framework.TestServerConfig{ContentStore: framework.StoreTypeMemory})

	writer := framework.Connect(t, ts, "")
	reader := framework.Connect(t, ts, "")

	obj := writer.Put("shared", payload(48))

	got := reader.GoTo(obj.ID)
	assert.Equal(t, "shared", got.Name)
	assert.Equal(t, payload(48), reader.Get())
}
