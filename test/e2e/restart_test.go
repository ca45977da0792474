//go:build e2e

package e2e

import (
	"testing"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/store"
	"github.com/marmos91/dittoots/test/e2e/framework"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestart_PersistsObjects(t *testing.T) {
	for _, catalog := range []string{"badger", "leveldb"} {
		t.Run(catalog, func(t *testing.T) {
			ts := startServer(t, framework.TestServerConfig{
				ContentStore: framework.StoreTypeFilesystem,
				Catalog:      catalog,
				WriteBuffer:  true,
				MaxChunkSize: 20,
			})

			c := framework.Connect(t, ts, "")
			first := c.Put("first.bin", payload(300))
			second := c.Put("second.bin", payload(77))
			c.Close()

			require.NoError(t, ts.Restart())

			c = framework.Connect(t, ts, "")
			v := c.Directory()
			for _, want := range []store.Object{first, second} {
				got, ok := v.Store().FindByName(want.Name)
				require.True(t, ok, want.Name)
				assert.Equal(t, want.ID, got.ID)
				assert.Equal(t, want.CurrentSize, got.CurrentSize)
			}

			c.GoTo(first.ID)
			assert.Equal(t, payload(300), c.Get())
			c.GoTo(second.ID)
			assert.Equal(t, payload(77), c.Get())
		})
	}
}

func TestRestart_KeepsAllocatingFreshIDs(t *testing.T) {
	ts := startServer(t, framework.TestServerConfig{})

	c := framework.Connect(t, ts, "")
	before := c.Put("old", payload(8))
	c.Close()

	require.NoError(t, ts.Restart())

	c = framework.Connect(t, ts, "")
	after := c.Put("new", payload(8))
	assert.Greater(t, uint64(after.ID), uint64(before.ID))
	assert.True(t, after.ID >= ots.FirstObjectID)
}
