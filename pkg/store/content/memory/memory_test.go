package memory

import (
	"context"
	"testing"

	"github.com/marmos91/dittoots/pkg/store/content"
	contenttesting "github.com/marmos91/dittoots/pkg/store/content/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryContentStore runs the complete content store suite against
// the MemoryContentStore implementation.
func TestMemoryContentStore(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func() content.Store {
			store, err := NewMemoryContentStore(context.Background())
			if err != nil {
				t.Fatalf("Failed to create MemoryContentStore: %v", err)
			}
			return store
		},
	}

	suite.Run(t)
}

func TestMemoryContentStoreMaxSize(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryContentStore(ctx, WithMaxSize(8))
	require.NoError(t, err)

	id := content.IDForObject(0x100)
	require.NoError(t, store.WriteAt(ctx, id, []byte("1234"), 4))
	assert.ErrorIs(t, store.WriteAt(ctx, id, []byte("x"), 8), content.ErrTooLarge)
	assert.ErrorIs(t, store.WriteContent(ctx, id, make([]byte, 9)), content.ErrTooLarge)
}

func TestMemoryContentStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryContentStore(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
