package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/store/content"
	"github.com/marmos91/dittoots/pkg/store/content/memory"
	contenttesting "github.com/marmos91/dittoots/pkg/store/content/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testID = content.IDForObject(ots.FirstObjectID)

func TestMemoryWriteCache_Window(t *testing.T) {
	c := NewMemoryWriteCache(nil)

	require.NoError(t, c.WriteAt(testID, []byte("hello"), 10))
	require.NoError(t, c.WriteAt(testID, []byte(" world"), 15))
	require.NoError(t, c.WriteAt(testID, []byte("J"), 10))

	start, data, ok := c.Window(testID)
	require.True(t, ok)
	assert.Equal(t, int64(10), start)
	assert.Equal(t, "Jello world", string(data))
	assert.Equal(t, int64(11), c.Size(testID))
	assert.False(t, c.LastWrite(testID).IsZero())
	assert.Equal(t, []content.ContentID{testID}, c.List())
}

func TestMemoryWriteCache_NotContiguous(t *testing.T) {
	c := NewMemoryWriteCache(nil)
	require.NoError(t, c.WriteAt(testID, []byte("abc"), 10))

	assert.ErrorIs(t, c.WriteAt(testID, []byte("x"), 14), ErrNotContiguous)
	assert.ErrorIs(t, c.WriteAt(testID, []byte("x"), 9), ErrNotContiguous)
	assert.NoError(t, c.WriteAt(testID, []byte("d"), 13))
}

func TestMemoryWriteCache_ResetAndClose(t *testing.T) {
	c := NewMemoryWriteCache(nil)
	require.NoError(t, c.WriteAt(testID, []byte("abc"), 0))

	require.NoError(t, c.Reset(testID))
	_, _, ok := c.Window(testID)
	assert.False(t, ok)
	assert.Zero(t, c.Size(testID))

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.WriteAt(testID, []byte("abc"), 0), ErrClosed)
	assert.ErrorIs(t, c.Reset(testID), ErrClosed)
	assert.NoError(t, c.Close())
}

func TestMemoryWriteCache_NegativeOffset(t *testing.T) {
	c := NewMemoryWriteCache(nil)
	assert.Error(t, c.WriteAt(testID, []byte("a"), -1))
}

// countingStore counts WriteAt calls reaching the backend.
type countingStore struct {
	content.Store
	writes atomic.Int32
	fail   error
}

func (s *countingStore) WriteAt(ctx context.Context, id content.ContentID, data []byte, offset int64) error {
	s.writes.Add(1)
	if s.fail != nil {
		return s.fail
	}
	return s.Store.WriteAt(ctx, id, data, offset)
}

func newBacked(t *testing.T, cfg Config) (*BufferedStore, *countingStore) {
	t.Helper()
	mem, err := memory.NewMemoryContentStore(context.Background())
	require.NoError(t, err)
	backend := &countingStore{Store: mem}
	return NewBufferedStore(backend, cfg), backend
}

func TestBufferedStore_Suite(t *testing.T) {
	suite := &contenttesting.StoreTestSuite{
		NewStore: func() content.Store {
			b, _ := newBacked(t, Config{})
			return b
		},
	}
	suite.Run(t)
}

func TestBufferedStore_ChunksBecomeOneWrite(t *testing.T) {
	ctx := context.Background()
	b, backend := newBacked(t, Config{})

	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i)
	}
	for off := 0; off < len(data); off += 100 {
		require.NoError(t, b.WriteAt(ctx, testID, data[off:off+100], int64(off)))
	}
	assert.Equal(t, int32(0), backend.writes.Load())
	assert.Equal(t, 1, b.Pending())

	require.NoError(t, b.Flush(ctx, testID))
	assert.Equal(t, int32(1), backend.writes.Load())
	assert.Zero(t, b.Pending())

	got := make([]byte, len(data))
	require.NoError(t, backend.ReadAt(ctx, testID, got, 0))
	assert.Equal(t, data, got)
}

func TestBufferedStore_ReadFlushesFirst(t *testing.T) {
	ctx := context.Background()
	b, _ := newBacked(t, Config{})

	require.NoError(t, b.WriteAt(ctx, testID, []byte("pending"), 0))

	p := make([]byte, 7)
	require.NoError(t, b.ReadAt(ctx, testID, p, 0))
	assert.Equal(t, "pending", string(p))
}

func TestBufferedStore_GapFlushesWindow(t *testing.T) {
	ctx := context.Background()
	b, backend := newBacked(t, Config{})

	require.NoError(t, b.WriteAt(ctx, testID, []byte("ab"), 0))
	require.NoError(t, b.WriteAt(ctx, testID, []byte("yz"), 10))
	assert.Equal(t, int32(1), backend.writes.Load())

	size, err := b.GetContentSize(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), size)
}

func TestBufferedStore_MaxBufferSize(t *testing.T) {
	ctx := context.Background()
	b, backend := newBacked(t, Config{MaxBufferSize: 8})

	require.NoError(t, b.WriteAt(ctx, testID, []byte("1234"), 0))
	assert.Equal(t, int32(0), backend.writes.Load())
	require.NoError(t, b.WriteAt(ctx, testID, []byte("5678"), 4))
	assert.Equal(t, int32(1), backend.writes.Load())
	assert.Zero(t, b.Pending())
}

func TestBufferedStore_DeleteDropsPending(t *testing.T) {
	ctx := context.Background()
	b, backend := newBacked(t, Config{})

	require.NoError(t, b.WriteAt(ctx, testID, []byte("gone"), 0))
	err := b.Delete(ctx, testID)
	// Nothing reached the backend, so the backend may report it missing.
	if err != nil {
		assert.ErrorIs(t, err, content.ErrContentNotFound)
	}
	assert.Zero(t, b.Pending())
	assert.Equal(t, int32(0), backend.writes.Load())
}

func TestBufferedStore_FailedFlushKeepsWindow(t *testing.T) {
	ctx := context.Background()
	b, backend := newBacked(t, Config{})
	backend.fail = errors.New("backend down")

	require.NoError(t, b.WriteAt(ctx, testID, []byte("keep"), 0))
	assert.Error(t, b.Flush(ctx, testID))
	assert.Equal(t, 1, b.Pending())

	backend.fail = nil
	require.NoError(t, b.Close(ctx))
	assert.Zero(t, b.Pending())

	p := make([]byte, 4)
	require.NoError(t, backend.ReadAt(ctx, testID, p, 0))
	assert.Equal(t, "keep", string(p))
}

type recordingMetrics struct {
	writes, flushes int
	buffers         int
}

func (m *recordingMetrics) ObserveWrite(int64, time.Duration)        { m.writes++ }
func (m *recordingMetrics) ObserveFlush(int64, time.Duration, error) { m.flushes++ }
func (m *recordingMetrics) RecordBufferCount(n int)                  { m.buffers = n }

func TestBufferedStore_Metrics(t *testing.T) {
	ctx := context.Background()
	m := &recordingMetrics{}
	b, _ := newBacked(t, Config{Metrics: m})

	require.NoError(t, b.WriteAt(ctx, testID, []byte("a"), 0))
	require.NoError(t, b.WriteAt(ctx, testID, []byte("b"), 1))
	assert.Equal(t, 1, m.buffers)

	require.NoError(t, b.Flush(ctx, testID))
	assert.Equal(t, 2, m.writes)
	assert.Equal(t, 1, m.flushes)
	assert.Equal(t, 0, m.buffers)
}
