package gc

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/marmos91/dittoots/pkg/ots/engine"
	"github.com/marmos91/dittoots/pkg/store/content"
	"github.com/marmos91/dittoots/pkg/store/content/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine *engine.Engine
	store  *memory.MemoryContentStore
	live   ots.ObjectID
}

func newFixture(t *testing.T, orphans int) *fixture {
	t.Helper()
	ctx := context.Background()

	cs, err := memory.NewMemoryContentStore(ctx)
	require.NoError(t, err)
	e, err := engine.New(engine.Config{}, cs)
	require.NoError(t, err)

	live, err := e.Import(ctx, "keep.bin", ots.UnspecifiedType, []byte("keep"))
	require.NoError(t, err)

	for i := range orphans {
		id := content.IDForObject(ots.ObjectID(0x9000 + i))
		require.NoError(t, cs.WriteContent(ctx, id, []byte("orphan")))
	}
	return &fixture{engine: e, store: cs, live: live}
}

func (f *fixture) stored(t *testing.T) int {
	t.Helper()
	ids, err := f.store.ListAllContent(context.Background())
	require.NoError(t, err)
	return len(ids)
}

// countingStore records the size of every DeleteBatch call.
type countingStore struct {
	*memory.MemoryContentStore
	batches []int
}

func (s *countingStore) DeleteBatch(ctx context.Context, ids []content.ContentID) (map[content.ContentID]error, error) {
	s.batches = append(s.batches, len(ids))
	return s.MemoryContentStore.DeleteBatch(ctx, ids)
}

// readOnlyStore hides the garbage collection methods.
type readOnlyStore struct {
	content.ContentStore
}

func TestCollectDeletesOrphans(t *testing.T) {
	f := newFixture(t, 3)
	require.Equal(t, 4, f.stored(t))

	c, err := NewCollector(f.engine, f.store, Config{})
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), stats.ExistingCount)
	assert.Equal(t, uint64(1), stats.ReferencedCount)
	assert.Equal(t, uint64(3), stats.OrphanedCount)
	assert.Equal(t, uint64(3), stats.DeletedCount)
	assert.Zero(t, stats.FailedCount)
	assert.False(t, stats.EndTime.IsZero())

	assert.Equal(t, 1, f.stored(t))
	data, err := f.engine.ReadContent(context.Background(), f.live)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), data)
}

func TestCollectDryRun(t *testing.T) {
	f := newFixture(t, 2)

	c, err := NewCollector(f.engine, f.store, Config{DryRun: true})
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.OrphanedCount)
	assert.Zero(t, stats.DeletedCount)
	assert.Equal(t, 3, f.stored(t))
}

func TestCollectInBatches(t *testing.T) {
	f := newFixture(t, 5)
	cs := &countingStore{MemoryContentStore: f.store}

	c, err := NewCollector(f.engine, cs, Config{BatchSize: 2})
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stats.DeletedCount)
	assert.Equal(t, []int{2, 2, 1}, cs.batches)
}

func TestCollectNothingToDo(t *testing.T) {
	f := newFixture(t, 0)
	cs := &countingStore{MemoryContentStore: f.store}

	c, err := NewCollector(f.engine, cs, Config{})
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.OrphanedCount)
	assert.Empty(t, cs.batches)
}

func TestRemovedObjectContentIsCollected(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	// Put the bytes back after removal, as a failed backend delete would
	// leave them.
	require.NoError(t, f.engine.Remove(ctx, f.live))
	require.NoError(t, f.store.WriteContent(ctx, content.IDForObject(f.live), []byte("stale")))

	c, err := NewCollector(f.engine, f.store, Config{})
	require.NoError(t, err)

	stats, err := c.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.DeletedCount)
	assert.Zero(t, f.stored(t))
}

func TestNewCollectorValidation(t *testing.T) {
	f := newFixture(t, 0)

	_, err := NewCollector(f.engine, readOnlyStore{f.store}, Config{})
	assert.Error(t, err)

	_, err = NewCollector(nil, f.store, Config{})
	assert.Error(t, err)

	_, err = NewCollector(f.engine, f.store, Config{Schedule: "every tuesday"})
	assert.Error(t, err)

	c, err := NewCollector(f.engine, f.store, Config{Schedule: "@every 30m"})
	require.NoError(t, err)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(30*time.Minute), c.Next(start))
	assert.Equal(t, DefaultBatchSize, c.Config().BatchSize)
	assert.Equal(t, DefaultTimeout, c.Config().Timeout)
}

func TestRunOnStart(t *testing.T) {
	f := newFixture(t, 2)

	c, err := NewCollector(f.engine, f.store, Config{Enabled: true, RunOnStart: true, Schedule: "@yearly"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return f.stored(t) == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunDisabledWaitsForCancel(t *testing.T) {
	f := newFixture(t, 1)

	c, err := NewCollector(f.engine, f.store, Config{Enabled: false, RunOnStart: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx))
	assert.Equal(t, 2, f.stored(t))
}
