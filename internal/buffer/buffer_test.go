package buffer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asyncref/internal/buffer"
	"asyncref/internal/queue"
	"asyncref/internal/tablepolicy"
	"asyncref/internal/testsupport"
)

func newBuffer(t *testing.T, opts ...testsupport.ConfigOption) (*buffer.Buffer, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	return buffer.New(store, tablepolicy.FromConfig(cfg), cfg.Queue.InsertBatchSize), store
}

func TestSameKeyTwiceYieldsOneRow(t *testing.T) {
	buf, store := newBuffer(t)
	ctx := context.Background()

	require.NoError(t, buf.Enqueue(ctx, "pages", 10, 0))
	require.NoError(t, buf.Enqueue(ctx, "pages", 10, 0))
	assert.Equal(t, 1, buf.Len())

	result, err := buf.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, buffer.Result{Buffered: 1, Inserted: 1}, result)
	assert.Equal(t, []queue.Key{{Table: "pages", UID: 10}}, testsupport.QueuedKeys(t, store))
}

func TestAlreadyQueuedKeyIsSkipped(t *testing.T) {
	buf, store := newBuffer(t)
	ctx := context.Background()
	testsupport.SeedQueue(t, store, queue.Key{Table: "pages", UID: 10})

	require.NoError(t, buf.Enqueue(ctx, "pages", 10, 0))
	require.NoError(t, buf.Enqueue(ctx, "tt_content", 4, 0))

	result, err := buf.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, buffer.Result{Buffered: 2, Skipped: 1, Inserted: 1}, result)
	assert.Equal(t, []queue.Key{
		{Table: "pages", UID: 10},
		{Table: "tt_content", UID: 4},
	}, testsupport.QueuedKeys(t, store))
}

func TestFlushClearsBuffer(t *testing.T) {
	buf, store := newBuffer(t)
	ctx := context.Background()

	result, err := buf.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Buffered)

	require.NoError(t, buf.Enqueue(ctx, "pages", 1, 0))
	_, err = buf.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, buf.Len())

	result, err = buf.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, buffer.Result{}, result, "second flush has nothing to write")
	assert.Len(t, testsupport.QueuedKeys(t, store), 1)
}

func TestWorkspaceDerivation(t *testing.T) {
	buf, store := newBuffer(t, testsupport.WithWorkspaceTables("pages"))
	ctx := tablepolicy.WithActiveWorkspace(context.Background(), 5)

	require.NoError(t, buf.Enqueue(ctx, "pages", 1, 0))
	require.NoError(t, buf.Enqueue(ctx, "pages", 2, 9))
	require.NoError(t, buf.Enqueue(ctx, "sys_file", 3, 0))
	_, err := buf.Flush(ctx)
	require.NoError(t, err)

	assert.Equal(t, []queue.Key{
		{Table: "pages", UID: 1, Workspace: 5},
		{Table: "pages", UID: 2, Workspace: 9},
		{Table: "sys_file", UID: 3},
	}, testsupport.QueuedKeys(t, store))
}

func TestEnqueueRejectsInvalidKeys(t *testing.T) {
	buf, _ := newBuffer(t)
	ctx := context.Background()

	assert.Error(t, buf.Enqueue(ctx, " ", 1, 0))
	assert.Error(t, buf.Enqueue(ctx, "pages", 0, 0))
	assert.Error(t, buf.Enqueue(ctx, "pages", 1, -2))
	assert.Zero(t, buf.Len())
}

func TestFlushChunksLargeBuffers(t *testing.T) {
	buf, store := newBuffer(t, testsupport.WithInsertBatchSize(3))
	ctx := context.Background()
	for uid := int64(1); uid <= 10; uid++ {
		require.NoError(t, buf.Enqueue(ctx, "tt_content", uid, 0))
	}

	result, err := buf.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Inserted)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

type failingStore struct {
	existsErr error
	insertErr error
}

func (f failingStore) Exists(context.Context, queue.Key) (bool, error) {
	return false, f.existsErr
}

func (f failingStore) InsertMissing(context.Context, []queue.Key, int) (int64, error) {
	return 0, f.insertErr
}

func TestFlushClearsBufferOnStoreFailure(t *testing.T) {
	boom := errors.New("disk full")
	for name, store := range map[string]failingStore{
		"exists": {existsErr: boom},
		"insert": {insertErr: boom},
	} {
		t.Run(name, func(t *testing.T) {
			buf := buffer.New(store, tablepolicy.Policy{}, 0)
			require.NoError(t, buf.Enqueue(context.Background(), "pages", 1, 0))

			_, err := buf.Flush(context.Background())
			assert.ErrorIs(t, err, boom)
			assert.Zero(t, buf.Len())
		})
	}
}

func TestScopeFlushesOnEveryExitPath(t *testing.T) {
	buf, store := newBuffer(t)
	ctx := context.Background()

	result, err := buffer.Scope(ctx, buf, func(ctx context.Context) error {
		return buf.Enqueue(ctx, "pages", 1, 0)
	})
	require.NoError(t, err)
	assert.Equal(t, buffer.Result{Buffered: 1, Inserted: 1}, result)

	fnErr := errors.New("handler failed")
	_, err = buffer.Scope(ctx, buf, func(ctx context.Context) error {
		require.NoError(t, buf.Enqueue(ctx, "pages", 2, 0))
		return fnErr
	})
	assert.ErrorIs(t, err, fnErr)

	assert.PanicsWithValue(t, "abort", func() {
		_, _ = buffer.Scope(ctx, buf, func(ctx context.Context) error {
			require.NoError(t, buf.Enqueue(ctx, "pages", 3, 0))
			panic("abort")
		})
	})

	assert.Equal(t, []queue.Key{
		{Table: "pages", UID: 1},
		{Table: "pages", UID: 2},
		{Table: "pages", UID: 3},
	}, testsupport.QueuedKeys(t, store))
}

func TestScopeJoinsFlushError(t *testing.T) {
	boom := errors.New("locked")
	buf := buffer.New(failingStore{existsErr: boom}, tablepolicy.Policy{}, 0)
	fnErr := errors.New("handler failed")

	_, err := buffer.Scope(context.Background(), buf, func(ctx context.Context) error {
		require.NoError(t, buf.Enqueue(ctx, "pages", 1, 0))
		return fnErr
	})
	assert.ErrorIs(t, err, fnErr)
	assert.ErrorIs(t, err, boom)
}

func TestScopeFlushesAfterCancellation(t *testing.T) {
	buf, store := newBuffer(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := buffer.Scope(ctx, buf, func(ctx context.Context) error {
		require.NoError(t, buf.Enqueue(ctx, "pages", 1, 0))
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, testsupport.QueuedKeys(t, store), 1)
}
