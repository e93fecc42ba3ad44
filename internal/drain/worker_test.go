package drain_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asyncref/internal/capture"
	"asyncref/internal/config"
	"asyncref/internal/drain"
	"asyncref/internal/hook"
	"asyncref/internal/queue"
	"asyncref/internal/refindex"
	"asyncref/internal/runlock"
	"asyncref/internal/tablepolicy"
	"asyncref/internal/testsupport"
)

type harness struct {
	cfg     *config.Config
	store   *queue.Store
	lock    *countingLock
	toggle  *capture.Toggle
	indexer *testsupport.RecordingIndexer
	worker  *drain.Worker
}

// countingLock wraps a runlock.Lock and records calls.
type countingLock struct {
	*runlock.Lock
	mu         sync.Mutex
	acquires   int
	releases   int
	heldErr    error
	releaseErr error
}

func (c *countingLock) Held() (bool, error) {
	if c.heldErr != nil {
		return false, c.heldErr
	}
	return c.Lock.Held()
}

func (c *countingLock) Acquire() error {
	c.mu.Lock()
	c.acquires++
	c.mu.Unlock()
	return c.Lock.Acquire()
}

func (c *countingLock) Release() error {
	c.mu.Lock()
	c.releases++
	c.mu.Unlock()
	if err := c.Lock.Release(); err != nil {
		return err
	}
	return c.releaseErr
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	lock := &countingLock{Lock: runlock.New(runlock.Resolve(cfg.Paths.LockFile, cfg.Paths.LegacyLockFile))}
	toggle := capture.New()
	indexer := &testsupport.RecordingIndexer{Result: refindex.Result{Kept: 1}}

	worker, err := drain.New(drain.Options{
		Store:   store,
		Lock:    lock,
		Indexer: indexer.Factory(),
		Policy:  tablepolicy.FromConfig(cfg),
		Capture: toggle,
	})
	require.NoError(t, err)
	return &harness{cfg: cfg, store: store, lock: lock, toggle: toggle, indexer: indexer, worker: worker}
}

func keys(table string, uids ...int64) []queue.Key {
	out := make([]queue.Key, 0, len(uids))
	for _, uid := range uids {
		out = append(out, queue.Key{Table: table, UID: uid})
	}
	return out
}

func TestRunProcessesEveryRow(t *testing.T) {
	h := newHarness(t)
	testsupport.SeedQueue(t, h.store, keys("tt_content", 1, 2, 3)...)

	report, err := h.worker.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, drain.OutcomeCompleted, report.Outcome)
	assert.Equal(t, 3, report.Queued)
	assert.Equal(t, 3, report.Processed)
	assert.NotEmpty(t, report.RunID)
	assert.Zero(t, report.ExitCode())
	assert.Equal(t, []string{
		"Processing reference index for 3 record(s)",
		"Reference indexing complete!",
	}, report.Lines())

	assert.Empty(t, testsupport.QueuedKeys(t, h.store))
	assert.Equal(t, 3, h.indexer.Instances(), "fresh indexer per row")
	assert.Equal(t, 1, h.lock.acquires)
	assert.Equal(t, 1, h.lock.releases)
	held, err := h.lock.Held()
	require.NoError(t, err)
	assert.False(t, held)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	h := newHarness(t)
	testsupport.SeedQueue(t, h.store, keys("pages", 1, 2, 3)...)
	h.indexer.FailOn = map[string]error{
		"pages:2:0": &refindex.CommandError{Command: "typo3", ExitCode: 7, Stderr: "broken relation"},
	}

	report, err := h.worker.Run(context.Background())
	require.Error(t, err)

	var itemErr *drain.ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, queue.Key{Table: "pages", UID: 2}, itemErr.Item.Key)
	assert.Equal(t, 7, itemErr.Code())

	assert.Equal(t, drain.OutcomeFailed, report.Outcome)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.ExitCode())
	assert.Equal(t, []string{
		"Processing reference index for 3 record(s)",
		"ERROR! typo3 failed (exit status 7): broken relation (7)",
	}, report.Lines())

	assert.Equal(t, keys("pages", 2, 3), testsupport.QueuedKeys(t, h.store))
	assert.Len(t, h.indexer.Records(), 2, "no rows after the failure are attempted")
	assert.Equal(t, 1, h.lock.releases, "lock released on failure")
}

func TestRunFailureOnEachPosition(t *testing.T) {
	const n = 4
	for k := int64(1); k <= n; k++ {
		h := newHarness(t)
		testsupport.SeedQueue(t, h.store, keys("tt_content", 1, 2, 3, 4)...)
		h.indexer.FailOn = map[string]error{
			(queue.Key{Table: "tt_content", UID: k}).String(): errors.New("boom"),
		}

		report, err := h.worker.Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, int(k-1), report.Processed)

		var remaining []int64
		for uid := k; uid <= n; uid++ {
			remaining = append(remaining, uid)
		}
		assert.Equal(t, keys("tt_content", remaining...), testsupport.QueuedKeys(t, h.store), "failure at %d", k)
	}
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	h := newHarness(t)
	testsupport.SeedQueue(t, h.store, keys("pages", 1, 2)...)
	other := runlock.New(h.lock.Path())
	require.NoError(t, other.Acquire())

	report, err := h.worker.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, drain.OutcomeSkipped, report.Outcome)
	assert.Equal(t, []string{"Another process is updating the reference index - skipping"}, report.Lines())
	assert.Empty(t, h.indexer.Records())
	assert.Equal(t, keys("pages", 1, 2), testsupport.QueuedKeys(t, h.store))
	assert.Zero(t, h.lock.acquires)

	held, err := other.Held()
	require.NoError(t, err)
	assert.True(t, held, "foreign lock is left alone")
}

func TestRunOnEmptyQueueTakesNoLock(t *testing.T) {
	h := newHarness(t)

	report, err := h.worker.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, drain.OutcomeEmpty, report.Outcome)
	assert.Equal(t, []string{"No reference indexing tasks queued - nothing to do."}, report.Lines())
	assert.Zero(t, h.lock.acquires)
	assert.Zero(t, h.lock.releases)
	_, statErr := os.Stat(h.lock.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunAppliesWorkspaceOnlyForWorkspaceTables(t *testing.T) {
	h := newHarness(t, testsupport.WithWorkspaceTables("pages"))
	testsupport.SeedQueue(t, h.store,
		queue.Key{Table: "pages", UID: 1, Workspace: 3},
		queue.Key{Table: "sys_file", UID: 2, Workspace: 3},
		queue.Key{Table: "pages", UID: 4},
	)

	_, err := h.worker.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []refindex.Request{
		{Table: "pages", UID: 1, Workspace: 3},
		{Table: "sys_file", UID: 2},
		{Table: "pages", UID: 4},
	}, h.indexer.Records())
	assert.Empty(t, testsupport.QueuedKeys(t, h.store))
}

func TestRunSuspendsReferenceIndexCapture(t *testing.T) {
	h := newHarness(t)
	testsupport.SeedQueue(t, h.store, keys("pages", 1)...)

	var capturedDuringRun []bool
	h.indexer.OnRecord = func(refindex.Request) {
		capturedDuringRun = append(capturedDuringRun,
			h.toggle.IsCaptured(hook.ConsumerReferenceIndex),
			h.toggle.IsCaptured(hook.ConsumerRecordUpdates),
		)
	}

	_, err := h.worker.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true}, capturedDuringRun)
	assert.True(t, h.toggle.IsCaptured(hook.ConsumerReferenceIndex), "restored after run")
}

func TestRunDropsExcludedTableRows(t *testing.T) {
	h := newHarness(t, testsupport.WithExcludedTables("sys_log"))
	testsupport.SeedQueue(t, h.store,
		queue.Key{Table: "sys_log", UID: 1},
		queue.Key{Table: "pages", UID: 1},
	)

	report, err := h.worker.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, []refindex.Request{{Table: "pages", UID: 1}}, h.indexer.Records())
	assert.Empty(t, testsupport.QueuedKeys(t, h.store))
}

func TestLockFailuresAreLockIO(t *testing.T) {
	t.Run("check", func(t *testing.T) {
		h := newHarness(t)
		testsupport.SeedQueue(t, h.store, keys("pages", 1)...)
		h.lock.heldErr = runlock.ErrLockIO

		report, err := h.worker.Run(context.Background())
		assert.ErrorIs(t, err, runlock.ErrLockIO)
		assert.Equal(t, drain.OutcomeFailed, report.Outcome)
		assert.Empty(t, h.indexer.Records())
	})

	t.Run("release", func(t *testing.T) {
		h := newHarness(t)
		testsupport.SeedQueue(t, h.store, keys("pages", 1)...)
		h.lock.releaseErr = runlock.ErrLockIO

		report, err := h.worker.Run(context.Background())
		assert.ErrorIs(t, err, runlock.ErrLockIO)
		assert.Equal(t, drain.OutcomeFailed, report.Outcome)
		assert.Equal(t, 1, report.Processed)
		var itemErr *drain.ItemError
		assert.False(t, errors.As(err, &itemErr))
	})
}

func TestPanickingIndexerFailsItemAndReleasesLock(t *testing.T) {
	h := newHarness(t)
	testsupport.SeedQueue(t, h.store, keys("pages", 1, 2)...)
	h.indexer.OnRecord = func(refindex.Request) { panic("boom") }

	var (
		report drain.Report
		err    error
	)
	require.NotPanics(t, func() {
		report, err = h.worker.Run(context.Background())
	})

	assert.Equal(t, drain.OutcomeFailed, report.Outcome)
	var itemErr *drain.ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, queue.Key{Table: "pages", UID: 1}, itemErr.Item.Key)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, keys("pages", 1, 2), testsupport.QueuedKeys(t, h.store))

	assert.Equal(t, 1, h.lock.releases)
	held, err := h.lock.Held()
	require.NoError(t, err)
	assert.False(t, held, "lock released after a panicking item")

	h.indexer.OnRecord = nil
	report, err = h.worker.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, drain.OutcomeCompleted, report.Outcome)
}

func TestNilIndexerFailsItem(t *testing.T) {
	h := newHarness(t)
	testsupport.SeedQueue(t, h.store, keys("pages", 1)...)
	worker, err := drain.New(drain.Options{
		Store:   h.store,
		Lock:    h.lock,
		Indexer: func() refindex.Indexer { return nil },
	})
	require.NoError(t, err)

	report, err := worker.Run(context.Background())
	var itemErr *drain.ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, drain.OutcomeFailed, report.Outcome)
	assert.Len(t, testsupport.QueuedKeys(t, h.store), 1)

	held, err := h.lock.Held()
	require.NoError(t, err)
	assert.False(t, held)
}

func TestConcurrentRunsShareOneDrain(t *testing.T) {
	h := newHarness(t)
	testsupport.SeedQueue(t, h.store, keys("pages", 1)...)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.indexer.OnRecord = func(refindex.Request) {
		once.Do(func() { close(started) })
		<-release
	}

	reports := make(chan drain.Report, 2)
	go func() {
		report, _ := h.worker.Run(context.Background())
		reports <- report
	}()
	<-started
	go func() {
		report, _ := h.worker.Run(context.Background())
		reports <- report
	}()
	time.Sleep(100 * time.Millisecond)
	close(release)

	first, second := <-reports, <-reports
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, drain.OutcomeCompleted, first.Outcome)
	assert.Len(t, h.indexer.Records(), 1)
}

func TestRebuildNeverTouchesQueue(t *testing.T) {
	h := newHarness(t)
	testsupport.SeedQueue(t, h.store, keys("pages", 1, 2)...)

	h.indexer.Result = refindex.Result{Added: 4, Kept: 10}
	result, err := drain.Rebuild(context.Background(), drain.RebuildOptions{
		Indexer: h.indexer.Factory(),
		Capture: h.toggle,
	}, refindex.FullRequest{CheckOnly: true})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Added)
	assert.Equal(t, []refindex.FullRequest{{CheckOnly: true}}, h.indexer.FullRuns())
	assert.Empty(t, h.indexer.Records())
	assert.Equal(t, keys("pages", 1, 2), testsupport.QueuedKeys(t, h.store))
	assert.True(t, h.toggle.IsCaptured(hook.ConsumerReferenceIndex), "capture restored once rebuild returns")
	assert.True(t, h.toggle.IsCaptured(hook.ConsumerRecordUpdates))
	assert.Zero(t, h.lock.acquires)
}

func TestRebuildSurfacesFailure(t *testing.T) {
	h := newHarness(t)
	h.indexer.FullErr = refindex.ErrNotConfigured

	_, err := drain.Rebuild(context.Background(), drain.RebuildOptions{Indexer: h.indexer.Factory()}, refindex.FullRequest{})
	assert.ErrorIs(t, err, refindex.ErrNotConfigured)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := drain.New(drain.Options{})
	assert.Error(t, err)
}

func TestErrorLineFallsBackToCodeOne(t *testing.T) {
	assert.Equal(t, "ERROR! count queue: disk gone (1)", drain.ErrorLine(errors.New("count queue: disk gone")))
}
