// Package drain processes the reference index queue: one run at a time, one
// row at a time, stopping at the first failure so the failed row and the rest
// of the queue wait for the next run.
package drain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"asyncref/internal/capture"
	"asyncref/internal/hook"
	"asyncref/internal/logging"
	"asyncref/internal/queue"
	"asyncref/internal/refindex"
	"asyncref/internal/runlock"
	"asyncref/internal/tablepolicy"
)

// Store is the subset of queue.Store the worker uses.
type Store interface {
	Count(ctx context.Context) (int, error)
	Each(ctx context.Context, fn func(queue.Item) error) error
	Delete(ctx context.Context, key queue.Key) (bool, error)
}

// Lock is the cross-process run lock.
type Lock interface {
	Held() (bool, error)
	Acquire() error
	Release() error
}

// Options wires a Worker.
type Options struct {
	Store   Store
	Lock    Lock
	Indexer refindex.Factory
	Policy  tablepolicy.Policy
	Capture *capture.Toggle
	Logger  *slog.Logger
}

// Worker drains the queue.
type Worker struct {
	store   Store
	lock    Lock
	indexer refindex.Factory
	policy  tablepolicy.Policy
	capture *capture.Toggle
	logger  *slog.Logger
	group   singleflight.Group
}

// New validates opts and constructs a Worker.
func New(opts Options) (*Worker, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("queue store is required")
	}
	if opts.Lock == nil {
		return nil, fmt.Errorf("run lock is required")
	}
	if opts.Indexer == nil {
		return nil, fmt.Errorf("indexer factory is required")
	}
	toggle := opts.Capture
	if toggle == nil {
		toggle = capture.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		store:   opts.Store,
		lock:    opts.Lock,
		indexer: opts.Indexer,
		policy:  opts.Policy,
		capture: toggle,
		logger:  logging.NewComponentLogger(logger, "drain"),
	}, nil
}

// Run drains the queue once. Concurrent calls on the same Worker share a
// single run and its report. The returned error is the report's Err and is
// non-nil only for OutcomeFailed.
func (w *Worker) Run(ctx context.Context) (Report, error) {
	value, _, _ := w.group.Do("drain", func() (any, error) {
		return w.run(ctx), nil
	})
	report := value.(Report)
	return report, report.Err
}

func (w *Worker) run(ctx context.Context) Report {
	report := Report{RunID: uuid.NewString(), Started: time.Now()}
	runCtx := logging.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(runCtx, w.logger)

	finish := func(outcome Outcome, err error) Report {
		report.Outcome = outcome
		report.Err = err
		report.Finished = time.Now()
		return report
	}

	held, err := w.lock.Held()
	if err != nil {
		return finish(OutcomeFailed, fmt.Errorf("check run lock: %w", err))
	}
	if held {
		logger.Info("drain skipped", logging.String(logging.FieldEventType, "drain_skipped"))
		return finish(OutcomeSkipped, nil)
	}

	queued, err := w.store.Count(runCtx)
	if err != nil {
		return finish(OutcomeFailed, fmt.Errorf("count queue: %w", err))
	}
	report.Queued = queued
	if queued == 0 {
		logger.Debug("queue empty", logging.String(logging.FieldEventType, "drain_empty"))
		return finish(OutcomeEmpty, nil)
	}

	if err := w.lock.Acquire(); err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			logger.Info("drain skipped", logging.String(logging.FieldEventType, "drain_skipped"))
			return finish(OutcomeSkipped, nil)
		}
		return finish(OutcomeFailed, fmt.Errorf("acquire run lock: %w", err))
	}

	logger.Info("drain started",
		logging.String(logging.FieldEventType, "drain_start"),
		logging.Int("queued", queued),
	)

	runErr := w.processLocked(runCtx, &report)
	if runErr != nil {
		logger.Error("drain failed",
			logging.String(logging.FieldEventType, "drain_failure"),
			logging.Int("processed", report.Processed),
			logging.Error(runErr),
		)
		return finish(OutcomeFailed, runErr)
	}

	report = finish(OutcomeCompleted, nil)
	logger.Info("drain completed",
		logging.String(logging.FieldEventType, "drain_complete"),
		logging.Int("processed", report.Processed),
		logging.Int("dropped", report.Dropped),
		logging.Duration("duration", report.Duration()),
	)
	return report
}

// processLocked runs process while the run lock is held and releases the lock
// on the way out, panics included.
func (w *Worker) processLocked(ctx context.Context, report *Report) (err error) {
	defer func() {
		if releaseErr := w.lock.Release(); releaseErr != nil {
			err = errors.Join(err, fmt.Errorf("release run lock: %w", releaseErr))
		}
	}()
	return w.process(ctx, report)
}

func (w *Worker) process(ctx context.Context, report *Report) error {
	restore := w.capture.Suspend(hook.ConsumerReferenceIndex)
	defer restore()

	return w.store.Each(ctx, func(item queue.Item) error {
		itemCtx := logging.WithItemKey(ctx, item.Key.String())
		itemLogger := logging.WithContext(itemCtx, w.logger)

		if w.policy.Excluded(item.Key.Table) {
			if _, err := w.store.Delete(itemCtx, item.Key); err != nil {
				return &ItemError{Item: item, Err: fmt.Errorf("delete queue row: %w", err)}
			}
			report.Dropped++
			itemLogger.Debug("dropped excluded table row")
			return nil
		}

		req := refindex.Request{Table: item.Key.Table, UID: item.Key.UID}
		if item.Key.Workspace != 0 && w.policy.WorkspaceAware(item.Key.Table) {
			req.Workspace = item.Key.Workspace
		}
		result, err := w.recompute(itemCtx, req)
		if err != nil {
			return &ItemError{Item: item, Err: err}
		}
		if _, err := w.store.Delete(itemCtx, item.Key); err != nil {
			return &ItemError{Item: item, Err: fmt.Errorf("delete queue row: %w", err)}
		}
		report.Processed++
		itemLogger.Debug("item processed",
			logging.String(logging.FieldEventType, "item_processed"),
			logging.Int("added", result.Added),
			logging.Int("deleted", result.Deleted),
			logging.Int("kept", result.Kept),
		)
		return nil
	})
}

// recompute runs one request on a fresh indexer. A panicking indexer fails
// the item like any other recompute error.
func (w *Worker) recompute(ctx context.Context, req refindex.Request) (result refindex.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recompute %s panicked: %v", req, r)
		}
	}()
	indexer := w.indexer()
	if indexer == nil {
		return refindex.Result{}, errors.New("indexer factory returned nil")
	}
	return indexer.UpdateRecord(ctx, req)
}

// RebuildOptions wires Rebuild.
type RebuildOptions struct {
	Indexer refindex.Factory
	Capture *capture.Toggle
	Logger  *slog.Logger
}

// Rebuild runs a full recompute directly, with capture disabled for its
// duration. It never reads or writes the queue.
func Rebuild(ctx context.Context, opts RebuildOptions, req refindex.FullRequest) (refindex.Result, error) {
	if opts.Indexer == nil {
		return refindex.Result{}, fmt.Errorf("indexer factory is required")
	}
	toggle := opts.Capture
	if toggle == nil {
		toggle = capture.New()
	}
	restoreIndex := toggle.Suspend(hook.ConsumerReferenceIndex)
	defer restoreIndex()
	restoreRecords := toggle.Suspend(hook.ConsumerRecordUpdates)
	defer restoreRecords()

	logger := logging.NewComponentLogger(opts.Logger, "rebuild")
	logger.Info("full recompute started",
		logging.String(logging.FieldEventType, "rebuild_start"),
		logging.Bool("check_only", req.CheckOnly),
	)
	result, err := opts.Indexer().UpdateAll(ctx, req)
	if err != nil {
		logger.Error("full recompute failed",
			logging.String(logging.FieldEventType, "rebuild_failure"),
			logging.Error(err),
		)
		return refindex.Result{}, fmt.Errorf("full recompute: %w", err)
	}
	logger.Info("full recompute completed",
		logging.String(logging.FieldEventType, "rebuild_complete"),
		logging.Int("added", result.Added),
		logging.Int("deleted", result.Deleted),
		logging.Int("kept", result.Kept),
	)
	return result, nil
}
