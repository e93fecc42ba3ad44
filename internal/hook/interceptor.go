// Package hook intercepts reference index updates coming from the host CMS and
// routes them either into the enqueue buffer or straight to a recompute.
package hook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"asyncref/internal/buffer"
	"asyncref/internal/capture"
	"asyncref/internal/logging"
	"asyncref/internal/refindex"
	"asyncref/internal/tablepolicy"
)

const (
	// ConsumerRecordUpdates is the host data handler reporting a record write.
	ConsumerRecordUpdates capture.Consumer = "record-updates"
	// ConsumerReferenceIndex is an explicit request to recompute one record.
	ConsumerReferenceIndex capture.Consumer = "reference-index"
)

// Interceptor implements both hooks over one buffer and capture toggle.
type Interceptor struct {
	policy  tablepolicy.Policy
	capture *capture.Toggle
	buffer  *buffer.Buffer
	indexer refindex.Factory
	logger  *slog.Logger
}

// New constructs an Interceptor. A nil logger discards output.
func New(policy tablepolicy.Policy, toggle *capture.Toggle, buf *buffer.Buffer, factory refindex.Factory, logger *slog.Logger) *Interceptor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Interceptor{
		policy:  policy,
		capture: toggle,
		buffer:  buf,
		indexer: factory,
		logger:  logger,
	}
}

// RecordUpdated handles a record write. While captured the record is queued;
// otherwise its references are recomputed immediately. Excluded tables are
// ignored.
func (i *Interceptor) RecordUpdated(ctx context.Context, table string, uid int64) error {
	table = strings.TrimSpace(table)
	if i.policy.Excluded(table) {
		i.logger.Debug("table excluded from reference index", logging.String("table", table))
		return nil
	}
	if !i.capture.IsCaptured(ConsumerRecordUpdates) {
		_, err := i.recompute(ctx, table, uid, false)
		return err
	}
	return i.buffer.Enqueue(ctx, table, uid, 0)
}

// UpdateRecordIndex handles an explicit recompute request. While captured a
// persisting request is queued and returns an empty result; an analysis-only
// request always runs so it reflects the current state.
func (i *Interceptor) UpdateRecordIndex(ctx context.Context, table string, uid int64, testOnly bool) (refindex.Result, error) {
	table = strings.TrimSpace(table)
	if i.policy.Excluded(table) {
		i.logger.Debug("table excluded from reference index", logging.String("table", table))
		return refindex.Result{}, nil
	}
	if !i.capture.IsCaptured(ConsumerReferenceIndex) || testOnly {
		return i.recompute(ctx, table, uid, testOnly)
	}
	if err := i.buffer.Enqueue(ctx, table, uid, 0); err != nil {
		return refindex.Result{}, err
	}
	return refindex.Result{}, nil
}

func (i *Interceptor) recompute(ctx context.Context, table string, uid int64, checkOnly bool) (refindex.Result, error) {
	req := refindex.Request{
		Table:     table,
		UID:       uid,
		Workspace: i.policy.ResolveWorkspace(ctx, table, 0),
		CheckOnly: checkOnly,
	}
	result, err := i.indexer().UpdateRecord(ctx, req)
	if err != nil {
		return refindex.Result{}, fmt.Errorf("recompute %s: %w", req, err)
	}
	return result, nil
}
