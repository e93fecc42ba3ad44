// Package buffer coalesces queue keys in memory for the lifetime of one unit
// of work and writes the survivors to the queue store in a single flush.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"asyncref/internal/logging"
	"asyncref/internal/queue"
	"asyncref/internal/tablepolicy"
)

// Store is the subset of queue.Store a flush needs.
type Store interface {
	Exists(ctx context.Context, key queue.Key) (bool, error)
	InsertMissing(ctx context.Context, keys []queue.Key, batchSize int) (int64, error)
}

// Result summarizes one flush.
type Result struct {
	Buffered int
	Skipped  int
	Inserted int
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithLogger sets the logger used for flush diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Buffer) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Buffer holds at most one entry per queue key, in first-enqueue order.
type Buffer struct {
	store     Store
	policy    tablepolicy.Policy
	batchSize int
	logger    *slog.Logger

	mu    sync.Mutex
	order []queue.Key
	index map[queue.Key]struct{}
}

// New constructs a Buffer that flushes into store in chunks of batchSize rows.
func New(store Store, policy tablepolicy.Policy, batchSize int, opts ...Option) *Buffer {
	b := &Buffer{
		store:     store,
		policy:    policy,
		batchSize: batchSize,
		logger:    logging.NewNop(),
		index:     make(map[queue.Key]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enqueue records that table:uid changed. A zero workspace on a
// workspace-aware table takes the active workspace carried in ctx. Enqueueing
// a key that is already buffered is a no-op.
func (b *Buffer) Enqueue(ctx context.Context, table string, uid, workspace int64) error {
	table = strings.TrimSpace(table)
	key := queue.Key{
		Table:     table,
		UID:       uid,
		Workspace: b.policy.ResolveWorkspace(ctx, table, workspace),
	}
	if err := key.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.index[key]; ok {
		return nil
	}
	b.index[key] = struct{}{}
	b.order = append(b.order, key)
	return nil
}

// Len returns the number of buffered keys.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Keys returns a copy of the buffered keys in enqueue order.
func (b *Buffer) Keys() []queue.Key {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]queue.Key(nil), b.order...)
}

// Flush writes buffered keys that are not already queued. The buffer is empty
// afterwards whether or not the write succeeded.
func (b *Buffer) Flush(ctx context.Context) (Result, error) {
	keys := b.drainKeys()
	result := Result{Buffered: len(keys)}
	if len(keys) == 0 {
		return result, nil
	}

	pending := make([]queue.Key, 0, len(keys))
	for _, key := range keys {
		exists, err := b.store.Exists(ctx, key)
		if err != nil {
			return result, fmt.Errorf("check queued %s: %w", key, err)
		}
		if exists {
			result.Skipped++
			continue
		}
		pending = append(pending, key)
	}

	if len(pending) > 0 {
		inserted, err := b.store.InsertMissing(ctx, pending, b.batchSize)
		result.Inserted = int(inserted)
		if err != nil {
			return result, fmt.Errorf("insert queue rows: %w", err)
		}
	}

	b.logger.Debug("enqueue buffer flushed",
		logging.Int("buffered", result.Buffered),
		logging.Int("skipped", result.Skipped),
		logging.Int("inserted", result.Inserted),
	)
	return result, nil
}

func (b *Buffer) drainKeys() []queue.Key {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := b.order
	b.order = nil
	b.index = make(map[queue.Key]struct{})
	return keys
}

// Scope runs fn and flushes buf when fn returns or panics. A flush error is
// joined to fn's error; a panic is re-raised after the flush.
func Scope(ctx context.Context, buf *Buffer, fn func(context.Context) error) (result Result, err error) {
	defer func() {
		var flushErr error
		result, flushErr = buf.Flush(context.WithoutCancel(ctx))
		if flushErr != nil {
			err = errors.Join(err, fmt.Errorf("flush enqueue buffer: %w", flushErr))
		}
	}()
	return Result{}, fn(ctx)
}
