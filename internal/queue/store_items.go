package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"asyncref/internal/config"
)

// eachPageSize bounds how many rows Each holds in memory at once.
const eachPageSize = 256

// Count returns the number of pending rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM `+Table)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count queue items: %w", err)
	}
	return count, nil
}

// Exists reports whether a row with the given identity key is queued.
func (s *Store) Exists(ctx context.Context, key Key) (bool, error) {
	var found int
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM `+Table+` WHERE reference_table = ? AND reference_uid = ? AND reference_workspace = ?`,
		key.Table, key.UID, key.Workspace,
	)
	if err := row.Scan(&found); err != nil {
		return false, fmt.Errorf("check queued %s: %w", key, err)
	}
	return found > 0, nil
}

// InsertMissing bulk-inserts keys, at most batchSize rows per statement.
// Keys already present are skipped by the unique constraint, so a concurrent
// flusher racing on the same key cannot create a duplicate. It returns the
// number of rows actually inserted.
func (s *Store) InsertMissing(ctx context.Context, keys []Key, batchSize int) (int64, error) {
	ctx = ensureContext(ctx)
	if batchSize <= 0 || batchSize > config.MaxInsertBatchSize {
		batchSize = config.MaxInsertBatchSize
	}

	queuedAt := time.Now().UTC().Format(time.RFC3339Nano)
	var inserted int64
	for start := 0; start < len(keys); start += batchSize {
		end := min(start+batchSize, len(keys))
		chunk := keys[start:end]

		values := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*4)
		for _, key := range chunk {
			values = append(values, "(?, ?, ?, ?)")
			args = append(args, key.Table, key.UID, key.Workspace, queuedAt)
		}
		query := `INSERT INTO ` + Table + ` (reference_table, reference_uid, reference_workspace, queued_at) VALUES ` +
			strings.Join(values, ", ") +
			` ON CONFLICT (reference_table, reference_uid, reference_workspace) DO NOTHING`

		res, err := s.execWithRetry(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("insert queue items: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			inserted += affected
		}
	}
	return inserted, nil
}

// Delete removes the row matching key exactly. It reports whether a row was removed.
func (s *Store) Delete(ctx context.Context, key Key) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM `+Table+` WHERE reference_table = ? AND reference_uid = ? AND reference_workspace = ?`,
		key.Table, key.UID, key.Workspace,
	)
	if err != nil {
		return false, fmt.Errorf("delete queued %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete queued %s: %w", key, err)
	}
	return affected > 0, nil
}

// Each streams pending rows in insertion order, one at a time. Rows are read
// in pages so no read transaction stays open while fn runs; fn may therefore
// delete the row it receives. An error from fn stops iteration and is
// returned unchanged.
func (s *Store) Each(ctx context.Context, fn func(Item) error) error {
	ctx = ensureContext(ctx)
	var lastID int64
	for {
		page, err := s.page(ctx, lastID, eachPageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, item := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(item); err != nil {
				return err
			}
			lastID = item.ID
		}
	}
}

// List returns up to limit pending rows in insertion order; limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.page(ensureContext(ctx), 0, limit)
}

func (s *Store) page(ctx context.Context, afterID int64, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM `+Table+` WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Clear removes every pending row and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM `+Table)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

// CountByTable groups pending rows by table, largest first.
func (s *Store) CountByTable(ctx context.Context) ([]TableCount, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT reference_table, COUNT(1) AS n FROM `+Table+` GROUP BY reference_table ORDER BY n DESC, reference_table`,
	)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var counts []TableCount
	for rows.Next() {
		var tc TableCount
		if err := rows.Scan(&tc.Table, &tc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}
