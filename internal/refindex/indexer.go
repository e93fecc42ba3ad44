package refindex

import (
	"context"
	"fmt"
)

// Request identifies a single record to recompute. Workspace is zero for the
// live version or when the table is not workspace-aware.
type Request struct {
	Table     string
	UID       int64
	Workspace int64
	CheckOnly bool
	Verbose   bool
}

// String renders the request as table:uid:workspace.
func (r Request) String() string {
	return fmt.Sprintf("%s:%d:%d", r.Table, r.UID, r.Workspace)
}

// FullRequest describes a recompute over every record.
type FullRequest struct {
	CheckOnly bool
	Verbose   bool
}

// Result holds the statistics reported by a recompute.
type Result struct {
	Added      int      `json:"added"`
	Deleted    int      `json:"deleted"`
	Kept       int      `json:"kept"`
	References []string `json:"references,omitempty"`
}

// Empty reports whether the result carries no statistics.
func (r Result) Empty() bool {
	return r.Added == 0 && r.Deleted == 0 && r.Kept == 0 && len(r.References) == 0
}

// Indexer recomputes reference-index rows.
type Indexer interface {
	UpdateRecord(ctx context.Context, req Request) (Result, error)
	UpdateAll(ctx context.Context, req FullRequest) (Result, error)
}

// Factory builds a fresh Indexer. Callers obtain one per record so no state
// carries over between items.
type Factory func() Indexer
