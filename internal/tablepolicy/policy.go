// Package tablepolicy answers per-table questions for the indexing hooks:
// whether a table is excluded from reference indexing and whether it carries
// workspace versions. It also carries the editing user's active workspace
// through a context.
package tablepolicy

import (
	"context"
	"slices"
	"strings"

	"asyncref/internal/config"
)

// Policy is an immutable table lookup built from configuration.
type Policy struct {
	excluded  map[string]struct{}
	workspace map[string]struct{}
}

// New builds a Policy from explicit table lists. Names are trimmed and blank
// entries are dropped.
func New(excluded, workspaceAware []string) Policy {
	return Policy{
		excluded:  toSet(excluded),
		workspace: toSet(workspaceAware),
	}
}

// FromConfig builds a Policy from the [indexing] section.
func FromConfig(cfg *config.Config) Policy {
	if cfg == nil {
		return Policy{}
	}
	return New(cfg.Indexing.ExcludeTables, cfg.Indexing.WorkspaceTables)
}

// Excluded reports whether table is excluded from reference indexing.
func (p Policy) Excluded(table string) bool {
	_, ok := p.excluded[strings.TrimSpace(table)]
	return ok
}

// WorkspaceAware reports whether table stores workspace versions.
func (p Policy) WorkspaceAware(table string) bool {
	_, ok := p.workspace[strings.TrimSpace(table)]
	return ok
}

// ResolveWorkspace returns the workspace to record for table. A zero given
// workspace on a workspace-aware table is replaced by the active workspace
// carried in ctx, when there is one.
func (p Policy) ResolveWorkspace(ctx context.Context, table string, given int64) int64 {
	if given != 0 || !p.WorkspaceAware(table) {
		return given
	}
	if active := ActiveWorkspace(ctx); active > 0 {
		return active
	}
	return given
}

// ExcludedTables lists excluded tables sorted by name.
func (p Policy) ExcludedTables() []string {
	return keys(p.excluded)
}

type workspaceKey struct{}

// WithActiveWorkspace returns a context carrying the editing user's workspace.
func WithActiveWorkspace(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, workspaceKey{}, id)
}

// ActiveWorkspace returns the workspace stored by WithActiveWorkspace, or 0.
func ActiveWorkspace(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	id, _ := ctx.Value(workspaceKey{}).(int64)
	return id
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		set[value] = struct{}{}
	}
	return set
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	slices.Sort(out)
	return out
}
