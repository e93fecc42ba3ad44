package testsupport

import (
	"path/filepath"
	"testing"

	"asyncref/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = base
	cfgVal.Paths.Database = filepath.Join(base, "queue.db")
	cfgVal.Paths.LockFile = filepath.Join(base, "var", "reference-indexing-running.lock")
	cfgVal.Paths.LegacyLockFile = filepath.Join(base, "reference-indexing-running.lock")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkspaceTables marks tables as workspace-aware on the test config.
func WithWorkspaceTables(tables ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Indexing.WorkspaceTables = append(b.cfg.Indexing.WorkspaceTables, tables...)
	}
}

// WithExcludedTables excludes tables from indexing on the test config.
func WithExcludedTables(tables ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Indexing.ExcludeTables = append(b.cfg.Indexing.ExcludeTables, tables...)
	}
}

// WithInsertBatchSize overrides the flush chunk size.
func WithInsertBatchSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.InsertBatchSize = size
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.DataDir
}
