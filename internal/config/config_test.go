package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"asyncref/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "asyncref")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.Database != filepath.Join(wantData, "queue.db") {
		t.Fatalf("unexpected database path: %q", cfg.Paths.Database)
	}
	if cfg.Paths.LockFile != filepath.Join(wantData, "var", "reference-indexing-running.lock") {
		t.Fatalf("unexpected lock file: %q", cfg.Paths.LockFile)
	}
	if cfg.Paths.LegacyLockFile != filepath.Join(wantData, "reference-indexing-running.lock") {
		t.Fatalf("unexpected legacy lock file: %q", cfg.Paths.LegacyLockFile)
	}
	if cfg.Queue.InsertBatchSize != config.MaxInsertBatchSize {
		t.Fatalf("unexpected batch size: %d", cfg.Queue.InsertBatchSize)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.RecomputeConfigured() {
		t.Fatal("expected no recompute command by default")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if info, err := os.Stat(cfg.Paths.DataDir); err != nil || !info.IsDir() {
		t.Fatalf("expected data dir to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(cfg.Paths.LockFile)); !os.IsNotExist(err) {
		t.Fatalf("expected lock directory to be left alone, stat err=%v", err)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	dataDir := filepath.Join(tempHome, "data")
	configPath := filepath.Join(tempHome, "config.toml")
	content := `[paths]
data_dir = "` + dataDir + `"
database = "~/db/refs.db"

[queue]
insert_batch_size = 100000

[indexing]
exclude_tables = [" sys_log ", "sys_history,be_sessions", "sys_log"]
workspace_tables = ["pages"]

[recompute]
command = ["php", " typo3 ", "", "{table}"]

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.Database != filepath.Join(tempHome, "db", "refs.db") {
		t.Fatalf("unexpected database path: %q", cfg.Paths.Database)
	}
	if cfg.Queue.InsertBatchSize != config.MaxInsertBatchSize {
		t.Fatalf("expected batch size clamp, got %d", cfg.Queue.InsertBatchSize)
	}
	want := []string{"sys_log", "sys_history", "be_sessions"}
	if strings.Join(cfg.Indexing.ExcludeTables, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected exclude tables: %v", cfg.Indexing.ExcludeTables)
	}
	if strings.Join(cfg.Recompute.Command, " ") != "php typo3 {table}" {
		t.Fatalf("unexpected command: %q", cfg.Recompute.Command)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("ASYNCREF_DATABASE", "/tmp/override/queue.db")
	t.Setenv("ASYNCREF_EXCLUDE_TABLES", "sys_log, tx_news_domain_model_tag")

	cfg, _, _, err := config.Load(filepath.Join(tempHome, "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.Database != "/tmp/override/queue.db" {
		t.Fatalf("unexpected database path: %q", cfg.Paths.Database)
	}
	if len(cfg.Indexing.ExcludeTables) != 2 || cfg.Indexing.ExcludeTables[1] != "tx_news_domain_model_tag" {
		t.Fatalf("unexpected exclude tables: %v", cfg.Indexing.ExcludeTables)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"batch size", func(c *config.Config) { c.Queue.InsertBatchSize = 0 }, "insert_batch_size"},
		{"table name", func(c *config.Config) { c.Indexing.ExcludeTables = []string{"pages; DROP"} }, "invalid table name"},
		{"log level", func(c *config.Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"lock equals db", func(c *config.Config) { c.Paths.LockFile = c.Paths.Database }, "must differ"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.DataDir = "/data"
			cfg.Paths.Database = "/data/queue.db"
			cfg.Paths.LockFile = "/data/var/run.lock"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := filepath.Join(tempHome, ".config", "asyncref", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample does not parse: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if !cfg.RecomputeConfigured() || !cfg.FullRecomputeConfigured() {
		t.Fatal("expected sample to configure recompute commands")
	}
	if len(cfg.Indexing.WorkspaceTables) == 0 {
		t.Fatal("expected sample workspace tables")
	}

	encoded, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(string(encoded), "insert_batch_size") {
		t.Fatalf("encoded config missing queue section:\n%s", encoded)
	}
}
