package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"asyncref/internal/config"
	"asyncref/internal/queue"
	"asyncref/internal/runlock"
	"asyncref/internal/testsupport"
)

// failingUID makes the fake recompute command exit with status 7.
const failingUID = "13"

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	callsPath  string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t,
		testsupport.WithExcludedTables("sys_log"),
		testsupport.WithWorkspaceTables("pages"),
	)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("ASYNCREF_DATABASE", "")
	t.Setenv("ASYNCREF_EXCLUDE_TABLES", "")

	callsPath := filepath.Join(base, "calls.log")
	cfg.Logging.Level = "error"
	cfg.Recompute.Command = []string{
		"sh", "-c",
		fmt.Sprintf(`printf '%%s:%%s:%%s %%s\n' "$1" "$2" "$3" "$4" >> %q; `+
			`if [ "$2" = %q ]; then echo "relation broken" >&2; exit 7; fi; `+
			`echo '{"added":1,"deleted":0,"kept":2,"references":["sys_file:9"]}'`, callsPath, failingUID),
		"indexer", "{table}", "{uid}", "{workspace}", "{check}",
	}
	cfg.Recompute.FullCommand = []string{
		"sh", "-c",
		fmt.Sprintf(`printf 'full %%s %%s\n' "$1" "$2" >> %q; echo '{"added":3,"deleted":1,"kept":9}'`, callsPath),
		"full", "{check}", "{verbose}",
	}

	configPath := filepath.Join(homeDir, "asyncref.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, callsPath: callsPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, env.configPath)
}

func (env *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := env.run(t, args...)
	if err != nil {
		t.Fatalf("asyncref %s: %v (stderr=%q)", strings.Join(args, " "), err, stderr)
	}
	return stdout
}

func (env *cliTestEnv) queuedKeys(t *testing.T) []queue.Key {
	t.Helper()
	store := testsupport.MustOpenStore(t, env.cfg)
	keys := testsupport.QueuedKeys(t, store)
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	return keys
}

func (env *cliTestEnv) calls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(env.callsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read calls: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func (env *cliTestEnv) lockPath() string {
	return runlock.Resolve(env.cfg.Paths.LockFile, env.cfg.Paths.LegacyLockFile)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
