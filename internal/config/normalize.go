package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeIndexing()
	c.normalizeRecompute()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	if value, ok := os.LookupEnv("ASYNCREF_DATABASE"); ok && strings.TrimSpace(value) != "" {
		c.Paths.Database = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.Database) == "" {
		c.Paths.Database = defaultDatabaseName
	}
	if c.Paths.Database, err = c.resolveDataPath(c.Paths.Database); err != nil {
		return fmt.Errorf("paths.database: %w", err)
	}

	if strings.TrimSpace(c.Paths.LockFile) == "" {
		c.Paths.LockFile = defaultLockFile
	}
	if c.Paths.LockFile, err = c.resolveDataPath(c.Paths.LockFile); err != nil {
		return fmt.Errorf("paths.lock_file: %w", err)
	}
	if strings.TrimSpace(c.Paths.LegacyLockFile) == "" {
		c.Paths.LegacyLockFile = defaultLegacyLockFile
	}
	if c.Paths.LegacyLockFile, err = c.resolveDataPath(c.Paths.LegacyLockFile); err != nil {
		return fmt.Errorf("paths.legacy_lock_file: %w", err)
	}
	return nil
}

// resolveDataPath anchors relative paths at the data directory.
func (c *Config) resolveDataPath(value string) (string, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "~") || filepath.IsAbs(value) {
		return expandPath(value)
	}
	return expandPath(filepath.Join(c.Paths.DataDir, value))
}

func (c *Config) normalizeQueue() {
	if c.Queue.InsertBatchSize <= 0 {
		c.Queue.InsertBatchSize = defaultInsertBatchSize
	}
	if c.Queue.InsertBatchSize > MaxInsertBatchSize {
		c.Queue.InsertBatchSize = MaxInsertBatchSize
	}
}

func (c *Config) normalizeIndexing() {
	if value, ok := os.LookupEnv("ASYNCREF_EXCLUDE_TABLES"); ok {
		c.Indexing.ExcludeTables = append(c.Indexing.ExcludeTables, strings.Split(value, ",")...)
	}
	c.Indexing.ExcludeTables = normalizeTableList(c.Indexing.ExcludeTables)
	c.Indexing.WorkspaceTables = normalizeTableList(c.Indexing.WorkspaceTables)
}

// normalizeTableList trims entries, splits comma-joined values, and drops
// blanks and duplicates while keeping first-seen order.
func normalizeTableList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) normalizeRecompute() {
	c.Recompute.Command = trimArgs(c.Recompute.Command)
	c.Recompute.FullCommand = trimArgs(c.Recompute.FullCommand)
	c.Recompute.WorkDir = strings.TrimSpace(c.Recompute.WorkDir)
	if c.Recompute.WorkDir != "" {
		if expanded, err := expandPath(c.Recompute.WorkDir); err == nil {
			c.Recompute.WorkDir = expanded
		}
	}
}

func trimArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
