package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateIndexing(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.Database) == "" {
		return errors.New("paths.database must be set")
	}
	if strings.TrimSpace(c.Paths.LockFile) == "" {
		return errors.New("paths.lock_file must be set")
	}
	if filepath.Clean(c.Paths.LockFile) == filepath.Clean(c.Paths.Database) {
		return errors.New("paths.lock_file must differ from paths.database")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.InsertBatchSize < 1 || c.Queue.InsertBatchSize > MaxInsertBatchSize {
		return fmt.Errorf("queue.insert_batch_size must be between 1 and %d", MaxInsertBatchSize)
	}
	return nil
}

func (c *Config) validateIndexing() error {
	for _, table := range append(append([]string{}, c.Indexing.ExcludeTables...), c.Indexing.WorkspaceTables...) {
		if strings.ContainsAny(table, " \t'\"`;") {
			return fmt.Errorf("indexing: invalid table name %q", table)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

// RecomputeConfigured reports whether a per-record recompute command is set.
func (c *Config) RecomputeConfigured() bool {
	return len(c.Recompute.Command) > 0
}

// FullRecomputeConfigured reports whether a full-index recompute command is set.
func (c *Config) FullRecomputeConfigured() bool {
	return len(c.Recompute.FullCommand) > 0
}
