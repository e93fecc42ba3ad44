package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"asyncref/internal/capture"
	"asyncref/internal/config"
	"asyncref/internal/drain"
	"asyncref/internal/logging"
	"asyncref/internal/queue"
	"asyncref/internal/refindex"
	"asyncref/internal/runlock"
	"asyncref/internal/tablepolicy"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	log        *slog.Logger

	capture *capture.Toggle
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		capture:    capture.New(),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) logger() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.configValue())
		if err != nil {
			logger, _ = logging.New(logging.Options{Level: "info", Format: "console"})
		}
		c.log = logger
	})
	return c.log
}

func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

func (c *commandContext) runLock(cfg *config.Config) *runlock.Lock {
	return runlock.New(runlock.Resolve(cfg.Paths.LockFile, cfg.Paths.LegacyLockFile))
}

func (c *commandContext) indexerFactory(cfg *config.Config) refindex.Factory {
	return refindex.CommandFactory(cfg)
}

func (c *commandContext) newWorker(cfg *config.Config, store *queue.Store) (*drain.Worker, error) {
	return drain.New(drain.Options{
		Store:   store,
		Lock:    c.runLock(cfg),
		Indexer: c.indexerFactory(cfg),
		Policy:  tablepolicy.FromConfig(cfg),
		Capture: c.capture,
		Logger:  c.logger(),
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
