package config

const (
	defaultDataDir         = "~/.local/share/asyncref"
	defaultDatabaseName    = "queue.db"
	defaultLockFile        = "var/reference-indexing-running.lock"
	defaultLegacyLockFile  = "reference-indexing-running.lock"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultInsertBatchSize = 4096

	// MaxInsertBatchSize bounds rows per INSERT statement. Each row binds three
	// parameters, which keeps statements well inside SQLite's variable limit.
	MaxInsertBatchSize = 4096
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:        defaultDataDir,
			LockFile:       defaultLockFile,
			LegacyLockFile: defaultLegacyLockFile,
		},
		Queue: Queue{
			InsertBatchSize: defaultInsertBatchSize,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
