package queue

import (
	"fmt"
	"strings"
	"time"
)

// Table is the name of the SQL table holding pending work.
const Table = "tx_asyncreferenceindexing_queue"

// Key identifies one unit of queued work. Workspace 0 is the live context.
type Key struct {
	Table     string
	UID       int64
	Workspace int64
}

// String renders the key as table:uid:workspace.
func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Table, k.UID, k.Workspace)
}

// Validate rejects keys that cannot name a record.
func (k Key) Validate() error {
	if strings.TrimSpace(k.Table) == "" {
		return fmt.Errorf("queue key: table is required")
	}
	if k.UID <= 0 {
		return fmt.Errorf("queue key %s: uid must be positive", k)
	}
	if k.Workspace < 0 {
		return fmt.Errorf("queue key %s: workspace must not be negative", k)
	}
	return nil
}

// Item is a persisted queue row.
type Item struct {
	ID       int64
	Key      Key
	QueuedAt time.Time
}

// TableCount summarizes pending rows for one table.
type TableCount struct {
	Table string
	Count int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}
