// Package queue persists pending reference index work in SQLite.
//
// Each row names one entity (table, uid) in one workspace whose reference
// index rows are stale. The (table, uid, workspace) triple is unique: the
// store never holds two rows for the same key, and inserts of an existing key
// are silently ignored so concurrent flushers cannot create duplicates.
//
// The drain worker is the only component that deletes rows; everything else
// inserts. Both rely on SQLite's statement atomicity rather than application
// level locking, and individual statements retry briefly on SQLITE_BUSY.
//
// The database is treated as transient storage for pending work. Schema
// changes bump the version in schema.go; users clear the database to adopt
// the new schema.
package queue
