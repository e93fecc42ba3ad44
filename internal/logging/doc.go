// Package logging assembles structured slog loggers and formatting helpers used
// across asyncref.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so the drain worker can tag log
// lines with the run identifier and the queue item being processed. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
//
// Logs go to stderr (and optionally a file); stdout is reserved for the
// human-readable command results.
package logging
