// Package refindex defines the recompute actor the queue hooks and drain
// worker call to rebuild reference-index rows.
//
// CommandIndexer is the production implementation: it shells out to a
// configured command (usually the host CMS's CLI) and decodes the JSON
// statistics it prints. Tests substitute their own Indexer.
package refindex
