package testsupport

import (
	"context"
	"testing"

	"asyncref/internal/config"
	"asyncref/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedQueue inserts keys directly into the store, bypassing any buffer.
func SeedQueue(t testing.TB, store *queue.Store, keys ...queue.Key) {
	t.Helper()

	if _, err := store.InsertMissing(context.Background(), keys, 0); err != nil {
		t.Fatalf("seed queue: %v", err)
	}
}

// QueuedKeys returns every key in the store in insertion order.
func QueuedKeys(t testing.TB, store *queue.Store) []queue.Key {
	t.Helper()

	items, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	keys := make([]queue.Key, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	return keys
}
