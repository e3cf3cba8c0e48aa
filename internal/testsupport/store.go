package testsupport

import (
	"context"
	"testing"

	"dumpwatch/internal/config"
	"dumpwatch/internal/dedup"
)

// MustOpenDedup opens the dedup store for cfg and registers cleanup.
func MustOpenDedup(t testing.TB, cfg *config.Config) *dedup.Store {
	t.Helper()

	store, err := dedup.Open(cfg)
	if err != nil {
		t.Fatalf("dedup.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedDedup records names as already notified.
func SeedDedup(t testing.TB, store *dedup.Store, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := store.Put(context.Background(), name); err != nil {
			t.Fatalf("seed dedup %s: %v", name, err)
		}
	}
}
