package testsupport

import (
	"testing"

	"docflow/internal/config"
	"docflow/internal/persist"
)

// MustOpenStore opens a persist.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *persist.Store {
	t.Helper()

	store, err := persist.Open(cfg)
	if err != nil {
		t.Fatalf("persist.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
