package testsupport

import (
	"testing"

	"carescribe/internal/config"
	"carescribe/internal/logging"
	"carescribe/internal/recordstore"
)

// MustOpenStore opens the record store described by cfg and registers
// cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *recordstore.Store {
	t.Helper()
	store, err := recordstore.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("recordstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
