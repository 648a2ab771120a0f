package testsupport

import (
	"testing"

	"proctor/internal/config"
	"proctor/internal/violationlog"
)

// MustOpenStore opens a violationlog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *violationlog.Store {
	t.Helper()

	store, err := violationlog.Open(cfg)
	if err != nil {
		t.Fatalf("violationlog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
