package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteDRMConnector creates a fake /sys/class/drm connector directory with the
// given status ("connected", "disconnected") under root.
func WriteDRMConnector(t testing.TB, root, name, status string) {
	t.Helper()

	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "status"), []byte(status+"\n"), 0o644); err != nil {
		t.Fatalf("write status for %s: %v", name, err)
	}
}
