package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"nftpin/internal/config"
	"nftpin/internal/prefs"
)

// MustOpenPrefs opens the configured preference store for tests and registers cleanup.
func MustOpenPrefs(t testing.TB, cfg *config.Config) prefs.Store {
	t.Helper()

	store, err := prefs.Open(cfg)
	if err != nil {
		t.Fatalf("prefs.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// WriteInventory writes raw JSON to the configured inventory file.
func WriteInventory(t testing.TB, cfg *config.Config, body string) {
	t.Helper()

	path := cfg.Paths.InventoryFile
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write inventory %s: %v", path, err)
	}
}
