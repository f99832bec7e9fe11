package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestEnsureCurrentLogPointerRepoints(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "nftpin-1.log")
	second := filepath.Join(dir, "nftpin-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	current := filepath.Join(dir, "nftpin.log")

	if err := ensureCurrentLogPointer(current, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(current, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(current)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "nftpin-2.log" {
		t.Fatalf("pointer resolves to %q, want the newest run", data)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nftpind.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q", got)
	}
	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path should be ignored: %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error without config")
	}
}
