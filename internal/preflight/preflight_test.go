package preflight

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nftpin/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckIPFS_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/version" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"Version":"0.29.0","Commit":""}`)
	}))
	defer srv.Close()

	result := CheckIPFS(context.Background(), srv.URL)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "0.29.0") {
		t.Fatalf("expected version in detail, got %q", result.Detail)
	}
}

func TestCheckIPFS_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	result := CheckIPFS(context.Background(), url)
	if result.Passed {
		t.Fatal("expected failure for closed server")
	}
}

func TestCheckRPC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":"0x89"}`)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithRPCURL("0x1", srv.URL), testsupport.WithRPCURL("0x89", srv.URL))
	results := CheckRPC(context.Background(), cfg)
	if len(results) != 2 {
		t.Fatalf("expected one result per chain, got %d", len(results))
	}
	if results[0].Passed {
		t.Fatalf("expected chain mismatch for 0x1, got %+v", results[0])
	}
	if !results[1].Passed {
		t.Fatalf("expected 0x89 to pass, got %+v", results[1])
	}
}

func TestCheckInventoryFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if CheckInventoryFile(cfg.Paths.InventoryFile).Passed {
		t.Fatal("expected failure for missing inventory")
	}
	testsupport.WriteInventory(t, cfg, `[{"coin":60,"chain_id":"0x1","contract":"0xabc","token_id":"1","is_nft":true}]`)
	result := CheckInventoryFile(cfg.Paths.InventoryFile)
	if !result.Passed || !strings.Contains(result.Detail, "1 tokens") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestFailed(t *testing.T) {
	results := []Result{{Name: "a", Passed: true}, {Name: "b"}}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "b" {
		t.Fatalf("unexpected failed %+v", failed)
	}
}
