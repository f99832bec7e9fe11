package ipc_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"nftpin/internal/daemon"
	"nftpin/internal/ipc"
	"nftpin/internal/logging"
	"nftpin/internal/pinstore"
	"nftpin/internal/testsupport"
)

type memoryBackend struct {
	mu   sync.Mutex
	pins map[string][]string
}

func (b *memoryBackend) AddPins(_ context.Context, key string, cids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pins[key] = cids
	return nil
}

func (b *memoryBackend) RemovePins(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pins, key)
	return nil
}

func (b *memoryBackend) ValidatePins(_ context.Context, key string, _ []string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pins[key]
	return ok, nil
}

type staticMeta struct{}

func (staticMeta) GetMetadata(context.Context, string, string, string) (string, []byte, error) {
	return "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", []byte(`{"name":"demo"}`), nil
}

type emptyInventory struct{}

func (emptyInventory) GetAllUserTokens(context.Context) ([]pinstore.TokenKey, error) {
	return nil, nil
}

func startServer(t *testing.T) *ipc.Client {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAutoPin(false))
	store := testsupport.MustOpenPrefs(t, cfg)
	logger := logging.NewNop()
	d, err := daemon.New(cfg, store, logger,
		daemon.WithPinBackend(&memoryBackend{pins: map[string][]string{}}),
		daemon.WithMetadataFetcher(staticMeta{}),
		daemon.WithInventory(emptyInventory{}),
		daemon.WithoutPreflight(),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIPCServerClient(t *testing.T) {
	client := startServer(t)
	token := ipc.Token{Coin: 60, ChainID: "0x1", Contract: "0xabc", TokenID: "7"}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.AutoPinEnabled {
		t.Fatalf("unexpected status: %#v", status)
	}

	pinResp, err := client.Pin(token)
	if err != nil {
		t.Fatalf("Pin RPC failed: %v", err)
	}
	if !pinResp.Success || pinResp.Record.Status != string(pinstore.StatusPinned) {
		t.Fatalf("expected pinned record, got %#v", pinResp)
	}
	if pinResp.Record.Path != "nft.local.60.0x1.0xabc.7" || len(pinResp.Record.CIDs) == 0 {
		t.Fatalf("unexpected record %#v", pinResp.Record)
	}

	listResp, err := client.List(nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listResp.Records) != 1 || listResp.Records[0].Token != token {
		t.Fatalf("expected one record for %v, got %#v", token, listResp.Records)
	}
	failedResp, err := client.List([]string{"pinning_failed"})
	if err != nil {
		t.Fatalf("List filtered failed: %v", err)
	}
	if len(failedResp.Records) != 0 {
		t.Fatalf("expected no failed records, got %d", len(failedResp.Records))
	}
	if _, err := client.List([]string{"bogus"}); err == nil {
		t.Fatal("expected unknown status filter to fail")
	}

	validateResp, err := client.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !validateResp.Success || validateResp.Outcome != "passed" {
		t.Fatalf("expected passing validation, got %#v", validateResp)
	}
	if validateResp.Record.LastValidated == "" {
		t.Fatal("expected last validated timestamp")
	}

	unpinResp, err := client.Unpin(token)
	if err != nil {
		t.Fatalf("Unpin failed: %v", err)
	}
	if !unpinResp.Success || unpinResp.Record.Status != string(pinstore.StatusNotPinned) {
		t.Fatalf("expected record removed, got %#v", unpinResp)
	}

	autoResp, err := client.SetAutoPin(true)
	if err != nil {
		t.Fatalf("SetAutoPin failed: %v", err)
	}
	if !autoResp.Enabled {
		t.Fatal("expected auto-pin enabled")
	}
	current, err := client.AutoPinStatus()
	if err != nil || !current.Enabled {
		t.Fatalf("AutoPinStatus = %#v, %v", current, err)
	}
	if err := client.Restore(); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp.Sent || notifyResp.Message == "" {
		t.Fatalf("expected unsent notification with message, got %#v", notifyResp)
	}

	resetResp, err := client.Reset()
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if resetResp.Message == "" {
		t.Fatal("expected reset message")
	}
	after, err := client.AutoPinStatus()
	if err != nil || after.Enabled {
		t.Fatalf("expected auto-pin disabled after reset, got %#v, %v", after, err)
	}
}

func TestParseStatusAcceptsStoredSpelling(t *testing.T) {
	for _, value := range []string{"pinning_pending", "pinning_pendig", " Pinned "} {
		if _, err := ipc.ParseStatus(value); err != nil {
			t.Fatalf("ParseStatus(%q): %v", value, err)
		}
	}
	if _, err := ipc.ParseStatus("done"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
