package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"nftpin/internal/config"
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

type cliTestEnv struct {
	cfg        *config.Config
	socketPath string
	configPath string
}

// newCLIConfig writes a config file for a fresh temp tree and returns both.
func newCLIConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAutoPin(false))
	configPath := testsupport.BaseDir(cfg) + "/config.toml"
	writeTestConfig(t, configPath, cfg)
	return cfg, configPath
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg, configPath := newCLIConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
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
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon Start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		cancel()
		d.Stop()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})

	return &cliTestEnv{cfg: cfg, socketPath: cfg.Paths.SocketPath, configPath: configPath}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
