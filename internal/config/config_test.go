package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"nftpin/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("NFTPIN_IPFS_API_URL", "")
	t.Setenv("NFTPIN_RPC_URL", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "nftpin")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.SocketPath != filepath.Join(wantData, "nftpin.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.Paths.SocketPath)
	}
	if cfg.Store.Backend != config.StoreBackendSQLite {
		t.Fatalf("expected sqlite backend by default, got %q", cfg.Store.Backend)
	}
	if cfg.Store.SQLiteFile != filepath.Join(wantData, "prefs.db") {
		t.Fatalf("unexpected sqlite file: %q", cfg.Store.SQLiteFile)
	}
	if cfg.IPFS.APIURL != "http://127.0.0.1:5001" {
		t.Fatalf("unexpected ipfs api url: %q", cfg.IPFS.APIURL)
	}
	if cfg.AutoPin.Enabled {
		t.Fatal("expected auto-pin disabled by default")
	}
	if cfg.ValidateInterval() != 24*time.Hour {
		t.Fatalf("unexpected validate interval: %s", cfg.ValidateInterval())
	}
	if cfg.RetryBase() != 2*time.Minute {
		t.Fatalf("unexpected retry base: %s", cfg.RetryBase())
	}
	if len(cfg.Metadata.RPCURLs) != 0 {
		t.Fatalf("expected no rpc urls, got %v", cfg.Metadata.RPCURLs)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "nftpin.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Store struct {
			Backend string `toml:"backend"`
		} `toml:"store"`
		Metadata struct {
			RPCURLs map[string]string `toml:"rpc_urls"`
		} `toml:"metadata"`
		AutoPin struct {
			Enabled          bool `toml:"enabled"`
			RetryBaseMinutes int  `toml:"retry_base_minutes"`
		} `toml:"autopin"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Store.Backend = "Pebble"
	custom.Metadata.RPCURLs = map[string]string{"0x89": " https://polygon.example/rpc "}
	custom.AutoPin.Enabled = true
	custom.AutoPin.RetryBaseMinutes = 5
	custom.Logging.Format = "JSON"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Store.Backend != config.StoreBackendPebble {
		t.Fatalf("expected pebble backend, got %q", cfg.Store.Backend)
	}
	if cfg.Store.PebbleDir != filepath.Join(tempDir, "data", "prefs.pebble") {
		t.Fatalf("unexpected pebble dir: %q", cfg.Store.PebbleDir)
	}
	if got := cfg.Metadata.RPCURLs["0x89"]; got != "https://polygon.example/rpc" {
		t.Fatalf("expected trimmed polygon rpc url, got %q", got)
	}
	if !cfg.AutoPin.Enabled {
		t.Fatal("expected auto-pin enabled from file")
	}
	if cfg.RetryBase() != 5*time.Minute {
		t.Fatalf("expected retry base 5m, got %s", cfg.RetryBase())
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestEnvFallbacksFillMissingEndpoints(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NFTPIN_IPFS_API_URL", "http://kubo.internal:5001/")
	t.Setenv("NFTPIN_RPC_URL", "https://mainnet.example/rpc")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.IPFS.APIURL != "http://kubo.internal:5001" {
		t.Errorf("expected ipfs api url from env, got %q", cfg.IPFS.APIURL)
	}
	if got := cfg.Metadata.RPCURLs[config.DefaultChainID]; got != "https://mainnet.example/rpc" {
		t.Errorf("expected mainnet rpc url from env, got %q", got)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[autopin]") {
		t.Fatalf("sample config missing autopin section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "nftpin") {
		t.Fatalf("expected data dir to contain nftpin, got %q", cfg.Paths.DataDir)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Fatalf("expected sqlite backend in sample, got %q", cfg.Store.Backend)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "unknown backend", mutate: func(c *config.Config) { c.Store.Backend = "bolt" }},
		{name: "non-http ipfs url", mutate: func(c *config.Config) { c.IPFS.APIURL = "unix:///run/ipfs.sock" }},
		{name: "gateway without host", mutate: func(c *config.Config) { c.IPFS.GatewayURL = "https://" }},
		{name: "chain id without prefix", mutate: func(c *config.Config) { c.Metadata.RPCURLs = map[string]string{"1": "https://rpc.example"} }},
		{name: "bad rpc url", mutate: func(c *config.Config) { c.Metadata.RPCURLs = map[string]string{"0x1": "ftp://rpc.example"} }},
		{name: "zero retry base", mutate: func(c *config.Config) { c.AutoPin.RetryBaseMinutes = 0 }},
		{name: "negative validate interval", mutate: func(c *config.Config) { c.AutoPin.ValidateIntervalHours = -1 }},
		{name: "zero ipfs timeout", mutate: func(c *config.Config) { c.IPFS.RequestTimeout = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Store.SQLiteFile = filepath.Join(t.TempDir(), "prefs.db")
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	cfg.Store.SQLiteFile = filepath.Join(t.TempDir(), "prefs.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestEnsureDirectoriesCreatesLayout(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SocketPath = filepath.Join(base, "run", "nftpin.sock")
	cfg.Store.SQLiteFile = filepath.Join(base, "db", "prefs.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{"data", "logs", "run", "db"} {
		if info, err := os.Stat(filepath.Join(base, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist: %v", dir, err)
		}
	}
}
