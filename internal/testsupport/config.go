package testsupport

import (
	"path/filepath"
	"testing"

	"nftpin/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.InventoryFile = filepath.Join(base, "tokens.json")
	cfgVal.Paths.SocketPath = filepath.Join(base, "nftpin.sock")
	cfgVal.Store.SQLiteFile = filepath.Join(base, "data", "prefs.db")
	cfgVal.Store.PebbleDir = filepath.Join(base, "data", "prefs.pebble")
	cfgVal.IPFS.APIURL = "http://127.0.0.1:5001"
	cfgVal.Metadata.RPCURLs = map[string]string{config.DefaultChainID: "http://127.0.0.1:8545"}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStoreBackend selects the preference backend on the test config.
func WithStoreBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Backend = backend
	}
}

// WithIPFSAPI points the Kubo client at url, typically an httptest server.
func WithIPFSAPI(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.IPFS.APIURL = url
		b.cfg.IPFS.GatewayURL = url
	}
}

// WithRPCURL sets the JSON-RPC endpoint for chainID.
func WithRPCURL(chainID, url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metadata.RPCURLs[chainID] = url
	}
}

// WithAutoPin seeds the auto-pin default.
func WithAutoPin(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.AutoPin.Enabled = enabled
	}
}

// WithNtfyTopic enables notifications against the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
