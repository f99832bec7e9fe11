package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"nftpin/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains data, log, and socket locations.
type Paths struct {
	DataDir       string `toml:"data_dir"`
	LogDir        string `toml:"log_dir"`
	InventoryFile string `toml:"inventory_file"`
	SocketPath    string `toml:"socket_path"`
}

// Store selects the durable preference backend.
type Store struct {
	Backend    string `toml:"backend"`
	SQLiteFile string `toml:"sqlite_file"`
	PebbleDir  string `toml:"pebble_dir"`
}

// IPFS contains configuration for the local Kubo node.
type IPFS struct {
	APIURL         string `toml:"api_url"`
	GatewayURL     string `toml:"gateway_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Metadata contains configuration for token metadata resolution.
type Metadata struct {
	// RPCURLs maps a chain id (for example "0x1") to an EVM JSON-RPC endpoint.
	RPCURLs        map[string]string `toml:"rpc_urls"`
	RequestTimeout int               `toml:"request_timeout"`
}

// AutoPin contains scheduler timing knobs.
type AutoPin struct {
	// Enabled seeds the persisted flag on first start. Once the flag has been
	// written by `nftpin autopin enable|disable` the stored value wins.
	Enabled               bool `toml:"enabled"`
	ValidateIntervalHours int  `toml:"validate_interval_hours"`
	RetryBaseMinutes      int  `toml:"retry_base_minutes"`
	InventoryPollInterval int  `toml:"inventory_poll_interval"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	PinFailures    bool   `toml:"pin_failures"`
	Pinned         bool   `toml:"pinned"`
	AutoPinChanges bool   `toml:"autopin_changes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for nftpin.
//
// Configuration sections by subsystem:
//   - Paths: data, log, inventory, and socket locations
//   - Store: preference backend (sqlite or pebble)
//   - IPFS: Kubo RPC and gateway endpoints
//   - Metadata: per-chain JSON-RPC endpoints for tokenURI lookups
//   - AutoPin: validation interval and retry backoff
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	IPFS          IPFS          `toml:"ipfs"`
	Metadata      Metadata      `toml:"metadata"`
	AutoPin       AutoPin       `toml:"autopin"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("nftpin.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories plus the parent of
// the socket and the pebble directory when that backend is selected.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, filepath.Dir(c.Paths.SocketPath)}
	if c.Store.Backend == StoreBackendPebble {
		dirs = append(dirs, c.Store.PebbleDir)
	} else {
		dirs = append(dirs, filepath.Dir(c.Store.SQLiteFile))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "nftpind.lock")
}

// PIDPath returns the file the running daemon writes its pid to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "nftpind.pid")
}

// CurrentLogPath points at the log of the most recent daemon run.
func (c *Config) CurrentLogPath() string {
	return filepath.Join(c.Paths.LogDir, "nftpin.log")
}

// ValidateInterval is the age after which a pinned token is re-validated.
func (c *Config) ValidateInterval() time.Duration {
	return time.Duration(c.AutoPin.ValidateIntervalHours) * time.Hour
}

// RetryBase is the per-attempt retry delay unit.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.AutoPin.RetryBaseMinutes) * time.Minute
}

// InventoryPollInterval is how often the inventory file is re-read.
func (c *Config) InventoryPollInterval() time.Duration {
	return time.Duration(c.AutoPin.InventoryPollInterval) * time.Second
}

// IPFSTimeout bounds a single Kubo RPC request.
func (c *Config) IPFSTimeout() time.Duration {
	return time.Duration(c.IPFS.RequestTimeout) * time.Second
}

// MetadataTimeout bounds a single JSON-RPC or metadata document request.
func (c *Config) MetadataTimeout() time.Duration {
	return time.Duration(c.Metadata.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := fileutil.WriteAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
