package config

const (
	// StoreBackendSQLite selects the modernc.org/sqlite preference store.
	StoreBackendSQLite = "sqlite"
	// StoreBackendPebble selects the pebble preference store.
	StoreBackendPebble = "pebble"

	// DefaultChainID is the chain whose RPC endpoint may come from NFTPIN_RPC_URL.
	DefaultChainID = "0x1"
)

const (
	defaultConfigPath            = "~/.config/nftpin/config.toml"
	defaultDataDir               = "~/.local/share/nftpin"
	defaultLogDir                = "~/.local/share/nftpin/logs"
	defaultInventoryFile         = "~/.config/nftpin/tokens.json"
	defaultStoreBackend          = StoreBackendSQLite
	defaultIPFSAPIURL            = "http://127.0.0.1:5001"
	defaultIPFSGatewayURL        = "https://ipfs.io"
	defaultIPFSRequestTimeout    = 60
	defaultMetadataTimeout       = 30
	defaultValidateIntervalHours = 24
	defaultRetryBaseMinutes      = 2
	defaultInventoryPollInterval = 30
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultSQLiteFileName        = "prefs.db"
	defaultPebbleDirName         = "prefs.pebble"
	defaultSocketFileName        = "nftpin.sock"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:       defaultDataDir,
			LogDir:        defaultLogDir,
			InventoryFile: defaultInventoryFile,
		},
		Store: Store{
			Backend: defaultStoreBackend,
		},
		IPFS: IPFS{
			APIURL:         defaultIPFSAPIURL,
			GatewayURL:     defaultIPFSGatewayURL,
			RequestTimeout: defaultIPFSRequestTimeout,
		},
		Metadata: Metadata{
			RPCURLs:        map[string]string{},
			RequestTimeout: defaultMetadataTimeout,
		},
		AutoPin: AutoPin{
			ValidateIntervalHours: defaultValidateIntervalHours,
			RetryBaseMinutes:      defaultRetryBaseMinutes,
			InventoryPollInterval: defaultInventoryPollInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			PinFailures:    true,
			AutoPinChanges: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
