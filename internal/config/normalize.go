package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeIPFS()
	c.normalizeMetadata()
	c.normalizeAutoPin()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.InventoryFile) == "" {
		c.Paths.InventoryFile = defaultInventoryFile
	}
	if c.Paths.InventoryFile, err = expandPath(c.Paths.InventoryFile); err != nil {
		return fmt.Errorf("paths.inventory_file: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.DataDir, defaultSocketFileName)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	var err error
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if strings.TrimSpace(c.Store.SQLiteFile) == "" {
		c.Store.SQLiteFile = filepath.Join(c.Paths.DataDir, defaultSQLiteFileName)
	}
	if c.Store.SQLiteFile, err = expandPath(c.Store.SQLiteFile); err != nil {
		return fmt.Errorf("store.sqlite_file: %w", err)
	}
	if strings.TrimSpace(c.Store.PebbleDir) == "" {
		c.Store.PebbleDir = filepath.Join(c.Paths.DataDir, defaultPebbleDirName)
	}
	if c.Store.PebbleDir, err = expandPath(c.Store.PebbleDir); err != nil {
		return fmt.Errorf("store.pebble_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeIPFS() {
	c.IPFS.APIURL = strings.TrimSpace(c.IPFS.APIURL)
	if value, ok := os.LookupEnv("NFTPIN_IPFS_API_URL"); ok && strings.TrimSpace(value) != "" {
		c.IPFS.APIURL = strings.TrimSpace(value)
	}
	if c.IPFS.APIURL == "" {
		c.IPFS.APIURL = defaultIPFSAPIURL
	}
	c.IPFS.APIURL = strings.TrimRight(c.IPFS.APIURL, "/")
	c.IPFS.GatewayURL = strings.TrimRight(strings.TrimSpace(c.IPFS.GatewayURL), "/")
	if c.IPFS.GatewayURL == "" {
		c.IPFS.GatewayURL = defaultIPFSGatewayURL
	}
	if c.IPFS.RequestTimeout <= 0 {
		c.IPFS.RequestTimeout = defaultIPFSRequestTimeout
	}
}

func (c *Config) normalizeMetadata() {
	urls := make(map[string]string, len(c.Metadata.RPCURLs)+1)
	for chain, endpoint := range c.Metadata.RPCURLs {
		chain = strings.ToLower(strings.TrimSpace(chain))
		endpoint = strings.TrimSpace(endpoint)
		if chain == "" || endpoint == "" {
			continue
		}
		urls[chain] = endpoint
	}
	if _, ok := urls[DefaultChainID]; !ok {
		if value, ok := os.LookupEnv("NFTPIN_RPC_URL"); ok && strings.TrimSpace(value) != "" {
			urls[DefaultChainID] = strings.TrimSpace(value)
		}
	}
	c.Metadata.RPCURLs = urls
	if c.Metadata.RequestTimeout <= 0 {
		c.Metadata.RequestTimeout = defaultMetadataTimeout
	}
}

func (c *Config) normalizeAutoPin() {
	if c.AutoPin.ValidateIntervalHours == 0 {
		c.AutoPin.ValidateIntervalHours = defaultValidateIntervalHours
	}
	if c.AutoPin.RetryBaseMinutes == 0 {
		c.AutoPin.RetryBaseMinutes = defaultRetryBaseMinutes
	}
	if c.AutoPin.InventoryPollInterval == 0 {
		c.AutoPin.InventoryPollInterval = defaultInventoryPollInterval
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
