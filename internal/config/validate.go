package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateIPFS(); err != nil {
		return err
	}
	if err := c.validateMetadata(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreBackendSQLite:
		if strings.TrimSpace(c.Store.SQLiteFile) == "" {
			return errors.New("store.sqlite_file must be set when store.backend is sqlite")
		}
	case StoreBackendPebble:
		if strings.TrimSpace(c.Store.PebbleDir) == "" {
			return errors.New("store.pebble_dir must be set when store.backend is pebble")
		}
	default:
		return fmt.Errorf("store.backend: unsupported value %q (expected sqlite or pebble)", c.Store.Backend)
	}
	return nil
}

func (c *Config) validateIPFS() error {
	if err := validateHTTPURL("ipfs.api_url", c.IPFS.APIURL); err != nil {
		return err
	}
	if err := validateHTTPURL("ipfs.gateway_url", c.IPFS.GatewayURL); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMetadata() error {
	for chain, endpoint := range c.Metadata.RPCURLs {
		if !strings.HasPrefix(chain, "0x") {
			return fmt.Errorf("metadata.rpc_urls: chain id %q must be a 0x-prefixed hex string", chain)
		}
		if err := validateHTTPURL("metadata.rpc_urls."+chain, endpoint); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateTimings() error {
	return ensurePositiveMap(map[string]int{
		"ipfs.request_timeout":            c.IPFS.RequestTimeout,
		"metadata.request_timeout":        c.Metadata.RequestTimeout,
		"notifications.request_timeout":   c.Notifications.RequestTimeout,
		"autopin.validate_interval_hours": c.AutoPin.ValidateIntervalHours,
		"autopin.retry_base_minutes":      c.AutoPin.RetryBaseMinutes,
		"autopin.inventory_poll_interval": c.AutoPin.InventoryPollInterval,
	})
}

func validateHTTPURL(key, value string) error {
	parsed, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url, got %q", key, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", key, value)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
