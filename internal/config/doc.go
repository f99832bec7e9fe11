// Package config loads, normalizes, and validates nftpin configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// NFTPIN_IPFS_API_URL and NFTPIN_RPC_URL. The Config type centralizes every
// knob the daemon and CLI need so the preference store, Kubo endpoint, and
// chain RPC endpoints are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
