// Package services defines shared utilities consumed by the pin reconciler and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp token paths, reconciliation operations, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so adapters (Kubo, chain
//     RPC, gateways) report failures that callers can classify as retryable
//     or permanent.
//
// Subpackages hold the concrete adapters: ipfs talks to a local Kubo node and
// nftmeta resolves token metadata documents.
package services
