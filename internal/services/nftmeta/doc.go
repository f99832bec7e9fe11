// Package nftmeta resolves an ERC-721 token's metadata document.
//
// The token URI comes from an eth_call of tokenURI(uint256) against the JSON-RPC
// endpoint configured for the token's chain. ipfs:// URIs are then fetched
// through the configured HTTP gateway, http(s) URIs directly, and data: URIs
// are decoded in place.
package nftmeta
