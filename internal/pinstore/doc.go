// Package pinstore persists per-token pin records in the preference store.
//
// Each record lives under a dotted path of the form
//
//	nft.<service|local>.<coinType>.<chainId>.<contractAddress>.<tokenId>
//
// and holds the pin status, the content identifiers resolved for the token,
// the last successful validation time, and the most recent error. Every write
// fans out synchronously to registered observers before it returns, so
// observers always see the post-write state.
package pinstore
