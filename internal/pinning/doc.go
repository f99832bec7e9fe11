// Package pinning drives one token through its pin lifecycle.
//
// A Reconciler resolves token metadata, extracts IPFS content identifiers,
// hands them to a PinBackend, and records every status transition in the
// pinstore. It performs exactly one operation per call and never retries;
// retry policy belongs to the autopin scheduler.
package pinning
