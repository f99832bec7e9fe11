// Package daemon coordinates the long-running nftpin process.
//
// It wires the preference store, the pin record store, the reconciler, the
// auto-pin scheduler, the inventory watcher, and notifications into a single
// lifecycle with flock-based locking to prevent multiple instances. Manual
// pin, unpin, and validate requests from the CLI share one serialization
// point with the scheduler so at most one backend operation runs at a time.
//
// Keep orchestration logic here: reconciliation rules live in pinning and
// autopin while the daemon focuses on startup, shutdown, and control calls.
package daemon
