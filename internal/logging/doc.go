// Package logging assembles structured slog loggers and formatting helpers used
// across nftpin.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so reconciler and scheduler code
// can tag log lines with token paths, operations, and correlation IDs. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail, plus log retention for the daemon's per-run files.
package logging
