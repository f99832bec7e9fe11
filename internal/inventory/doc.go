// Package inventory supplies the set of tokens the user holds.
//
// FileInventory reads a JSON array of tokens maintained by whatever tracks the
// wallet (an indexer export, a script, or `nftpin` itself in tests). Watcher
// polls the file and reports tokens that appear or disappear between reads so
// the daemon can feed them to the auto-pin scheduler.
package inventory
