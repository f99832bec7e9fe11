// Package prefs provides the durable, hierarchical key-value store that backs
// pin records, scheduler flags, and Kubo bookkeeping.
//
// Keys are dotted paths such as "nft.local.60.0x1.0xabc.0x7" or
// "autopin.enabled". Values are opaque bytes (JSON for records). Three
// implementations share one contract: SQLiteStore (default, modernc.org/sqlite
// in WAL mode), PebbleStore (LSM directory), and MemoryStore for tests and dry
// runs. List and DeletePrefix operate on plain string prefixes and always
// return entries ordered by path.
package prefs
