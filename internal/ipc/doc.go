// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Pin
// records cross the wire as flat Record values so the CLI never depends on
// the daemon's internal types.
package ipc
