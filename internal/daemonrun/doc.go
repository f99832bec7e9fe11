// Package daemonrun hosts the nftpin daemon process: log setup, pid file,
// the pinning daemon itself and the IPC socket, until a shutdown signal.
package daemonrun
