// Package daemonctl launches, stops, and inspects the nftpin daemon process
// from the CLI side.
//
// Liveness is judged by dialing the IPC socket. Stopping sends SIGTERM to the
// pid the daemon reports and falls back to SIGKILL via the pid file after a
// grace period.
package daemonctl
