// Command nftpin runs the auto-pin daemon and controls it over its Unix
// socket.
//
// Read-only commands (status, list) fall back to opening the preference
// store directly when no daemon is listening.
package main
