// Package logs reads and follows the daemon's log file for the CLI.
//
// Only complete lines are returned; a line still being written stays unread
// until its newline lands. Follow notices when the current-log pointer is
// swapped to a new run's file and starts over at the top of it.
package logs
