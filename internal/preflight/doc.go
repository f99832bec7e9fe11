// Package preflight provides readiness checks for the services and paths
// nftpin depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll on start and logs every failure. Failures do not
//     stop the daemon; the scheduler retries pin work until the services return.
//   - The CLI "nftpin status" command shows the same results.
package preflight
