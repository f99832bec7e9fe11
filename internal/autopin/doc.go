// Package autopin keeps the user's NFT collection pinned.
//
// The Scheduler watches token add and remove events, keeps a de-duplicated
// FIFO of intents (add, delete, validate), and hands them to the pinning
// reconciler one at a time. Failed intents are retried after a delay that
// grows with the attempt count. Every piece of scheduler state is owned by
// the goroutine running Scheduler.Run; public methods post closures to it.
//
// On start, and whenever auto-pin is switched on, the scheduler compares the
// live inventory against the persisted pin records: new tokens are added,
// stale pins are validated, retryable failures are re-added, and records for
// tokens the user no longer holds are deleted.
package autopin
