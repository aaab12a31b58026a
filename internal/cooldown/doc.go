// Package cooldown implements the vote cooldown engine.
//
// The Ledger ingests votes and owns all persistent state transitions, the
// Registry keeps the in-memory expiry timers, and the Reconciler rebuilds
// timers from the record store after restarts. Timers are process-local and
// disposable; the store is the source of truth.
package cooldown
