// Package eviction decouples "instance disappeared from a snapshot" from "instance removed
// from the registry".
//
// Reconciliation channels hand disappearing instances to a Queue as candidates. On its own
// schedule the Queue asks the configured Strategy how many candidates may leave this round,
// evicts that many (oldest first) through the owning channel, and leaves the rest queued.
// A candidate that reappears in a later snapshot is cancelled before it is evicted.
//
// The Strategy is always consulted. With the percentage-guarded strategy a single round never
// removes more than ceil(p × registry size) instances, so a source that suddenly reports an
// empty or partial snapshot cannot drain the registry in one step.
package eviction
