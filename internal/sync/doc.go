// Package sync reconciles snapshots of a legacy registry into the local registry.
//
// # Core Types
//
//   - Operation: one Register, Update or Unregister to apply to a sink
//   - Diff: pure function computing the ordered operations between two snapshots
//   - Channel: drives one source through the Idle → Connected → Active ⇄ Degraded → Closed
//     lifecycle, pulling, diffing and applying on a fixed-rate tick
//   - Events: fire-and-forget metrics contract emitted by channels
//   - Error: structured error carrying one of the kinds SourceUnavailable,
//     SinkOperationFailed or MalformedRecord
//
// # Tick Protocol
//
// Each tick pulls the source, maps descriptors to records, diffs the result against the
// retained snapshot and applies the operations in order (added, updated, removed; each group
// by identifier). Operation failures are independent of each other. The retained snapshot is
// replaced whenever the pull succeeded, even if some operations failed, so one bad instance
// cannot make the channel re-apply the same pass forever.
//
// A failed tick moves the channel to Degraded. The next tick is still scheduled one refresh
// interval after the start of the failed one; there is no backoff. Ticks of one channel never
// overlap: when a tick overruns its interval the next one starts as soon as it returns.
//
// # Eviction
//
// With an eviction queue attached, removals are not applied directly. The channel marks the
// instance as a candidate and the queue later calls Channel.Evict once its strategy allows it.
// Any Register or Update of the same identifier cancels the pending candidate.
//
// The sync/coordinator subpackage composes channels and the eviction queue into one
// lifecycle.
package sync
