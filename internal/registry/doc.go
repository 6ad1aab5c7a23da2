// Package registry contains the instance data model shared by the bridge:
// instance records, point-in-time snapshots and field-level change sets.
//
// # Core Types
//
//   - InstanceRecord: one service instance as reported by a legacy source
//   - Snapshot: an immutable identifier-keyed set of records from one poll
//   - ChangeSet: the names of the fields that differ between two versions
//     of the same record
//
// # Equality
//
// Compare is the single source of truth for record equality. Scalar fields
// are compared by value. Metadata is treated as one composite field and two
// maps are equal when they have the same keys with the same values; a nil
// map equals an empty one. The data-center descriptor is equal when both the
// name and the metadata map are equal.
//
// # Test Utilities
//
// NewTestInstance builds records for tests using the options pattern:
//
//	rec := registry.NewTestInstance("i-1",
//	    registry.WithApp("billing"),
//	    registry.WithStatus(registry.StatusUp),
//	    registry.WithMetadata("zone", "a"),
//	)
package registry
