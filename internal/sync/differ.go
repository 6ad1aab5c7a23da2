package sync

import "github.com/stacklok/toolhive-registry-bridge/internal/registry"

// Diff returns the operations that turn a registry reflecting older into one reflecting newer.
// Registers come first, then updates, then unregisters, each group in identifier order.
// Records present in both snapshots with no changed field produce no operation.
// A nil snapshot is treated as empty.
func Diff(older, newer *registry.Snapshot) []Operation {
	var added, updated, removed []Operation

	for _, rec := range newer.Records() {
		prev, ok := older.Get(rec.ID)
		if !ok {
			added = append(added, Operation{Kind: OperationRegister, Record: rec})
			continue
		}
		if changes := registry.Compare(prev, rec); !changes.Empty() {
			updated = append(updated, Operation{Kind: OperationUpdate, Record: rec, Changes: changes})
		}
	}

	for _, rec := range older.Records() {
		if !newer.Contains(rec.ID) {
			removed = append(removed, Operation{Kind: OperationUnregister, Record: rec})
		}
	}

	ops := make([]Operation, 0, len(added)+len(updated)+len(removed))
	ops = append(ops, added...)
	ops = append(ops, updated...)
	return append(ops, removed...)
}
