package registry

import (
	"slices"
)

// Snapshot is an immutable view of all instances reported by one poll, keyed by identifier.
// A nil *Snapshot behaves as an empty snapshot.
type Snapshot struct {
	records map[string]InstanceRecord
	ids     []string
}

// NewSnapshot builds a snapshot from records. When an identifier repeats, the first
// record wins and later ones are ignored.
func NewSnapshot(records ...InstanceRecord) *Snapshot {
	b := NewSnapshotBuilder(len(records))
	for _, r := range records {
		b.Add(r)
	}
	return b.Build()
}

// Len returns the number of instances in the snapshot
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Get returns the record for id
func (s *Snapshot) Get(id string) (InstanceRecord, bool) {
	if s == nil {
		return InstanceRecord{}, false
	}
	r, ok := s.records[id]
	return r, ok
}

// Contains reports whether the snapshot holds id
func (s *Snapshot) Contains(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// IDs returns the identifiers in ascending order. The returned slice must not be modified.
func (s *Snapshot) IDs() []string {
	if s == nil {
		return nil
	}
	return s.ids
}

// Records returns the records in identifier order
func (s *Snapshot) Records() []InstanceRecord {
	if s == nil {
		return nil
	}
	out := make([]InstanceRecord, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.records[id])
	}
	return out
}

// SnapshotBuilder accumulates records for a new Snapshot. It is not safe for concurrent use
// and must not be reused after Build.
type SnapshotBuilder struct {
	records map[string]InstanceRecord
}

// NewSnapshotBuilder creates a builder sized for n records
func NewSnapshotBuilder(n int) *SnapshotBuilder {
	return &SnapshotBuilder{records: make(map[string]InstanceRecord, n)}
}

// Add stores a copy of r. It returns false, leaving the builder unchanged, when the
// identifier is already present.
func (b *SnapshotBuilder) Add(r InstanceRecord) bool {
	if _, ok := b.records[r.ID]; ok {
		return false
	}
	b.records[r.ID] = r.Clone()
	return true
}

// Has reports whether id was already added
func (b *SnapshotBuilder) Has(id string) bool {
	_, ok := b.records[id]
	return ok
}

// Build freezes the accumulated records into a Snapshot
func (b *SnapshotBuilder) Build() *Snapshot {
	ids := make([]string, 0, len(b.records))
	for id := range b.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	s := &Snapshot{records: b.records, ids: ids}
	b.records = nil
	return s
}
