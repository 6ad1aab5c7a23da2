package sink

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
)

// MemorySink is an in-process registry
type MemorySink struct {
	mu      sync.RWMutex
	records map[string]registry.InstanceRecord
}

var _ ReadWriter = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory registry
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string]registry.InstanceRecord)}
}

// Register stores a copy of rec
func (m *MemorySink) Register(_ context.Context, rec registry.InstanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec.Clone()
	return nil
}

// Update merges the changed fields into the stored record, inserting rec when absent
func (m *MemorySink) Update(_ context.Context, rec registry.InstanceRecord, changes registry.ChangeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.records[rec.ID]
	if !ok {
		m.records[rec.ID] = rec.Clone()
		return nil
	}
	m.records[rec.ID] = registry.Merge(current, rec, changes)
	return nil
}

// Unregister removes rec's identifier
func (m *MemorySink) Unregister(_ context.Context, rec registry.InstanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, rec.ID)
	return nil
}

// Get returns a copy of the stored record
func (m *MemorySink) Get(_ context.Context, id string) (registry.InstanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return registry.InstanceRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns copies of all records ordered by identifier
func (m *MemorySink) List(_ context.Context) ([]registry.InstanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]registry.InstanceRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b registry.InstanceRecord) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Count returns the number of records
func (m *MemorySink) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}
