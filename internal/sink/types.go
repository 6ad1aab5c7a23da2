package sink

import (
	"context"
	"errors"

	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
)

// ErrNotFound is returned by Reader.Get when no record is stored under the identifier
var ErrNotFound = errors.New("instance not found")

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks -source=types.go Sink,Reader

// Sink is the write side of the local registry
type Sink interface {
	// Register stores rec, overwriting any record with the same identifier
	Register(ctx context.Context, rec registry.InstanceRecord) error

	// Update merges the fields of rec named in changes into the stored record
	Update(ctx context.Context, rec registry.InstanceRecord, changes registry.ChangeSet) error

	// Unregister removes the record with rec's identifier if present
	Unregister(ctx context.Context, rec registry.InstanceRecord) error
}

// Reader is the read side of the local registry
type Reader interface {
	// Get returns the record stored under id or ErrNotFound
	Get(ctx context.Context, id string) (registry.InstanceRecord, error)

	// List returns all records ordered by identifier
	List(ctx context.Context) ([]registry.InstanceRecord, error)

	// Count returns the number of stored records
	Count(ctx context.Context) (int, error)
}

// ReadWriter is a Sink that can also be read
type ReadWriter interface {
	Sink
	Reader
}

// AsReader returns s as a Reader when it supports reads
func AsReader(s Sink) (Reader, bool) {
	r, ok := s.(Reader)
	return r, ok
}
