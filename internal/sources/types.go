package sources

import (
	"context"
	"errors"

	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
)

// ErrMalformedDescriptor is wrapped by every descriptor mapping failure
var ErrMalformedDescriptor = errors.New("malformed instance descriptor")

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks -source=types.go Source,Descriptor

// Source lists the current instances of a legacy registry
type Source interface {
	// Name identifies the source in logs and status
	Name() string

	// ListInstances returns every instance the source currently knows about.
	// On failure it returns an error and no descriptors.
	ListInstances(ctx context.Context) ([]Descriptor, error)
}

// Descriptor is one instance in source-native form
type Descriptor interface {
	// ID returns the identifier the descriptor carries, or "" when none can be derived
	ID() string

	// Record maps the descriptor into an InstanceRecord. Failures wrap ErrMalformedDescriptor.
	Record() (registry.InstanceRecord, error)
}

// RecordDescriptor is a Descriptor over an already mapped record
type RecordDescriptor struct {
	Instance registry.InstanceRecord
}

// ID returns the record identifier
func (d RecordDescriptor) ID() string {
	return d.Instance.ID
}

// Record validates and returns the record
func (d RecordDescriptor) Record() (registry.InstanceRecord, error) {
	if err := d.Instance.Validate(); err != nil {
		return registry.InstanceRecord{}, malformed(d.Instance.ID, err)
	}
	return d.Instance, nil
}

// Descriptors wraps records as descriptors
func Descriptors(records ...registry.InstanceRecord) []Descriptor {
	out := make([]Descriptor, len(records))
	for i, r := range records {
		out[i] = RecordDescriptor{Instance: r}
	}
	return out
}

// MalformedError describes why a descriptor could not be mapped
type MalformedError struct {
	ID  string
	Err error
}

func (e *MalformedError) Error() string {
	if e.ID == "" {
		return ErrMalformedDescriptor.Error() + ": " + e.Err.Error()
	}
	return ErrMalformedDescriptor.Error() + " " + e.ID + ": " + e.Err.Error()
}

// Unwrap returns both the cause and ErrMalformedDescriptor
func (e *MalformedError) Unwrap() []error {
	return []error{ErrMalformedDescriptor, e.Err}
}

func malformed(id string, err error) error {
	return &MalformedError{ID: id, Err: err}
}
