package sync

import (
	"context"
	"fmt"

	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
	"github.com/stacklok/toolhive-registry-bridge/internal/sink"
)

// OperationKind is the kind of a reconciliation operation
type OperationKind string

const (
	// OperationRegister adds a new instance
	OperationRegister OperationKind = "register"
	// OperationUpdate changes fields of a known instance
	OperationUpdate OperationKind = "update"
	// OperationUnregister removes an instance
	OperationUnregister OperationKind = "unregister"
)

// Operation is one change to apply to the registry sink
type Operation struct {
	Kind   OperationKind
	Record registry.InstanceRecord
	// Changes is set for updates only
	Changes registry.ChangeSet
}

// Apply executes the operation against s
func (o Operation) Apply(ctx context.Context, s sink.Sink) error {
	switch o.Kind {
	case OperationRegister:
		return s.Register(ctx, o.Record)
	case OperationUpdate:
		return s.Update(ctx, o.Record, o.Changes)
	case OperationUnregister:
		return s.Unregister(ctx, o.Record)
	default:
		return fmt.Errorf("unknown operation kind %q", o.Kind)
	}
}

func (o Operation) String() string {
	if o.Kind == OperationUpdate {
		return fmt.Sprintf("%s(%s, %s)", o.Kind, o.Record.ID, o.Changes)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Record.ID)
}
