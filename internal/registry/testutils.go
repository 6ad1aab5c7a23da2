package registry

import "maps"

// InstanceOption is a function that configures an InstanceRecord for testing
type InstanceOption func(*InstanceRecord)

// NewTestInstance creates an InstanceRecord for testing with default values
// and applies any provided options
func NewTestInstance(id string, opts ...InstanceOption) InstanceRecord {
	rec := InstanceRecord{
		ID:  id,
		App: "test-app",
		Location: NetworkLocation{
			HostName:   id + ".test.local",
			IPAddr:     "10.0.0.1",
			Port:       8080,
			VIPAddress: "test-app",
		},
		Status:     StatusUp,
		DataCenter: DataCenterInfo{Name: "MyOwn"},
	}

	for _, opt := range opts {
		opt(&rec)
	}

	return rec
}

// WithApp sets the application name
func WithApp(app string) InstanceOption {
	return func(r *InstanceRecord) {
		r.App = app
	}
}

// WithStatus sets the lifecycle status
func WithStatus(status Status) InstanceOption {
	return func(r *InstanceRecord) {
		r.Status = status
	}
}

// WithMetadata adds one metadata entry
func WithMetadata(key, value string) InstanceOption {
	return func(r *InstanceRecord) {
		if r.Metadata == nil {
			r.Metadata = map[string]string{}
		} else {
			r.Metadata = maps.Clone(r.Metadata)
		}
		r.Metadata[key] = value
	}
}

// WithLocation replaces the network location
func WithLocation(loc NetworkLocation) InstanceOption {
	return func(r *InstanceRecord) {
		r.Location = loc
	}
}

// WithPort sets the plain port
func WithPort(port int) InstanceOption {
	return func(r *InstanceRecord) {
		r.Location.Port = port
	}
}

// WithDataCenter sets the data-center descriptor
func WithDataCenter(name string, metadata map[string]string) InstanceOption {
	return func(r *InstanceRecord) {
		r.DataCenter = DataCenterInfo{Name: name, Metadata: maps.Clone(metadata)}
	}
}
