package sink

import "github.com/stacklok/toolhive-registry-bridge/internal/registry"

// fieldRef returns a pointer to the member of r that holds field f, or nil for unknown fields.
// Stores that persist records field by field use it to encode and decode single fields.
func fieldRef(r *registry.InstanceRecord, f registry.Field) any {
	switch f {
	case registry.FieldApp:
		return &r.App
	case registry.FieldAppGroup:
		return &r.AppGroup
	case registry.FieldASGName:
		return &r.ASGName
	case registry.FieldStatus:
		return &r.Status
	case registry.FieldMetadata:
		return &r.Metadata
	case registry.FieldHostName:
		return &r.Location.HostName
	case registry.FieldIPAddr:
		return &r.Location.IPAddr
	case registry.FieldPort:
		return &r.Location.Port
	case registry.FieldSecurePort:
		return &r.Location.SecurePort
	case registry.FieldVIPAddress:
		return &r.Location.VIPAddress
	case registry.FieldSecureVIPAddress:
		return &r.Location.SecureVIPAddress
	case registry.FieldDataCenter:
		return &r.DataCenter
	case registry.FieldURLs:
		return &r.URLs
	default:
		return nil
	}
}
