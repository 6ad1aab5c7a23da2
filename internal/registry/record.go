package registry

import (
	"errors"
	"maps"
	"strings"
)

// Status is the lifecycle status of an instance
type Status string

const (
	// StatusStarting marks an instance that is booting
	StatusStarting Status = "STARTING"
	// StatusUp marks an instance that accepts traffic
	StatusUp Status = "UP"
	// StatusDown marks an instance that failed its health checks
	StatusDown Status = "DOWN"
	// StatusOutOfService marks an instance taken out of rotation on purpose
	StatusOutOfService Status = "OUT_OF_SERVICE"
	// StatusUnknown is used when the source reports no recognizable status
	StatusUnknown Status = "UNKNOWN"
)

// ParseStatus maps a source status string to a Status. Unrecognized values map to StatusUnknown.
func ParseStatus(s string) Status {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusStarting:
		return StatusStarting
	case StatusUp:
		return StatusUp
	case StatusDown:
		return StatusDown
	case StatusOutOfService:
		return StatusOutOfService
	default:
		return StatusUnknown
	}
}

// ErrMissingID is returned by Validate when a record has no identifier
var ErrMissingID = errors.New("instance record has no identifier")

// ErrMissingApp is returned by Validate when a record has no application name
var ErrMissingApp = errors.New("instance record has no application name")

// NetworkLocation describes where an instance can be reached
type NetworkLocation struct {
	HostName         string `json:"hostName,omitempty" yaml:"hostName,omitempty"`
	IPAddr           string `json:"ipAddr,omitempty" yaml:"ipAddr,omitempty"`
	Port             int    `json:"port,omitempty" yaml:"port,omitempty"`
	SecurePort       int    `json:"securePort,omitempty" yaml:"securePort,omitempty"`
	VIPAddress       string `json:"vipAddress,omitempty" yaml:"vipAddress,omitempty"`
	SecureVIPAddress string `json:"secureVipAddress,omitempty" yaml:"secureVipAddress,omitempty"`
}

// DataCenterInfo describes the data center an instance runs in
type DataCenterInfo struct {
	Name     string            `json:"name,omitempty" yaml:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Equal reports whether both descriptors have the same name and metadata
func (d DataCenterInfo) Equal(other DataCenterInfo) bool {
	return d.Name == other.Name && metadataEqual(d.Metadata, other.Metadata)
}

// URLs groups the well-known endpoints an instance publishes
type URLs struct {
	HomePage    string `json:"homePage,omitempty" yaml:"homePage,omitempty"`
	StatusPage  string `json:"statusPage,omitempty" yaml:"statusPage,omitempty"`
	HealthCheck string `json:"healthCheck,omitempty" yaml:"healthCheck,omitempty"`
}

// InstanceRecord is one service instance. Identity is ID; every other field is mutable
// between versions. Records are values and must not be modified once they are placed
// in a Snapshot or handed to a sink; use Clone to derive a new version.
type InstanceRecord struct {
	ID         string            `json:"id" yaml:"id"`
	App        string            `json:"app" yaml:"app"`
	AppGroup   string            `json:"appGroup,omitempty" yaml:"appGroup,omitempty"`
	ASGName    string            `json:"asgName,omitempty" yaml:"asgName,omitempty"`
	Location   NetworkLocation   `json:"location" yaml:"location"`
	Status     Status            `json:"status" yaml:"status"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	DataCenter DataCenterInfo    `json:"dataCenter" yaml:"dataCenter"`
	URLs       URLs              `json:"urls" yaml:"urls"`
}

// Validate checks the fields required to place a record in a snapshot
func (r InstanceRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(r.App) == "" {
		return ErrMissingApp
	}
	return nil
}

// Clone returns a deep copy of the record
func (r InstanceRecord) Clone() InstanceRecord {
	out := r
	out.Metadata = maps.Clone(r.Metadata)
	out.DataCenter.Metadata = maps.Clone(r.DataCenter.Metadata)
	return out
}

// Equal reports whether two records have the same identifier and no differing fields
func (r InstanceRecord) Equal(other InstanceRecord) bool {
	return r.ID == other.ID && Compare(r, other).Empty()
}

func metadataEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || av != bv {
			return false
		}
	}
	return true
}
