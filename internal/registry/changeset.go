package registry

import (
	"maps"
	"strings"
)

// Field names a mutable field of an InstanceRecord
type Field string

// Fields tracked in change sets. Location is split per attribute, metadata and the
// data-center descriptor are single composite fields.
const (
	FieldApp              Field = "app"
	FieldAppGroup         Field = "appGroup"
	FieldASGName          Field = "asgName"
	FieldStatus           Field = "status"
	FieldMetadata         Field = "metadata"
	FieldHostName         Field = "hostName"
	FieldIPAddr           Field = "ipAddr"
	FieldPort             Field = "port"
	FieldSecurePort       Field = "securePort"
	FieldVIPAddress       Field = "vipAddress"
	FieldSecureVIPAddress Field = "secureVipAddress"
	FieldDataCenter       Field = "dataCenter"
	FieldURLs             Field = "urls"
)

// AllFields lists every tracked field in canonical order
var AllFields = []Field{
	FieldApp,
	FieldAppGroup,
	FieldASGName,
	FieldStatus,
	FieldMetadata,
	FieldHostName,
	FieldIPAddr,
	FieldPort,
	FieldSecurePort,
	FieldVIPAddress,
	FieldSecureVIPAddress,
	FieldDataCenter,
	FieldURLs,
}

// ChangeSet is the set of fields that differ between two versions of one record,
// kept in canonical field order
type ChangeSet []Field

// Empty reports whether no field changed
func (c ChangeSet) Empty() bool {
	return len(c) == 0
}

// Has reports whether the field is part of the change set
func (c ChangeSet) Has(f Field) bool {
	for _, x := range c {
		if x == f {
			return true
		}
	}
	return false
}

// Strings returns the field names as strings
func (c ChangeSet) Strings() []string {
	out := make([]string, len(c))
	for i, f := range c {
		out[i] = string(f)
	}
	return out
}

func (c ChangeSet) String() string {
	return "[" + strings.Join(c.Strings(), ",") + "]"
}

// Compare returns the fields whose values differ between older and newer.
// The identifiers are not compared; callers only compare versions of the same instance.
func Compare(older, newer InstanceRecord) ChangeSet {
	var cs ChangeSet
	add := func(changed bool, f Field) {
		if changed {
			cs = append(cs, f)
		}
	}

	add(older.App != newer.App, FieldApp)
	add(older.AppGroup != newer.AppGroup, FieldAppGroup)
	add(older.ASGName != newer.ASGName, FieldASGName)
	add(older.Status != newer.Status, FieldStatus)
	add(!metadataEqual(older.Metadata, newer.Metadata), FieldMetadata)
	add(older.Location.HostName != newer.Location.HostName, FieldHostName)
	add(older.Location.IPAddr != newer.Location.IPAddr, FieldIPAddr)
	add(older.Location.Port != newer.Location.Port, FieldPort)
	add(older.Location.SecurePort != newer.Location.SecurePort, FieldSecurePort)
	add(older.Location.VIPAddress != newer.Location.VIPAddress, FieldVIPAddress)
	add(older.Location.SecureVIPAddress != newer.Location.SecureVIPAddress, FieldSecureVIPAddress)
	add(!older.DataCenter.Equal(newer.DataCenter), FieldDataCenter)
	add(older.URLs != newer.URLs, FieldURLs)

	return cs
}

// Merge copies the fields named in changes from src onto dst and returns the result.
// Fields outside the change set keep the value from dst.
func Merge(dst, src InstanceRecord, changes ChangeSet) InstanceRecord {
	out := dst.Clone()
	out.ID = src.ID
	for _, f := range changes {
		switch f {
		case FieldApp:
			out.App = src.App
		case FieldAppGroup:
			out.AppGroup = src.AppGroup
		case FieldASGName:
			out.ASGName = src.ASGName
		case FieldStatus:
			out.Status = src.Status
		case FieldMetadata:
			out.Metadata = maps.Clone(src.Metadata)
		case FieldHostName:
			out.Location.HostName = src.Location.HostName
		case FieldIPAddr:
			out.Location.IPAddr = src.Location.IPAddr
		case FieldPort:
			out.Location.Port = src.Location.Port
		case FieldSecurePort:
			out.Location.SecurePort = src.Location.SecurePort
		case FieldVIPAddress:
			out.Location.VIPAddress = src.Location.VIPAddress
		case FieldSecureVIPAddress:
			out.Location.SecureVIPAddress = src.Location.SecureVIPAddress
		case FieldDataCenter:
			out.DataCenter = DataCenterInfo{Name: src.DataCenter.Name, Metadata: maps.Clone(src.DataCenter.Metadata)}
		case FieldURLs:
			out.URLs = src.URLs
		}
	}
	return out
}
