package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	t.Parallel()

	base := NewTestInstance("i-1",
		WithMetadata("zone", "a"),
		WithDataCenter("Amazon", map[string]string{"az": "us-east-1a"}),
	)

	tests := []struct {
		name     string
		mutate   func(r *InstanceRecord)
		expected ChangeSet
	}{
		{
			name:     "identical",
			mutate:   func(*InstanceRecord) {},
			expected: nil,
		},
		{
			name:     "status",
			mutate:   func(r *InstanceRecord) { r.Status = StatusDown },
			expected: ChangeSet{FieldStatus},
		},
		{
			name:     "metadata value",
			mutate:   func(r *InstanceRecord) { r.Metadata = map[string]string{"zone": "b"} },
			expected: ChangeSet{FieldMetadata},
		},
		{
			name:     "metadata key added",
			mutate:   func(r *InstanceRecord) { r.Metadata = map[string]string{"zone": "a", "rack": "1"} },
			expected: ChangeSet{FieldMetadata},
		},
		{
			name: "port and host",
			mutate: func(r *InstanceRecord) {
				r.Location.Port = 9090
				r.Location.HostName = "other"
			},
			expected: ChangeSet{FieldHostName, FieldPort},
		},
		{
			name:     "data center metadata",
			mutate:   func(r *InstanceRecord) { r.DataCenter.Metadata = map[string]string{"az": "us-east-1b"} },
			expected: ChangeSet{FieldDataCenter},
		},
		{
			name:     "data center name",
			mutate:   func(r *InstanceRecord) { r.DataCenter.Name = "MyOwn" },
			expected: ChangeSet{FieldDataCenter},
		},
		{
			name: "canonical order",
			mutate: func(r *InstanceRecord) {
				r.URLs.HealthCheck = "http://x/health"
				r.App = "other"
				r.Status = StatusStarting
			},
			expected: ChangeSet{FieldApp, FieldStatus, FieldURLs},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			newer := base.Clone()
			tt.mutate(&newer)
			assert.Equal(t, tt.expected, Compare(base, newer))
		})
	}
}

func TestCompare_NilAndEmptyMetadataAreEqual(t *testing.T) {
	t.Parallel()

	a := NewTestInstance("i-1")
	b := NewTestInstance("i-1")
	a.Metadata = nil
	b.Metadata = map[string]string{}
	a.DataCenter.Metadata = map[string]string{}
	b.DataCenter.Metadata = nil

	assert.True(t, Compare(a, b).Empty())
}

func TestChangeSet(t *testing.T) {
	t.Parallel()

	cs := ChangeSet{FieldStatus, FieldMetadata}

	assert.False(t, cs.Empty())
	assert.True(t, cs.Has(FieldStatus))
	assert.False(t, cs.Has(FieldPort))
	assert.Equal(t, []string{"status", "metadata"}, cs.Strings())
	assert.Equal(t, "[status,metadata]", cs.String())
	assert.True(t, ChangeSet(nil).Empty())
}

func TestMerge(t *testing.T) {
	t.Parallel()

	current := NewTestInstance("i-1", WithStatus(StatusStarting), WithMetadata("zone", "a"))
	incoming := NewTestInstance("i-1", WithStatus(StatusUp), WithMetadata("zone", "b"), WithPort(9090))

	merged := Merge(current, incoming, ChangeSet{FieldStatus})

	assert.Equal(t, StatusUp, merged.Status)
	assert.Equal(t, "a", merged.Metadata["zone"], "fields outside the change set are kept")
	assert.Equal(t, 8080, merged.Location.Port)

	all := Merge(current, incoming, Compare(current, incoming))
	assert.True(t, all.Equal(incoming))

	again := Merge(all, incoming, Compare(current, incoming))
	assert.True(t, again.Equal(all), "applying the same change set twice is a no-op")
}
