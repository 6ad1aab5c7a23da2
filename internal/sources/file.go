package sources

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
)

// FileSource reads instances from a local JSON or YAML document of the form
//
//	instances:
//	  - id: i-1
//	    app: BILLING
//	    status: UP
//	    location: {hostName: billing-1, ipAddr: 10.0.0.1, port: 8080}
type FileSource struct {
	name string
	path string
}

// NewFileSource creates a source reading path on every pull
func NewFileSource(name, path string) *FileSource {
	return &FileSource{name: name, path: path}
}

// Name returns the source name
func (s *FileSource) Name() string {
	return s.name
}

type fileDocument struct {
	Instances []yaml.Node `yaml:"instances"`
}

// ListInstances reads and parses the file. Entries are decoded individually so one
// bad entry yields one malformed descriptor instead of failing the whole pull.
func (s *FileSource) ListInstances(_ context.Context) ([]Descriptor, error) {
	//nolint:gosec // File path comes from user configuration, this is expected behavior
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", s.path)
		}
		return nil, fmt.Errorf("failed to read file %s: %w", s.path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", s.path, err)
	}

	out := make([]Descriptor, 0, len(doc.Instances))
	for i := range doc.Instances {
		out = append(out, &fileDescriptor{node: &doc.Instances[i]})
	}
	return out, nil
}

type fileDescriptor struct {
	node *yaml.Node
}

// ID reads the id key directly from the node so it is available even when the entry does not decode
func (d *fileDescriptor) ID() string {
	if d.node.Kind != yaml.MappingNode {
		return ""
	}
	for i := 0; i+1 < len(d.node.Content); i += 2 {
		k, v := d.node.Content[i], d.node.Content[i+1]
		if k.Value == "id" && v.Kind == yaml.ScalarNode {
			return v.Value
		}
	}
	return ""
}

func (d *fileDescriptor) Record() (registry.InstanceRecord, error) {
	var rec registry.InstanceRecord
	if err := d.node.Decode(&rec); err != nil {
		return registry.InstanceRecord{}, malformed(d.ID(), err)
	}
	rec.Status = registry.ParseStatus(string(rec.Status))
	return RecordDescriptor{Instance: rec}.Record()
}
