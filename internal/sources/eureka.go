package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stacklok/toolhive-registry-bridge/internal/httpclient"
	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
)

// EurekaSource pulls the full application list from a Eureka v1 server
type EurekaSource struct {
	name       string
	endpoint   string
	httpClient httpclient.Client
}

// NewEurekaSource creates a source reading {endpoint}/apps with the given client
func NewEurekaSource(name, endpoint string, client httpclient.Client) *EurekaSource {
	return &EurekaSource{
		name:       name,
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: client,
	}
}

// Name returns the source name
func (s *EurekaSource) Name() string {
	return s.name
}

// ListInstances fetches and decodes every instance of every application
func (s *EurekaSource) ListInstances(ctx context.Context) ([]Descriptor, error) {
	url := s.endpoint + "/apps"
	data, err := s.httpClient.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch applications from %s: %w", s.name, err)
	}

	var apps eurekaApps
	if err := json.Unmarshal(data, &apps); err != nil {
		return nil, fmt.Errorf("failed to decode applications from %s: %w", s.name, err)
	}

	var out []Descriptor
	for _, app := range apps.Applications.Application {
		for i := range app.Instance {
			inst := app.Instance[i]
			if inst.App == "" {
				inst.App = app.Name
			}
			out = append(out, &eurekaDescriptor{info: inst})
		}
	}
	return out, nil
}

// eurekaDescriptor maps a Eureka InstanceInfo into an InstanceRecord
type eurekaDescriptor struct {
	info eurekaInstance
}

// ID follows Eureka's own identity rules: instanceId, then the AWS instance-id, then the host name
func (d *eurekaDescriptor) ID() string {
	if d.info.InstanceID != "" {
		return d.info.InstanceID
	}
	if d.info.DataCenterInfo != nil {
		if id := d.info.DataCenterInfo.Metadata["instance-id"]; id != "" {
			return id
		}
	}
	return d.info.HostName
}

func (d *eurekaDescriptor) Record() (registry.InstanceRecord, error) {
	id := d.ID()

	port, err := d.info.Port.value(true)
	if err != nil {
		return registry.InstanceRecord{}, malformed(id, fmt.Errorf("port: %w", err))
	}
	securePort, err := d.info.SecurePort.value(false)
	if err != nil {
		return registry.InstanceRecord{}, malformed(id, fmt.Errorf("securePort: %w", err))
	}

	status := registry.ParseStatus(d.info.Status)
	if override := registry.ParseStatus(d.info.OverriddenStatus); override != registry.StatusUnknown {
		status = override
	}

	rec := registry.InstanceRecord{
		ID:       id,
		App:      strings.ToUpper(d.info.App),
		AppGroup: d.info.AppGroupName,
		ASGName:  d.info.ASGName,
		Location: registry.NetworkLocation{
			HostName:         d.info.HostName,
			IPAddr:           d.info.IPAddr,
			Port:             port,
			SecurePort:       securePort,
			VIPAddress:       d.info.VIPAddress,
			SecureVIPAddress: d.info.SecureVIPAddress,
		},
		Status:   status,
		Metadata: d.info.Metadata.entries(),
		URLs: registry.URLs{
			HomePage:    d.info.HomePageURL,
			StatusPage:  d.info.StatusPageURL,
			HealthCheck: d.info.HealthCheckURL,
		},
	}
	if dc := d.info.DataCenterInfo; dc != nil {
		rec.DataCenter = registry.DataCenterInfo{Name: dc.Name}
		if len(dc.Metadata) > 0 {
			rec.DataCenter.Metadata = dc.Metadata
		}
	}

	if err := rec.Validate(); err != nil {
		return registry.InstanceRecord{}, malformed(id, err)
	}
	return rec, nil
}

type eurekaApps struct {
	Applications eurekaApplications `json:"applications"`
}

type eurekaApplications struct {
	VersionsDelta string                       `json:"versions__delta"`
	AppsHashcode  string                       `json:"apps__hashcode"`
	Application   oneOrMany[eurekaApplication] `json:"application"`
}

type eurekaApplication struct {
	Name     string                    `json:"name"`
	Instance oneOrMany[eurekaInstance] `json:"instance"`
}

type eurekaInstance struct {
	InstanceID       string            `json:"instanceId"`
	HostName         string            `json:"hostName"`
	App              string            `json:"app"`
	AppGroupName     string            `json:"appGroupName"`
	IPAddr           string            `json:"ipAddr"`
	Status           string            `json:"status"`
	OverriddenStatus string            `json:"overriddenstatus"`
	Port             *eurekaPort       `json:"port"`
	SecurePort       *eurekaPort       `json:"securePort"`
	DataCenterInfo   *eurekaDataCenter `json:"dataCenterInfo"`
	Metadata         eurekaMetadata    `json:"metadata"`
	HomePageURL      string            `json:"homePageUrl"`
	StatusPageURL    string            `json:"statusPageUrl"`
	HealthCheckURL   string            `json:"healthCheckUrl"`
	VIPAddress       string            `json:"vipAddress"`
	SecureVIPAddress string            `json:"secureVipAddress"`
	ASGName          string            `json:"asgName"`
}

// eurekaPort is {"$": 8080, "@enabled": "true"}; servers emit the port as a number or a string
type eurekaPort struct {
	Port    json.RawMessage `json:"$"`
	Enabled string          `json:"@enabled"`
}

// value returns the port when enabled, 0 when absent or disabled. A port without an
// "@enabled" flag is enabled when enabledByDefault is set.
func (p *eurekaPort) value(enabledByDefault bool) (int, error) {
	if p == nil || len(p.Port) == 0 {
		return 0, nil
	}
	enabled := enabledByDefault
	if p.Enabled != "" {
		enabled = strings.EqualFold(p.Enabled, "true")
	}
	if !enabled {
		return 0, nil
	}
	raw := string(p.Port)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 65535 {
		return 0, fmt.Errorf("invalid port %s", p.Port)
	}
	return n, nil
}

type eurekaDataCenter struct {
	Class    string            `json:"@class"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// eurekaMetadata is a free-form string map carrying an "@class" marker that is not instance data
type eurekaMetadata map[string]string

func (m eurekaMetadata) entries() map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if k == "@class" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// oneOrMany decodes Eureka's XStream-style JSON where a single element is
// encoded as an object instead of a one-element array
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}
	if data[0] == '[' {
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*o = many
		return nil
	}
	if data[0] != '{' {
		return errors.New("expected object or array")
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*o = []T{one}
	return nil
}
