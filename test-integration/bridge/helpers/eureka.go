// Package helpers provides the fake Eureka server and bridge lifecycle helpers used by the integration tests.
package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
)

// EurekaInstance is the subset of a Eureka InstanceInfo the fake server emits
type EurekaInstance struct {
	InstanceID string
	App        string
	HostName   string
	IPAddr     string
	Port       int
	Status     string
	Metadata   map[string]string
}

// FakeEureka serves GET /eureka/v2/apps from a mutable instance list
type FakeEureka struct {
	server *httptest.Server

	mu        sync.Mutex
	instances map[string]EurekaInstance
	failing   bool
	requests  int
}

// NewFakeEureka starts a fake Eureka server. Call Close when done.
func NewFakeEureka(instances ...EurekaInstance) *FakeEureka {
	f := &FakeEureka{instances: make(map[string]EurekaInstance)}
	for _, inst := range instances {
		f.instances[inst.InstanceID] = inst
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serveApps))
	return f
}

// Endpoint returns the service URL to put in a channel's eureka.endpoint
func (f *FakeEureka) Endpoint() string {
	return f.server.URL + "/eureka/v2"
}

// Close shuts the server down
func (f *FakeEureka) Close() {
	f.server.Close()
}

// Put adds or replaces an instance
func (f *FakeEureka) Put(inst EurekaInstance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instances[inst.InstanceID] = inst
}

// Remove deletes an instance
func (f *FakeEureka) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.instances, id)
}

// SetFailing makes every request fail with 503 until reset
func (f *FakeEureka) SetFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

// Requests returns how many pulls were served
func (f *FakeEureka) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *FakeEureka) serveApps(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/eureka/v2/apps" {
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	f.requests++
	if f.failing {
		f.mu.Unlock()
		http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
		return
	}
	body := f.render()
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// render groups instances by application in the Eureka v2 JSON layout. Callers hold mu.
func (f *FakeEureka) render() map[string]any {
	byApp := make(map[string][]map[string]any)
	for _, inst := range f.instances {
		app := strings.ToUpper(inst.App)
		byApp[app] = append(byApp[app], map[string]any{
			"instanceId": inst.InstanceID,
			"app":        app,
			"hostName":   inst.HostName,
			"ipAddr":     inst.IPAddr,
			"status":     inst.Status,
			"port":       map[string]any{"$": inst.Port, "@enabled": "true"},
			"securePort": map[string]any{"$": 443, "@enabled": "false"},
			"dataCenterInfo": map[string]any{
				"@class": "com.netflix.appinfo.InstanceInfo$DefaultDataCenterInfo",
				"name":   "MyOwn",
			},
			"metadata":   inst.Metadata,
			"vipAddress": strings.ToLower(app),
		})
	}

	names := make([]string, 0, len(byApp))
	for name := range byApp {
		names = append(names, name)
	}
	sort.Strings(names)

	apps := make([]map[string]any, 0, len(names))
	for _, name := range names {
		apps = append(apps, map[string]any{"name": name, "instance": byApp[name]})
	}
	return map[string]any{
		"applications": map[string]any{
			"versions__delta": "1",
			"apps__hashcode":  "",
			"application":     apps,
		},
	}
}
