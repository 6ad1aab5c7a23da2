package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"

	v1 "github.com/stacklok/toolhive-registry-bridge/internal/api/v1"
	bridgeapp "github.com/stacklok/toolhive-registry-bridge/internal/app"
	"github.com/stacklok/toolhive-registry-bridge/internal/config"
	"github.com/stacklok/toolhive-registry-bridge/internal/status"
)

// BridgeTestHelper manages the bridge lifecycle for testing
type BridgeTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	address    string
	httpClient *http.Client
	app        *bridgeapp.BridgeApp
}

// NewBridgeTestHelper creates a helper for the bridge configured at configPath, listening on a free port
func NewBridgeTestHelper(ctx context.Context, configPath string) (*BridgeTestHelper, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to find a free port: %w", err)
	}
	address := listener.Addr().String()
	if err := listener.Close(); err != nil {
		return nil, err
	}

	return &BridgeTestHelper{
		ctx:        ctx,
		configPath: configPath,
		address:    address,
		baseURL:    "http://" + address,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// WriteConfigYAML writes content to dir/config.yaml and returns the path
func WriteConfigYAML(dir, content string) string {
	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, []byte(content), 0600)).To(gomega.Succeed())
	return path
}

// StartBridge builds the bridge from its configuration and starts it in the background
func (h *BridgeTestHelper) StartBridge() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(h.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := bridgeapp.NewBridgeApp(h.ctx,
		bridgeapp.WithConfig(cfg),
		bridgeapp.WithAddress(h.address),
	)
	if err != nil {
		return fmt.Errorf("failed to build bridge: %w", err)
	}
	h.app = app

	go func() {
		if err := app.Start(); err != nil {
			// The test fails when it tries to connect
			fmt.Fprintf(os.Stderr, "Bridge start failed: %v\n", err)
		}
	}()
	return nil
}

// StopBridge gracefully stops the bridge
func (h *BridgeTestHelper) StopBridge() error {
	if h.app != nil {
		return h.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForReady waits until every channel has completed a tick
func (h *BridgeTestHelper) WaitForReady(timeout time.Duration) {
	gomega.Eventually(func() int {
		resp, err := h.httpClient.Get(h.baseURL + "/readiness")
		if err != nil {
			return 0
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}, timeout, 100*time.Millisecond).Should(gomega.Equal(http.StatusOK), "bridge did not become ready")
}

// GetJSON fetches path and decodes the body into out, returning the status code
func (h *BridgeTestHelper) GetJSON(path string, out any) (int, error) {
	resp, err := h.httpClient.Get(h.baseURL + path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// Instances returns the current contents of the local registry
func (h *BridgeTestHelper) Instances() v1.InstanceListResponse {
	var body v1.InstanceListResponse
	code, err := h.GetJSON("/v1/instances", &body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	gomega.Expect(code).To(gomega.Equal(http.StatusOK))
	return body
}

// Channel returns the status of the named channel
func (h *BridgeTestHelper) Channel(name string) status.ChannelStatus {
	var body status.ChannelStatus
	code, err := h.GetJSON("/v1/channels/"+name, &body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	gomega.Expect(code).To(gomega.Equal(http.StatusOK))
	return body
}

// Eviction returns the eviction queue view
func (h *BridgeTestHelper) Eviction() v1.EvictionResponse {
	var body v1.EvictionResponse
	code, err := h.GetJSON("/v1/eviction", &body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	gomega.Expect(code).To(gomega.Equal(http.StatusOK))
	return body
}

// InstanceIDs returns the identifiers of the instances in the local registry
func (h *BridgeTestHelper) InstanceIDs() []string {
	list := h.Instances()
	ids := make([]string, 0, len(list.Instances))
	for _, inst := range list.Instances {
		ids = append(ids, inst.ID)
	}
	return ids
}
