package helpers

import "fmt"

// CreateTestInstances returns count UP instances of app with ids app-1..app-count
func CreateTestInstances(app string, count int) []EurekaInstance {
	out := make([]EurekaInstance, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, EurekaInstance{
			InstanceID: fmt.Sprintf("%s-%d", app, i),
			App:        app,
			HostName:   fmt.Sprintf("%s-%d.local", app, i),
			IPAddr:     fmt.Sprintf("10.0.0.%d", i),
			Port:       8080,
			Status:     "UP",
		})
	}
	return out
}

// EurekaChannelConfig renders a config with one eureka channel and the given extra sections
func EurekaChannelConfig(endpoint, refreshInterval, extra string) string {
	return fmt.Sprintf(`bridgeName: integration
channels:
  - name: legacy
    refreshInterval: %s
    pullTimeout: 2s
    eureka:
      endpoint: %s
%s`, refreshInterval, endpoint, extra)
}
