package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-registry-bridge/internal/httpclient"
	"github.com/stacklok/toolhive-registry-bridge/internal/registry"
)

const eurekaAppsJSON = `{
  "applications": {
    "versions__delta": "1",
    "apps__hashcode": "UP_3_",
    "application": [
      {
        "name": "BILLING",
        "instance": [
          {
            "instanceId": "billing-1",
            "hostName": "billing-1.internal",
            "app": "BILLING",
            "ipAddr": "10.0.0.11",
            "status": "UP",
            "overriddenstatus": "UNKNOWN",
            "port": {"$": 8080, "@enabled": "true"},
            "securePort": {"$": "8443", "@enabled": "false"},
            "dataCenterInfo": {
              "@class": "com.netflix.appinfo.AmazonInfo",
              "name": "Amazon",
              "metadata": {"instance-id": "i-0abc", "availability-zone": "us-east-1a"}
            },
            "metadata": {"@class": "java.util.Collections$EmptyMap", "zone": "a"},
            "homePageUrl": "http://billing-1.internal:8080/",
            "healthCheckUrl": "http://billing-1.internal:8080/health",
            "vipAddress": "billing",
            "secureVipAddress": "billing-secure"
          },
          {
            "hostName": "billing-2.internal",
            "app": "BILLING",
            "ipAddr": "10.0.0.12",
            "status": "STARTING",
            "overriddenstatus": "OUT_OF_SERVICE",
            "port": {"$": 8080, "@enabled": "true"},
            "dataCenterInfo": {"@class": "com.netflix.appinfo.MyDataCenterInfo", "name": "MyOwn"}
          }
        ]
      },
      {
        "name": "SEARCH",
        "instance": {
          "instanceId": "search-1",
          "hostName": "search-1.internal",
          "ipAddr": "10.0.0.21",
          "status": "DOWN",
          "port": {"$": "not-a-port", "@enabled": "true"},
          "dataCenterInfo": {"@class": "com.netflix.appinfo.MyDataCenterInfo", "name": "MyOwn"}
        }
      }
    ]
  }
}`

func newEurekaServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eureka/v2/apps" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(server.Close)
	return server
}

func TestEurekaSource_ListInstances(t *testing.T) {
	t.Parallel()

	server := newEurekaServer(t, http.StatusOK, eurekaAppsJSON)
	src := NewEurekaSource("us-east", server.URL+"/eureka/v2/", httpclient.NewDefaultClient(5*time.Second))

	descs, err := src.ListInstances(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 3)
	assert.Equal(t, "us-east", src.Name())

	t.Run("full instance", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "billing-1", descs[0].ID())
		rec, err := descs[0].Record()
		require.NoError(t, err)

		assert.Equal(t, registry.InstanceRecord{
			ID:  "billing-1",
			App: "BILLING",
			Location: registry.NetworkLocation{
				HostName:         "billing-1.internal",
				IPAddr:           "10.0.0.11",
				Port:             8080,
				VIPAddress:       "billing",
				SecureVIPAddress: "billing-secure",
			},
			Status:   registry.StatusUp,
			Metadata: map[string]string{"zone": "a"},
			DataCenter: registry.DataCenterInfo{
				Name:     "Amazon",
				Metadata: map[string]string{"instance-id": "i-0abc", "availability-zone": "us-east-1a"},
			},
			URLs: registry.URLs{
				HomePage:    "http://billing-1.internal:8080/",
				HealthCheck: "http://billing-1.internal:8080/health",
			},
		}, rec)
	})

	t.Run("host name identity and overridden status", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "billing-2.internal", descs[1].ID())
		rec, err := descs[1].Record()
		require.NoError(t, err)
		assert.Equal(t, registry.StatusOutOfService, rec.Status)
		assert.Nil(t, rec.Metadata)
		assert.Equal(t, registry.DataCenterInfo{Name: "MyOwn"}, rec.DataCenter)
	})

	t.Run("single instance object and bad port", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "search-1", descs[2].ID())
		_, err := descs[2].Record()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedDescriptor)

		var me *MalformedError
		require.True(t, errors.As(err, &me))
		assert.Equal(t, "search-1", me.ID)
	})
}

func TestEurekaSource_ListInstances_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		body          string
		errorContains string
	}{
		{name: "server error", status: http.StatusServiceUnavailable, errorContains: "HTTP 503"},
		{name: "invalid json", status: http.StatusOK, body: `{"applications":`, errorContains: "failed to decode"},
		{name: "wrong shape", status: http.StatusOK, body: `{"applications":{"application":"x"}}`, errorContains: "failed to decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newEurekaServer(t, tt.status, tt.body)
			src := NewEurekaSource("c", server.URL+"/eureka/v2", httpclient.NewDefaultClient(5*time.Second))

			descs, err := src.ListInstances(context.Background())
			require.Error(t, err)
			assert.Nil(t, descs)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestEurekaSource_EmptyRegistry(t *testing.T) {
	t.Parallel()

	server := newEurekaServer(t, http.StatusOK, `{"applications":{"versions__delta":"1","application":[]}}`)
	src := NewEurekaSource("c", server.URL+"/eureka/v2", httpclient.NewDefaultClient(5*time.Second))

	descs, err := src.ListInstances(context.Background())
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestEurekaDescriptor_Identity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		info     eurekaInstance
		expected string
	}{
		{
			name:     "instance id",
			info:     eurekaInstance{InstanceID: "a", HostName: "h"},
			expected: "a",
		},
		{
			name: "aws instance id",
			info: eurekaInstance{HostName: "h", DataCenterInfo: &eurekaDataCenter{
				Name: "Amazon", Metadata: map[string]string{"instance-id": "i-1"},
			}},
			expected: "i-1",
		},
		{
			name:     "host name",
			info:     eurekaInstance{HostName: "h"},
			expected: "h",
		},
		{
			name:     "nothing",
			info:     eurekaInstance{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := &eurekaDescriptor{info: tt.info}
			assert.Equal(t, tt.expected, d.ID())
		})
	}
}

func TestEurekaDescriptor_MissingIdentity(t *testing.T) {
	t.Parallel()

	d := &eurekaDescriptor{info: eurekaInstance{App: "X", Status: "UP"}}
	_, err := d.Record()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedDescriptor)
	assert.ErrorIs(t, err, registry.ErrMissingID)
}

func TestEurekaPort_Value(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		port             *eurekaPort
		enabledByDefault bool
		want             int
		wantErr          bool
	}{
		{name: "absent", port: nil, enabledByDefault: true, want: 0},
		{name: "port without flag", port: &eurekaPort{Port: []byte(`8080`)}, enabledByDefault: true, want: 8080},
		{name: "secure port without flag", port: &eurekaPort{Port: []byte(`8443`)}, want: 0},
		{name: "explicitly enabled", port: &eurekaPort{Port: []byte(`"8443"`), Enabled: "true"}, want: 8443},
		{
			name:             "explicitly disabled",
			port:             &eurekaPort{Port: []byte(`8080`), Enabled: "false"},
			enabledByDefault: true,
			want:             0,
		},
		{name: "out of range", port: &eurekaPort{Port: []byte(`70000`)}, enabledByDefault: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.port.value(tt.enabledByDefault)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEurekaSource_PortWithoutEnabledFlag(t *testing.T) {
	t.Parallel()

	body := `{"applications":{"application":{"name":"BILLING","instance":{
	  "instanceId":"billing-9","hostName":"billing-9","app":"BILLING","ipAddr":"10.0.0.9",
	  "status":"UP","port":{"$":8080},"securePort":{"$":8443},
	  "dataCenterInfo":{"name":"MyOwn"}}}}}`
	server := newEurekaServer(t, http.StatusOK, body)
	src := NewEurekaSource("c", server.URL+"/eureka/v2", httpclient.NewDefaultClient(5*time.Second))

	descs, err := src.ListInstances(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 1)
	rec, err := descs[0].Record()
	require.NoError(t, err)
	assert.Equal(t, 8080, rec.Location.Port)
	assert.Zero(t, rec.Location.SecurePort)
}
