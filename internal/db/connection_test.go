package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-registry-bridge/internal/config"
)

func TestPoolConfig(t *testing.T) {
	t.Setenv("THV_BRIDGE_DATABASE_PASSWORD", "secret")

	tests := []struct {
		name    string
		cfg     *config.DatabaseConfig
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "database configuration is required"},
		{name: "missing host", cfg: &config.DatabaseConfig{Port: 5432, User: "u", Database: "d"}, wantErr: "host is required"},
		{name: "missing port", cfg: &config.DatabaseConfig{Host: "h", User: "u", Database: "d"}, wantErr: "port is required"},
		{name: "missing user", cfg: &config.DatabaseConfig{Host: "h", Port: 5432, Database: "d"}, wantErr: "user is required"},
		{name: "missing database", cfg: &config.DatabaseConfig{Host: "h", Port: 5432, User: "u"}, wantErr: "name is required"},
		{
			name:    "bad lifetime",
			cfg:     &config.DatabaseConfig{Host: "h", Port: 5432, User: "u", Database: "d", ConnMaxLifetime: "forever"},
			wantErr: "invalid connection max lifetime",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PoolConfig(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPoolConfigDefaults(t *testing.T) {
	t.Setenv("THV_BRIDGE_DATABASE_PASSWORD", "secret")

	poolCfg, err := PoolConfig(&config.DatabaseConfig{
		Host: "db", Port: 5432, User: "bridge", Database: "registry", SSLMode: "disable",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(defaultMaxOpenConns), poolCfg.MaxConns)
	assert.Equal(t, defaultConnMaxLifetime, poolCfg.MaxConnLifetime)
	assert.Equal(t, "db", poolCfg.ConnConfig.Host)
	assert.Equal(t, uint16(5432), poolCfg.ConnConfig.Port)
	assert.Equal(t, "secret", poolCfg.ConnConfig.Password)

	poolCfg, err = PoolConfig(&config.DatabaseConfig{
		Host: "db", Port: 5432, User: "bridge", Database: "registry", SSLMode: "disable",
		MaxOpenConns: 3, ConnMaxLifetime: "1h",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), poolCfg.MaxConns)
	assert.Equal(t, time.Hour, poolCfg.MaxConnLifetime)
}
