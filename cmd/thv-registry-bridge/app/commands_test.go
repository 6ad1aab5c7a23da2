package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-registry-bridge/internal/versions"
)

func TestRootCmd_Subcommands(t *testing.T) {
	// Not parallel: NewRootCmd binds the global viper instance

	root := NewRootCmd()
	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "version", "migrate", "validate"})
}

func TestVersionCmd_JSON(t *testing.T) {
	// Not parallel: NewRootCmd binds the global viper instance

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--format", "json"})
	require.NoError(t, root.Execute())

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestServeCmd_ConfigErrors(t *testing.T) {
	// Not parallel: NewRootCmd binds the global viper instance

	tests := []struct {
		name    string
		args    func(t *testing.T) []string
		wantErr string
	}{
		{
			name:    "missing config",
			args:    func(*testing.T) []string { return []string{"serve"} },
			wantErr: "--config is required",
		},
		{
			name: "invalid config",
			args: func(t *testing.T) []string {
				t.Helper()
				path := filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(path, []byte("bridgeName: x"), 0600))
				return []string{"serve", "--config", path}
			},
			wantErr: "failed to load configuration",
		},
		{
			name: "invalid address",
			args: func(t *testing.T) []string {
				t.Helper()
				path := filepath.Join(t.TempDir(), "config.yaml")
				cfg := "channels:\n  - name: c\n    refreshInterval: 1s\n    file:\n      path: /nonexistent\n"
				require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
				return []string{"serve", "--config", path, "--address", "nowhere"}
			},
			wantErr: "failed to create bridge",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := NewRootCmd()
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(tt.args(t))
			err := root.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMigrateCmd_RequiresDatabase(t *testing.T) {
	// Not parallel: NewRootCmd binds the global viper instance

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := "channels:\n  - name: c\n    refreshInterval: 1s\n    file:\n      path: /x\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))

	for _, sub := range []string{"up", "down"} {
		root := NewRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"migrate", sub, "--config", path, "--yes"})
		err := root.Execute()
		require.Error(t, err, sub)
		assert.Contains(t, err.Error(), "database configuration is required")
	}
}

func TestValidateCmd(t *testing.T) {
	// Not parallel: NewRootCmd binds the global viper instance
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := `channels:
  - name: east
    refreshInterval: 30s
    eureka:
      endpoint: http://eureka:8080/eureka/v2
eviction:
  enabled: true
  roundInterval: 1m
  percentage: 0.1
`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Valid configuration")
	assert.Contains(t, out.String(), "Channel: east (eureka, every 30s)")
	assert.Contains(t, out.String(), "Eviction: percentageGuarded every 1m0s")

	root = NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"validate", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, root.Execute())
}

func TestConfirm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{input: "yes\n", want: true},
		{input: "y\n", want: true},
		{input: "  YES  \n", want: true},
		{input: "y", want: true},
		{input: "no\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		assert.Equal(t, tt.want, confirm(strings.NewReader(tt.input), &out, "Continue?"), "input %q", tt.input)
		assert.Equal(t, "Continue? (yes/no): ", out.String())
	}
}

// fakeMigrator records the calls made by the migrate commands
type fakeMigrator struct {
	upErr    error
	downErr  error
	stepsErr error
	steps    []int
	ups      int
	downs    int
}

func (f *fakeMigrator) Up() error { f.ups++; return f.upErr }

func (f *fakeMigrator) Down() error { f.downs++; return f.downErr }

func (f *fakeMigrator) Steps(n int) error { f.steps = append(f.steps, n); return f.stepsErr }

func (*fakeMigrator) Version() (uint, bool, error) { return 1, false, nil }

func (*fakeMigrator) Close() (error, error) { return nil, nil }

func TestExecuteMigrateUp(t *testing.T) {
	t.Parallel()

	m := &fakeMigrator{}
	require.NoError(t, executeMigrateUp(m, 0))
	assert.Equal(t, 1, m.ups)

	require.NoError(t, executeMigrateUp(m, 2))
	assert.Equal(t, []int{2}, m.steps)

	m = &fakeMigrator{upErr: migrate.ErrNoChange}
	require.NoError(t, executeMigrateUp(m, 0))

	m = &fakeMigrator{stepsErr: assert.AnError}
	err := executeMigrateUp(m, 1)
	require.ErrorIs(t, err, assert.AnError)
}

func TestExecuteMigrateDown(t *testing.T) {
	t.Parallel()

	m := &fakeMigrator{}
	require.NoError(t, executeMigrateDown(m, 0))
	assert.Equal(t, 1, m.downs)

	require.NoError(t, executeMigrateDown(m, 3))
	assert.Equal(t, []int{-3}, m.steps)

	m = &fakeMigrator{downErr: migrate.ErrNoChange}
	require.NoError(t, executeMigrateDown(m, 0))

	m = &fakeMigrator{downErr: assert.AnError}
	err := executeMigrateDown(m, 0)
	require.ErrorIs(t, err, assert.AnError)
}
