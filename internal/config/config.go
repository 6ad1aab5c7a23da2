// Package config provides configuration loading and management for the registry bridge.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhive-registry-bridge/internal/telemetry"
)

// EnvPrefix is the prefix for environment variables read by the bridge
const EnvPrefix = "THV_BRIDGE"

const (
	// SourceTypeEureka is the type for snapshots pulled from a Eureka v1 REST endpoint
	SourceTypeEureka = "eureka"

	// SourceTypeFile is the type for snapshots read from a local JSON or YAML file
	SourceTypeFile = "file"
)

const (
	// SinkTypeMemory keeps the local registry in process memory
	SinkTypeMemory = "memory"

	// SinkTypeEtcd stores the local registry in etcd
	SinkTypeEtcd = "etcd"

	// SinkTypeRedis stores the local registry in redis
	SinkTypeRedis = "redis"

	// SinkTypePostgres stores the local registry in PostgreSQL
	SinkTypePostgres = "postgres"
)

const (
	// EvictionStrategyUnconditional evicts every queued candidate each round
	EvictionStrategyUnconditional = "unconditional"

	// EvictionStrategyPercentageGuarded bounds each round to a fraction of the registry size
	EvictionStrategyPercentageGuarded = "percentageGuarded"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// BridgeName identifies this bridge instance in logs, telemetry and the API.
	// Defaults to "default" if not specified
	BridgeName string          `yaml:"bridgeName,omitempty"`
	Channels   []ChannelConfig `yaml:"channels"`
	Eviction   *EvictionConfig `yaml:"eviction,omitempty"`
	Sink       *SinkConfig     `yaml:"sink,omitempty"`
	Database   *DatabaseConfig `yaml:"database,omitempty"`
	Status     *StatusConfig   `yaml:"status,omitempty"`

	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// ChannelConfig defines one reconciliation channel and the legacy source partition it reads
type ChannelConfig struct {
	// Name is the identifier for this channel
	Name string `yaml:"name"`

	// RefreshInterval is the fixed period between ticks (e.g., "30s")
	RefreshInterval string `yaml:"refreshInterval"`

	// PullTimeout bounds a single snapshot pull. Defaults to RefreshInterval
	PullTimeout string `yaml:"pullTimeout,omitempty"`

	// Source-specific configurations (only one should be set)
	Eureka *EurekaConfig `yaml:"eureka,omitempty"`
	File   *FileConfig   `yaml:"file,omitempty"`
}

// EurekaConfig defines a Eureka v1 REST source
type EurekaConfig struct {
	// Endpoint is the base service URL, e.g. "http://eureka:8080/eureka/v2".
	// The source appends /apps to list all applications
	Endpoint string `yaml:"endpoint"`
}

// FileConfig defines a local snapshot file source
type FileConfig struct {
	// Path is the path to a JSON or YAML file holding a list of instances
	Path string `yaml:"path"`
}

// EvictionConfig defines the eviction queue policy
type EvictionConfig struct {
	// Enabled routes disappearing instances through the eviction queue instead of
	// unregistering them immediately
	Enabled bool `yaml:"enabled"`

	// RoundInterval is the period between eviction rounds (e.g., "1m")
	RoundInterval string `yaml:"roundInterval,omitempty"`

	// Strategy selects the eviction strategy (unconditional or percentageGuarded)
	Strategy string `yaml:"strategy,omitempty"`

	// Percentage is the largest fraction of registered instances evicted per round,
	// in (0, 1]. Only used by the percentageGuarded strategy
	Percentage float64 `yaml:"percentage,omitempty"`
}

// SinkConfig defines the local registry the bridge writes into
type SinkConfig struct {
	// Type is one of memory, etcd, redis or postgres. Defaults to memory
	Type string `yaml:"type,omitempty"`

	// RateLimit throttles operations sent to the sink
	RateLimit *RateLimitConfig `yaml:"rateLimit,omitempty"`

	Etcd  *EtcdConfig  `yaml:"etcd,omitempty"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RateLimitConfig defines a token bucket
type RateLimitConfig struct {
	PerSecond float64 `yaml:"perSecond"`
	Burst     int     `yaml:"burst,omitempty"`
}

// EtcdConfig defines the etcd sink connection
type EtcdConfig struct {
	Endpoints   []string `yaml:"endpoints"`
	Prefix      string   `yaml:"prefix,omitempty"`
	DialTimeout string   `yaml:"dialTimeout,omitempty"`
	Username    string   `yaml:"username,omitempty"`
	// PasswordFile is the path to a file containing the etcd password
	PasswordFile string `yaml:"passwordFile,omitempty"`
}

// RedisConfig defines the redis sink connection
type RedisConfig struct {
	Address string `yaml:"address"`
	Prefix  string `yaml:"prefix,omitempty"`
	DB      int    `yaml:"db,omitempty"`
	// PasswordFile is the path to a file containing the redis password
	PasswordFile string `yaml:"passwordFile,omitempty"`
}

// StatusConfig defines where channel status documents are persisted
type StatusConfig struct {
	// Path is a directory; one status file is written per channel
	Path string `yaml:"path"`
}

// DatabaseConfig defines database connection settings for the postgres sink
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from THV_BRIDGE_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		return readSecretFile(d.PasswordFile)
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// GetPassword returns the etcd password from PasswordFile, or "" when none is configured
func (e *EtcdConfig) GetPassword() (string, error) {
	if e.PasswordFile == "" {
		return "", nil
	}
	return readSecretFile(e.PasswordFile)
}

// GetDialTimeout returns the parsed dial timeout, defaulting to 5 seconds
func (e *EtcdConfig) GetDialTimeout() time.Duration {
	if d, err := time.ParseDuration(e.DialTimeout); err == nil && d > 0 {
		return d
	}
	return 5 * time.Second
}

// GetPassword returns the redis password from PasswordFile, or "" when none is configured
func (r *RedisConfig) GetPassword() (string, error) {
	if r.PasswordFile == "" {
		return "", nil
	}
	return readSecretFile(r.PasswordFile)
}

func readSecretFile(path string) (string, error) {
	// Use filepath.Clean to prevent path traversal attacks
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", fmt.Errorf("failed to read password from file %s: %w", path, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetBridgeName returns the bridge name, using "default" if not specified
func (c *Config) GetBridgeName() string {
	if c.BridgeName == "" {
		return "default"
	}
	return c.BridgeName
}

// GetSinkType returns the configured sink type, using memory if not specified
func (c *Config) GetSinkType() string {
	if c.Sink == nil || c.Sink.Type == "" {
		return SinkTypeMemory
	}
	return c.Sink.Type
}

// GetStatusPath returns the status directory, or "" when status persistence is disabled
func (c *Config) GetStatusPath() string {
	if c.Status == nil {
		return ""
	}
	return c.Status.Path
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel must be configured")
	}

	channelNames := make(map[string]bool)
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.Name == "" {
			return fmt.Errorf("channel[%d]: name is required", i)
		}

		if channelNames[ch.Name] {
			return fmt.Errorf("channel[%d]: duplicate channel name '%s'", i, ch.Name)
		}
		channelNames[ch.Name] = true

		if err := validateChannelConfig(ch, i); err != nil {
			return err
		}
	}

	if err := validateEvictionConfig(c.Eviction); err != nil {
		return err
	}

	if err := c.validateSinkConfig(); err != nil {
		return err
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

// validateChannelConfig validates a single channel configuration
func validateChannelConfig(ch *ChannelConfig, index int) error {
	prefix := fmt.Sprintf("channel[%d] (%s)", index, ch.Name)

	if ch.RefreshInterval == "" {
		return fmt.Errorf("%s: refreshInterval is required", prefix)
	}
	if err := validatePositiveDuration(ch.RefreshInterval); err != nil {
		return fmt.Errorf("%s: refreshInterval %w", prefix, err)
	}
	if ch.PullTimeout != "" {
		if err := validatePositiveDuration(ch.PullTimeout); err != nil {
			return fmt.Errorf("%s: pullTimeout %w", prefix, err)
		}
	}

	configCount := 0
	if ch.Eureka != nil {
		configCount++
	}
	if ch.File != nil {
		configCount++
	}
	if configCount == 0 {
		return fmt.Errorf("%s: one of eureka or file configuration must be specified", prefix)
	}
	if configCount > 1 {
		return fmt.Errorf("%s: only one of eureka or file configuration may be specified", prefix)
	}

	if ch.Eureka != nil && ch.Eureka.Endpoint == "" {
		return fmt.Errorf("%s: eureka.endpoint is required", prefix)
	}
	if ch.File != nil && ch.File.Path == "" {
		return fmt.Errorf("%s: file.path is required", prefix)
	}

	return nil
}

// validateEvictionConfig validates the eviction policy
func validateEvictionConfig(e *EvictionConfig) error {
	if e == nil || !e.Enabled {
		return nil
	}

	if e.RoundInterval == "" {
		return fmt.Errorf("eviction: roundInterval is required when eviction is enabled")
	}
	if err := validatePositiveDuration(e.RoundInterval); err != nil {
		return fmt.Errorf("eviction: roundInterval %w", err)
	}

	switch e.GetStrategy() {
	case EvictionStrategyUnconditional:
	case EvictionStrategyPercentageGuarded:
		if e.Percentage <= 0 || e.Percentage > 1 {
			return fmt.Errorf("eviction: percentage must be in (0, 1], got %v", e.Percentage)
		}
	default:
		return fmt.Errorf("eviction: unsupported strategy %q", e.Strategy)
	}

	return nil
}

// validateSinkConfig ensures the selected sink has its settings
func (c *Config) validateSinkConfig() error {
	if c.Sink != nil && c.Sink.RateLimit != nil && c.Sink.RateLimit.PerSecond <= 0 {
		return fmt.Errorf("sink: rateLimit.perSecond must be greater than zero")
	}

	switch c.GetSinkType() {
	case SinkTypeMemory:
		return nil
	case SinkTypeEtcd:
		if c.Sink.Etcd == nil || len(c.Sink.Etcd.Endpoints) == 0 {
			return fmt.Errorf("sink: etcd.endpoints is required for the etcd sink")
		}
	case SinkTypeRedis:
		if c.Sink.Redis == nil || c.Sink.Redis.Address == "" {
			return fmt.Errorf("sink: redis.address is required for the redis sink")
		}
	case SinkTypePostgres:
		if c.Database == nil {
			return fmt.Errorf("sink: database configuration is required for the postgres sink")
		}
	default:
		return fmt.Errorf("sink: unsupported type %q", c.Sink.Type)
	}

	return nil
}

func validatePositiveDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a valid duration (e.g., '30s', '5m'): %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("must be greater than zero, got %s", s)
	}
	return nil
}

// GetType returns the inferred type of the channel source based on which field is present
func (ch *ChannelConfig) GetType() string {
	if ch.Eureka != nil {
		return SourceTypeEureka
	}
	if ch.File != nil {
		return SourceTypeFile
	}
	return ""
}

// GetRefreshInterval returns the parsed refresh interval. Callers must validate first.
func (ch *ChannelConfig) GetRefreshInterval() time.Duration {
	d, _ := time.ParseDuration(ch.RefreshInterval)
	return d
}

// GetPullTimeout returns the parsed pull timeout, defaulting to the refresh interval
func (ch *ChannelConfig) GetPullTimeout() time.Duration {
	if d, err := time.ParseDuration(ch.PullTimeout); err == nil && d > 0 {
		return d
	}
	return ch.GetRefreshInterval()
}

// IsEnabled reports whether eviction is configured and enabled
func (e *EvictionConfig) IsEnabled() bool {
	return e != nil && e.Enabled
}

// GetStrategy returns the strategy name, defaulting to percentageGuarded
func (e *EvictionConfig) GetStrategy() string {
	if e.Strategy == "" {
		return EvictionStrategyPercentageGuarded
	}
	return e.Strategy
}

// GetRoundInterval returns the parsed round interval. Callers must validate first.
func (e *EvictionConfig) GetRoundInterval() time.Duration {
	d, _ := time.ParseDuration(e.RoundInterval)
	return d
}
