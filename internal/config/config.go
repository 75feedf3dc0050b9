package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/mir00r/stand-router/internal/domain"
	"github.com/mir00r/stand-router/internal/stand"
	"gopkg.in/yaml.v2"
)

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Router    RouterConfig    `yaml:"router"`
	Backends  []BackendConfig `yaml:"backends"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Admin     AdminConfig     `yaml:"admin"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Reload    ReloadConfig    `yaml:"reload"`
}

// ServerConfig contains HTTP server specific configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	EnableH2C    bool          `yaml:"enable_h2c"`
}

// RouterConfig contains dispatch settings
type RouterConfig struct {
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	// Strategy picks a replica within a backend: round_robin or least_pending
	Strategy  string `yaml:"strategy"`
	QueueSize int    `yaml:"queue_size"`
	// LegacyNotFound answers unknown targets with a bare -1 body
	LegacyNotFound bool `yaml:"legacy_not_found"`
}

// BackendConfig declares one named stand
type BackendConfig struct {
	Name         string  `yaml:"name"`
	Replicas     int     `yaml:"replicas"`
	DefaultPrice float64 `yaml:"default_price"`
	// UserConfig is pushed through ApplyConfig after startup and on reload.
	// Absent means the stand keeps its defaults.
	UserConfig map[string]interface{} `yaml:"user_config,omitempty"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// RateLimitConfig defines per-client rate limiting on the dispatch endpoint
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// AdminConfig contains admin API configuration
type AdminConfig struct {
	Enabled    bool      `yaml:"enabled"`
	PathPrefix string    `yaml:"path_prefix"`
	JWT        JWTConfig `yaml:"jwt"`
}

// JWTConfig protects the admin API with HMAC signed bearer tokens
type JWTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Algorithm string `yaml:"algorithm"`
	SecretKey string `yaml:"secret_key"`
	Issuer    string `yaml:"issuer"`
}

// GRPCConfig contains the gRPC health server configuration
type GRPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// ReloadConfig controls polling of the config file for user_config changes
type ReloadConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig returns a configuration with the demo topology
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Router: RouterConfig{
			DispatchTimeout: 5 * time.Second,
			Strategy:        string(domain.RoundRobinStrategy),
			QueueSize:       64,
		},
		Backends: []BackendConfig{
			{Name: "MANGO", Replicas: 1, DefaultPrice: 1, UserConfig: map[string]interface{}{"price": 3}},
			{Name: "ORANGE", Replicas: 1, DefaultPrice: 0.5, UserConfig: map[string]interface{}{"price": 2}},
			{Name: "PEAR", Replicas: 1, DefaultPrice: 0.75, UserConfig: map[string]interface{}{"price": 4}},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Admin: AdminConfig{
			Enabled:    true,
			PathPrefix: "/admin",
			JWT: JWTConfig{
				Algorithm: "HS256",
			},
		},
		GRPC: GRPCConfig{
			Enabled: false,
			Port:    9000,
		},
		Reload: ReloadConfig{
			Enabled:  false,
			Interval: 5 * time.Second,
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", filename, err)
	}
	return config, nil
}

// Parse decodes and validates YAML configuration. A backends list in data
// replaces the default one.
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()
	config.Backends = nil

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.Backends == nil {
		config.Backends = DefaultConfig().Backends
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Validate validates the configuration for correctness
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Router.DispatchTimeout <= 0 {
		return fmt.Errorf("router.dispatch_timeout must be positive: %v", c.Router.DispatchTimeout)
	}

	switch domain.ReplicaStrategy(c.Router.Strategy) {
	case domain.RoundRobinStrategy, domain.LeastPendingStrategy:
	default:
		return fmt.Errorf("unsupported replica strategy: %s", c.Router.Strategy)
	}

	if c.Router.QueueSize < 0 {
		return fmt.Errorf("router.queue_size cannot be negative: %d", c.Router.QueueSize)
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}

	names := make(map[string]bool)
	for i, backend := range c.Backends {
		if backend.Name == "" {
			return fmt.Errorf("backend[%d]: name cannot be empty", i)
		}
		if names[backend.Name] {
			return fmt.Errorf("backend[%d]: duplicate name '%s'", i, backend.Name)
		}
		names[backend.Name] = true

		if backend.Replicas < 1 {
			return fmt.Errorf("backend[%d]: replicas must be at least 1", i)
		}
		if backend.DefaultPrice < 0 || math.IsNaN(backend.DefaultPrice) || math.IsInf(backend.DefaultPrice, 0) {
			return fmt.Errorf("backend[%d]: default_price must be a non-negative number", i)
		}
		if backend.UserConfig != nil {
			if _, err := stand.ParsePriceConfig(backend.Kind(), backend.Blob()); err != nil {
				return fmt.Errorf("backend[%d]: user_config: %w", i, err)
			}
		}
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true, "discard": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limit.requests_per_second must be positive")
		}
		if c.RateLimit.BurstSize <= 0 {
			return fmt.Errorf("rate_limit.burst_size must be positive")
		}
	}

	if c.Admin.Enabled && c.Admin.JWT.Enabled {
		switch c.Admin.JWT.Algorithm {
		case "HS256", "HS384", "HS512":
		default:
			return fmt.Errorf("unsupported admin.jwt.algorithm: %s", c.Admin.JWT.Algorithm)
		}
		if c.Admin.JWT.SecretKey == "" {
			return fmt.Errorf("admin.jwt.secret_key is required when admin.jwt is enabled")
		}
	}

	if c.GRPC.Enabled {
		if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
			return fmt.Errorf("invalid grpc.port: %d", c.GRPC.Port)
		}
		if c.GRPC.Port == c.Server.Port {
			return fmt.Errorf("grpc.port must differ from server.port")
		}
	}

	if c.Reload.Enabled && c.Reload.Interval <= 0 {
		return fmt.Errorf("reload.interval must be positive")
	}

	return nil
}

// Kind returns the stand kind this backend runs
func (b BackendConfig) Kind() stand.Kind {
	return stand.Kind{Name: b.Name, DefaultPrice: b.DefaultPrice}
}

// Blob returns the user_config as a config blob. A nil UserConfig yields an
// empty blob, which resets the stand to its defaults.
func (b BackendConfig) Blob() domain.ConfigBlob {
	blob := make(domain.ConfigBlob, len(b.UserConfig))
	for k, v := range b.UserConfig {
		blob[k] = v
	}
	return blob
}

// Backend returns the backend named name
func (c *Config) Backend(name string) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return BackendConfig{}, false
}

// SaveToFile saves the configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}
