package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultConfigFile is read when CONFIG_FILE is not set
const DefaultConfigFile = "config.yaml"

// ApplyEnvironment overrides cfg with any ROUTER_* environment variables.
// Values that fail to parse are ignored.
func ApplyEnvironment(cfg *Config) {
	if port := getEnvInt("ROUTER_PORT", 0); port > 0 && port <= 65535 {
		cfg.Server.Port = port
	}
	// PORT is honored for platforms that inject it.
	if port := getEnvInt("PORT", 0); port > 0 && port <= 65535 {
		cfg.Server.Port = port
	}

	cfg.Router.DispatchTimeout = getEnvDuration("ROUTER_DISPATCH_TIMEOUT", cfg.Router.DispatchTimeout)
	cfg.Router.Strategy = getEnv("ROUTER_STRATEGY", cfg.Router.Strategy)
	if legacy := getEnv("ROUTER_LEGACY_NOT_FOUND", ""); legacy != "" {
		cfg.Router.LegacyNotFound = strings.ToLower(legacy) == "true"
	}

	cfg.Logging.Level = getEnv("ROUTER_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("ROUTER_LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Output = getEnv("ROUTER_LOG_OUTPUT", cfg.Logging.Output)

	if enabled := getEnv("ROUTER_RATE_LIMIT_ENABLED", ""); enabled != "" {
		cfg.RateLimit.Enabled = strings.ToLower(enabled) == "true"
	}

	if secret := getEnv("ROUTER_ADMIN_JWT_SECRET", ""); secret != "" {
		cfg.Admin.JWT.Enabled = true
		cfg.Admin.JWT.SecretKey = secret
	}

	if port := getEnvInt("ROUTER_GRPC_PORT", 0); port > 0 && port <= 65535 {
		cfg.GRPC.Enabled = true
		cfg.GRPC.Port = port
	}
}

// getEnv gets environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as integer with fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration gets environment variable as duration with fallback
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ConfigFile returns the path LoadConfig reads from
func ConfigFile() string {
	return getEnv("CONFIG_FILE", DefaultConfigFile)
}

// LoadConfig loads configuration with priority: env vars > config file > defaults.
// A missing config file is not an error; an unreadable or invalid one is.
func LoadConfig() (*Config, string, error) {
	config := DefaultConfig()
	source := "defaults"

	configFile := ConfigFile()
	if _, err := os.Stat(configFile); err == nil {
		config, err = LoadFromFile(configFile)
		if err != nil {
			return nil, "", err
		}
		source = "file"
	}

	ApplyEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}

	return config, source, nil
}
